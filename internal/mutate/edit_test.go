package mutate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdits(t *testing.T) {
	src := []byte("if x > 3 { a() } else { b() }")

	tests := []struct {
		name  string
		edits []Edit
		want  string
	}{
		{
			name:  "no edits",
			edits: nil,
			want:  string(src),
		},
		{
			name:  "insert at start",
			edits: []Edit{{Start: 0, End: 0, Text: "// c\n"}},
			want:  "// c\nif x > 3 { a() } else { b() }",
		},
		{
			name: "out of order swap",
			edits: []Edit{
				{Start: 22, End: 29, Text: "{ a() }"},
				{Start: 9, End: 16, Text: "{ b() }"},
				{Start: 3, End: 8, Text: "!(x > 3)"},
			},
			want: "if !(x > 3) { b() } else { a() }",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyEdits(src, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestApplyEdits_Errors(t *testing.T) {
	src := []byte("abcdef")

	_, err := ApplyEdits(src, []Edit{{Start: 1, End: 4}, {Start: 3, End: 5}})
	assert.ErrorContains(t, err, "overlaps")

	_, err = ApplyEdits(src, []Edit{{Start: 4, End: 10}})
	assert.ErrorContains(t, err, "out of range")

	_, err = ApplyEdits(src, []Edit{{Start: 4, End: 2}})
	assert.ErrorContains(t, err, "out of range")
}

func TestPick(t *testing.T) {
	items := []string{"a", "b", "c", "d"}

	assert.Equal(t, "a", Pick(items, nil, nil))
	assert.Equal(t, "c", Pick(items, intPtr(2), nil))
	assert.Equal(t, "d", Pick(items, intPtr(50), nil))
	assert.Equal(t, "a", Pick(items, intPtr(-3), nil))

	// An explicit index wins over a seed.
	assert.Equal(t, "b", Pick(items, intPtr(1), int64Ptr(99)))

	// The same seed always gives the same element.
	seeded := Pick(items, nil, int64Ptr(12345))
	for i := 0; i < 5; i++ {
		assert.Equal(t, seeded, Pick(items, nil, int64Ptr(12345)))
	}
	assert.Contains(t, items, seeded)
}
