package mutate

import (
	"fmt"
	"sort"
)

// Edit replaces src[Start:End] with Text. Start == End inserts.
type Edit struct {
	Start int
	End   int
	Text  string
}

// ApplyEdits returns a copy of src with all edits applied. Offsets refer to
// the original src, so edits may be given in any order, but they must not
// overlap.
func ApplyEdits(src []byte, edits []Edit) ([]byte, error) {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	out := make([]byte, 0, len(src))
	cursor := 0
	for _, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > len(src) {
			return nil, fmt.Errorf("edit [%d:%d] out of range for %d bytes", e.Start, e.End, len(src))
		}
		if e.Start < cursor {
			return nil, fmt.Errorf("edit [%d:%d] overlaps a previous edit ending at %d", e.Start, e.End, cursor)
		}
		out = append(out, src[cursor:e.Start]...)
		out = append(out, e.Text...)
		cursor = e.End
	}
	out = append(out, src[cursor:]...)
	return out, nil
}
