package mutate

import (
	"time"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// CommentPrefix starts every marker comment written by insert-comment.
const CommentPrefix = "// mt: touched by mutafix at "

// commentInserter prepends a marker comment to the file. It never changes
// behavior; it is the control mutation that should always keep the build
// green.
type commentInserter struct {
	opts Options
}

func (m *commentInserter) Mutate(path string) (model.MutationResult, error) {
	src, err := load(path)
	if err != nil || src == nil {
		return model.Unchanged(path), err
	}

	// The blank line keeps the marker from merging into a package doc
	// comment or a //go:build constraint block.
	stamp := m.opts.Now().UTC().Format(time.RFC3339Nano)
	edit := Edit{Start: 0, End: 0, Text: CommentPrefix + stamp + "\n\n"}

	if err := src.commit([]Edit{edit}); err != nil {
		return model.Unchanged(path), err
	}
	return model.MutationResult{File: path, OldName: "comment", NewName: "comment_inserted", Changed: true}, nil
}
