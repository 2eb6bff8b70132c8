package mutate

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// Mutator applies one mutation to one file.
type Mutator interface {
	// Mutate rewrites the file at path in place. It returns a result with
	// Changed=false (and a nil error) when the file has no suitable
	// candidate, is not a Go source, or does not parse.
	Mutate(path string) (model.MutationResult, error)
}

// Options tunes candidate selection.
type Options struct {
	// PickIndex selects the candidate by 0-based index (clamped).
	PickIndex *int

	// RandomSeed selects a candidate pseudo-randomly when PickIndex is nil.
	RandomSeed *int64

	// Now supplies the timestamp for insert-comment. Defaults to time.Now.
	Now func() time.Time
}

// New returns the Mutator for op.
func New(op model.Operation, opts Options) (Mutator, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	switch op {
	case model.OpRenameLocal:
		return &localRenamer{opts: opts}, nil
	case model.OpRenameParam:
		return &paramRenamer{opts: opts}, nil
	case model.OpFlipIf:
		return &ifMutator{opts: opts, rewrite: flipIf, newName: "if_negated_swapped"}, nil
	case model.OpDoubleNegateIf:
		return &ifMutator{opts: opts, rewrite: doubleNegate, newName: "if_double_negated"}, nil
	case model.OpSimplifyNegation:
		return &ifMutator{
			opts:    opts,
			rewrite: simplifyNegation,
			newName: "if_negation_simplified",
			accept:  func(s *ast.IfStmt) bool { return negationDepth(s.Cond) >= 2 },
		}, nil
	case model.OpInsertComment:
		return &commentInserter{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}
}

// source is a parsed Go file together with its original bytes.
type source struct {
	path string
	src  []byte
	fset *token.FileSet
	file *ast.File
	tok  *token.File
}

// load reads and parses path. It returns (nil, nil) for files that are not
// Go sources or fail to parse, so callers report them as unchanged.
func load(path string) (*source, error) {
	if !strings.EqualFold(filepath.Ext(path), ".go") {
		return nil, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, nil
	}

	return &source{
		path: path,
		src:  src,
		fset: fset,
		file: file,
		tok:  fset.File(file.Pos()),
	}, nil
}

// offset converts a position into a byte offset in src.
func (s *source) offset(p token.Pos) int {
	return s.tok.Offset(p)
}

// span returns the byte range covered by n.
func (s *source) span(n ast.Node) (int, int) {
	return s.offset(n.Pos()), s.offset(n.End())
}

// text returns the original source text of n.
func (s *source) text(n ast.Node) string {
	start, end := s.span(n)
	return string(s.src[start:end])
}

// replace builds an Edit that replaces n with text.
func (s *source) replace(n ast.Node, text string) Edit {
	start, end := s.span(n)
	return Edit{Start: start, End: end, Text: text}
}

// commit applies the edits, gofmt-formats the result and writes it back
// with the file's original permissions.
func (s *source) commit(edits []Edit) error {
	out, err := ApplyEdits(s.src, edits)
	if err != nil {
		return fmt.Errorf("apply edits to %s: %w", s.path, err)
	}

	formatted, err := format.Source(out)
	if err != nil {
		return fmt.Errorf("mutated %s no longer parses: %w", s.path, err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(s.path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(s.path, formatted, mode); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// typeInfo type-checks the file in isolation and returns the identifier
// resolution tables. Type errors are expected (imports are stubs and other
// files of the package are absent) and are ignored; scoping information for
// locals and parameters is still complete.
func (s *source) typeInfo() *types.Info {
	info := &types.Info{
		Defs: make(map[*ast.Ident]types.Object),
		Uses: make(map[*ast.Ident]types.Object),
	}
	conf := types.Config{
		Importer:    stubImporter{},
		FakeImportC: true,
		Error:       func(error) {},
	}
	_, _ = conf.Check(s.file.Name.Name, s.fset, []*ast.File{s.file}, info)
	return info
}

// stubImporter satisfies every import with an empty, complete package.
type stubImporter struct{}

func (stubImporter) Import(path string) (*types.Package, error) {
	pkg := types.NewPackage(path, guessPackageName(path))
	pkg.MarkComplete()
	return pkg, nil
}

// guessPackageName derives the conventional package name from an import
// path: the last element, skipping a major-version suffix ("/v4") and
// trimming a gopkg.in-style ".vN" suffix.
func guessPackageName(path string) string {
	parts := strings.Split(path, "/")
	name := parts[len(parts)-1]
	if len(parts) > 1 && isMajorVersion(name) {
		name = parts[len(parts)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, "-", "_")
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
