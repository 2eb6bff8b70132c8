// Package mutate applies a single source-level mutation to a Go file.
//
// Each mutator parses the file with go/parser, chooses one candidate site
// (an identifier declaration, an if-statement, or the top of the file) and
// rewrites it through byte-range edits on the original text. Working on the
// original bytes rather than re-printing the AST keeps comments and layout
// exactly as the author wrote them; the result is then normalized with
// go/format so the output stays gofmt-clean.
//
// Identifier renames resolve declarations and uses with go/types. Imports
// are satisfied by empty stub packages: only local scoping matters for a
// rename, and stubbing keeps the mutator independent of the build
// environment of the target repository.
//
// Files that are not Go sources, or that do not parse, are reported as
// unchanged rather than as errors, so that a session can move on to the
// next candidate file.
package mutate
