// Package scan discovers candidate source files for mutation.
//
// Include and exclude patterns use gitignore syntax (including "**"), so
// the same matcher from github.com/sabhiram/go-gitignore serves three roles:
// the repository's own .gitignore, the user's include globs and the user's
// exclude globs.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultInclude selects every Go source file in the tree.
var DefaultInclude = []string{"**/*.go"}

// IgnoredDirs are directories that are never descended into: VCS metadata,
// build outputs and vendored or fixture code that the project build does
// not own.
var IgnoredDirs = map[string]bool{
	".git":         true,
	".gradle":      true,
	".idea":        true,
	"build":        true,
	"out":          true,
	"target":       true,
	"node_modules": true,
	"vendor":       true,
	"testdata":     true,
}

// Options configures Find.
type Options struct {
	// Include lists gitignore-style patterns a file must match.
	// Empty means DefaultInclude.
	Include []string

	// Exclude lists gitignore-style patterns that drop a file.
	Exclude []string

	// IncludeTests keeps _test.go files.
	IncludeTests bool

	// Gitignore is applied on top of IgnoredDirs. Nil disables it;
	// use LoadGitignore to read the repository's file.
	Gitignore *ignore.GitIgnore
}

// LoadGitignore loads .gitignore from root if it exists.
func LoadGitignore(root string) *ignore.GitIgnore {
	gitignorePath := filepath.Join(root, ".gitignore")

	if _, err := os.Stat(gitignorePath); err == nil {
		if gitignore, err := ignore.CompileIgnoreFile(gitignorePath); err == nil {
			return gitignore
		}
	}

	return nil
}

// Find walks root and returns the slash-separated, root-relative paths of
// all files selected by opts, sorted lexically so that --limit and
// --pick-index behave the same on every platform.
func Find(root string, opts Options) ([]string, error) {
	includes := opts.Include
	if len(includes) == 0 {
		includes = DefaultInclude
	}
	include := ignore.CompileIgnoreLines(includes...)

	var exclude *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		exclude = ignore.CompileIgnoreLines(opts.Exclude...)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if IgnoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			if opts.Gitignore != nil && opts.Gitignore.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if opts.Gitignore != nil && opts.Gitignore.MatchesPath(rel) {
			return nil
		}
		if !opts.IncludeTests && strings.HasSuffix(rel, "_test.go") {
			return nil
		}
		if !include.MatchesPath(rel) {
			return nil
		}
		if exclude != nil && exclude.MatchesPath(rel) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
