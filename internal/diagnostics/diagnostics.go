// Package diagnostics turns raw compiler output from a failed build into a
// readable report: parsed error locations, source snippets around them and
// hints that relate the failure to the mutation that caused it.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// DefaultContext is the number of lines shown above and below an error.
const DefaultContext = 2

// TailChars is how much raw output Explain shows when nothing parses.
const TailChars = 2000

// NoSource is rendered in place of a snippet when the file is not local.
const NoSource = "(no local source to show)"

// CompileError is one error location extracted from compiler output.
type CompileError struct {
	// File is the path as printed by the compiler.
	File string

	// Line and Col are 1-based. Zero means unknown.
	Line int
	Col  int

	// Message is the compiler's description of the error.
	Message string

	// Raw holds the original output lines for this error.
	Raw string
}

var (
	// ./main.go:12:5: undefined: number
	goHead = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?:\s+(.*)$`)

	// /src/App.java:7: error: cannot find symbol
	javacHead = regexp.MustCompile(`^(.+\.java):(\d+):\s+(?:error|warning):\s+(.*)$`)
)

// Parse extracts compile errors from build output. It understands Go
// compiler lines and javac blocks, where javac may follow the header with
// the offending code line and a caret line marking the column.
func Parse(text string) []CompileError {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []CompileError

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := goHead.FindStringSubmatch(line); m != nil {
			out = append(out, CompileError{
				File:    m[1],
				Line:    atoi(m[2]),
				Col:     atoi(m[3]),
				Message: m[4],
				Raw:     line,
			})
			continue
		}

		m := javacHead.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ce := CompileError{File: m[1], Line: atoi(m[2]), Message: m[3], Raw: line}
		if i+2 < len(lines) {
			if caret := strings.IndexByte(lines[i+2], '^'); caret >= 0 {
				ce.Col = caret + 1
				ce.Raw += "\n" + lines[i+1] + "\n" + lines[i+2]
				i += 2
			}
		}
		out = append(out, ce)
	}
	return out
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// RenderSnippet shows the lines of path around line. The error line is
// marked with ">>", every whole-word occurrence of highlight on it is
// bracketed with «», and a caret is drawn under col when it is known.
func RenderSnippet(path string, line, col int, highlight string, context int) string {
	data, err := os.ReadFile(path)
	if err != nil || line <= 0 {
		return NoSource
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	idx := line - 1
	if idx >= len(all) {
		return NoSource
	}
	if context < 0 {
		context = 0
	}

	from := max(0, idx-context)
	to := min(len(all)-1, idx+context)

	var word *regexp.Regexp
	if strings.TrimSpace(highlight) != "" {
		word = regexp.MustCompile(`\b` + regexp.QuoteMeta(highlight) + `\b`)
	}

	var sb strings.Builder
	for ln := from; ln <= to; ln++ {
		mark := "  "
		text := all[ln]
		if ln == idx {
			mark = ">>"
			if word != nil {
				text = word.ReplaceAllString(text, "«"+highlight+"»")
			}
		}
		fmt.Fprintf(&sb, "%s %4d | %s\n", mark, ln+1, text)
		if ln == idx && col > 0 {
			fmt.Fprintf(&sb, "   ____ | %s^\n", caretPad(all[ln], col, word))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// caretPad returns the indentation that puts a caret under byte column col
// of line as it is rendered: tabs are kept so they expand the same way, and
// every « » inserted before col counts as one column.
func caretPad(line string, col int, word *regexp.Regexp) string {
	cut := min(col-1, len(line))
	prefix := line[:cut]
	if word != nil {
		var sb strings.Builder
		last := 0
		for _, m := range word.FindAllStringIndex(line, -1) {
			if m[0] > cut {
				break
			}
			sb.WriteString(line[last:m[0]])
			sb.WriteString("«")
			if m[1] <= cut {
				sb.WriteString(line[m[0]:m[1]])
				sb.WriteString("»")
				last = m[1]
			} else {
				sb.WriteString(line[m[0]:cut])
				last = cut
			}
		}
		sb.WriteString(line[last:cut])
		prefix = sb.String()
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return '\t'
		}
		return ' '
	}, prefix)
}

// Explainer builds failure reports.
type Explainer struct {
	// Root resolves relative file paths in compiler output, which is how
	// the Go toolchain prints them.
	Root string

	// Mount is the directory Root was mounted at when the build ran in a
	// container. Paths below it are mapped back onto Root.
	Mount string

	// Context is the number of lines shown around each error.
	Context int
}

// Explain builds a report for a failed build using default settings.
func Explain(build model.BuildResult, mutation model.MutationResult) string {
	return (&Explainer{Context: DefaultContext}).Explain(build, mutation)
}

// Explain renders the parsed errors of build with snippets and, when the
// failure looks like an unresolved symbol, hints that relate it to the
// mutation's old and new names. Without parsable errors it falls back to
// the tail of the raw output.
func (e *Explainer) Explain(build model.BuildResult, mutation model.MutationResult) string {
	combined := build.Stdout + "\n" + build.Stderr
	errs := Parse(combined)

	var sb strings.Builder
	sb.WriteString("=== Failure diagnostics ===\n")

	if len(errs) == 0 {
		sb.WriteString("(No structured compiler errors found. Showing tail of output)\n\n")
		fmt.Fprintf(&sb, "---- LAST %d CHARS ----\n", TailChars)
		sb.WriteString(tail(combined, TailChars))
		return strings.TrimRight(sb.String(), "\n")
	}

	highlight := mutation.OldName
	if highlight == "" {
		highlight = mutation.NewName
	}

	fmt.Fprintf(&sb, "Parsed %d compile error(s):\n\n", len(errs))
	for i, ce := range errs {
		fmt.Fprintf(&sb, "[%d] %s\n", i, ce.Message)

		path := e.resolve(ce.File)
		shown := path
		if shown == "" {
			shown = "(unknown)"
		}
		fmt.Fprintf(&sb, "File: %s  Line: %s  Col: %s\n", shown, orUnknown(ce.Line), orUnknown(ce.Col))
		if path != "" {
			sb.WriteString("\n")
			sb.WriteString(RenderSnippet(path, ce.Line, ce.Col, highlight, e.context()))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if hints := Hints(combined, mutation); len(hints) > 0 {
		sb.WriteString("Hints:\n")
		for _, h := range hints {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// Hints returns advice lines for output that reports unresolved or unused
// symbols after a rename. It returns nil when no heuristic applies.
func Hints(output string, mutation model.MutationResult) []string {
	old, repl := mutation.OldName, mutation.NewName
	if old == "" {
		return nil
	}

	unresolved := strings.Contains(output, "undefined:") || strings.Contains(output, "cannot find symbol")
	unused := strings.Contains(output, "declared and not used")
	if !unresolved && !unused {
		return nil
	}

	mentionsOld := mentions(output, old)
	mentionsNew := repl != "" && mentions(output, repl)

	switch {
	case mentionsOld && !mentionsNew:
		return []string{
			fmt.Sprintf("• Looks like references to '%s' remain but the declaration was renamed to '%s'.", old, repl),
			"  The reference is probably outside the renamer's scope (another file of the package, a closure, or a generated file).",
		}
	case mentionsNew:
		return []string{
			fmt.Sprintf("• The new name '%s' appears in errors; check for shadowing or a name clash in the same scope.", repl),
		}
	default:
		return []string{
			"• The mutation likely triggered a type or flow issue not directly mentioning the identifier. Inspect the snippets above.",
		}
	}
}

func mentions(text, name string) bool {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`).MatchString(text)
}

// resolve maps a compiler-reported path to an existing local file, or ""
// when there is none.
func (e *Explainer) resolve(file string) string {
	candidates := []string{file}
	if e.Root != "" {
		switch {
		case e.Mount != "" && strings.HasPrefix(file, e.Mount+"/"):
			rel := strings.TrimPrefix(file, e.Mount+"/")
			candidates = append(candidates, filepath.Join(e.Root, filepath.FromSlash(rel)))
		case !filepath.IsAbs(file):
			candidates = append([]string{filepath.Join(e.Root, file)}, candidates...)
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			if abs, err := filepath.Abs(c); err == nil {
				return abs
			}
			return c
		}
	}
	return ""
}

func (e *Explainer) context() int {
	if e.Context <= 0 {
		return DefaultContext
	}
	return e.Context
}

func orUnknown(n int) string {
	if n <= 0 {
		return "?"
	}
	return strconv.Itoa(n)
}

// tail returns the last n bytes of text, moved forward to a rune boundary.
func tail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	start := len(text) - n
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	return text[start:]
}
