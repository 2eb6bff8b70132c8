package model

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies a source mutation that the harness can apply.
// Every operation except flip-if's control-flow swap is a pure rewrite that
// keeps the program's observable behavior identical; flip-if also preserves
// behavior because it negates the condition while swapping the branches.
type Operation string

const (
	// OpRenameLocal renames one local variable and all of its uses.
	OpRenameLocal Operation = "rename-local"

	// OpRenameParam renames one function or function-literal parameter.
	OpRenameParam Operation = "rename-param"

	// OpFlipIf negates an if condition and swaps its branches.
	OpFlipIf Operation = "flip-if"

	// OpDoubleNegateIf wraps an if condition in two logical negations.
	OpDoubleNegateIf Operation = "double-negate-if"

	// OpSimplifyNegation removes pairs of stacked negations from an if
	// condition, e.g. !(!(!(!(n > 3)))) becomes n > 3.
	OpSimplifyNegation Operation = "simplify-negation"

	// OpInsertComment prepends a marker comment to the file.
	OpInsertComment Operation = "insert-comment"
)

// DefaultOperation is used when neither flags nor config name one.
const DefaultOperation = OpRenameLocal

// AllOperations returns every supported operation in display order.
func AllOperations() []Operation {
	return []Operation{
		OpRenameLocal,
		OpRenameParam,
		OpFlipIf,
		OpDoubleNegateIf,
		OpSimplifyNegation,
		OpInsertComment,
	}
}

// String returns the string representation of Operation.
func (o Operation) String() string {
	return string(o)
}

// IsValid checks whether the Operation value is one of the
// predefined operations.
func (o Operation) IsValid() bool {
	switch o {
	case OpRenameLocal, OpRenameParam, OpFlipIf, OpDoubleNegateIf,
		OpSimplifyNegation, OpInsertComment:
		return true
	default:
		return false
	}
}

// IsRename reports whether the operation renames an identifier.
func (o Operation) IsRename() bool {
	return o == OpRenameLocal || o == OpRenameParam
}

// ParseOperation converts a string to an Operation (case-insensitive).
// Returns an error if the string does not match any valid operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if !op.IsValid() {
		names := make([]string, 0, len(AllOperations()))
		for _, known := range AllOperations() {
			names = append(names, known.String())
		}
		return "", fmt.Errorf("invalid operation: %q (valid: %s)", s, strings.Join(names, ", "))
	}
	return op, nil
}

// OperationInfo carries the human-facing wording for an operation.
type OperationInfo struct {
	// Verb is the past-tense action used in progress output,
	// e.g. "Renamed local variable".
	Verb string `json:"verb"`

	// Label names a single candidate, e.g. "local variable".
	Label string `json:"label"`

	// Help is the one-line description shown by `mutafix operations`.
	Help string `json:"help"`
}

// Describe returns the wording used for progress output and help text.
func (o Operation) Describe() OperationInfo {
	switch o {
	case OpRenameParam:
		return OperationInfo{"Renamed parameter", "parameter",
			"Rename a function or function-literal parameter"}
	case OpFlipIf:
		return OperationInfo{"Flipped if/else", "if-statement",
			"Negate an if condition and swap its branches"}
	case OpDoubleNegateIf:
		return OperationInfo{"Double-negated condition", "if-statement",
			"Wrap an if condition with !(!(...)) (semantics-preserving)"}
	case OpSimplifyNegation:
		return OperationInfo{"Simplified negation", "negated if-statement",
			"Remove redundant pairs of ! from an if condition"}
	case OpInsertComment:
		return OperationInfo{"Inserted comment", "insertion point",
			"Insert a marker comment at the top of the file"}
	default:
		return OperationInfo{"Renamed local variable", "local variable",
			"Rename a local variable and its uses"}
	}
}

// RenameSuffix is appended to identifiers by the rename operations.
// Identifiers that already carry it are never picked again, so repeated
// runs over the same file make progress.
const RenameSuffix = "_mt"

// MutationResult describes the outcome of a single mutation attempt.
type MutationResult struct {
	// File is the path the mutator was asked to modify.
	File string `json:"file"`

	// OldName is the original identifier for renames, or a short marker
	// such as "if" for structural operations. Empty when nothing changed.
	OldName string `json:"old,omitempty"`

	// NewName is the replacement identifier or a marker like
	// "if_negated_swapped". Empty when nothing changed.
	NewName string `json:"new,omitempty"`

	// Changed is true only if the file on disk was rewritten.
	Changed bool `json:"changed"`
}

// Unchanged returns a MutationResult for a file that was left untouched.
func Unchanged(file string) MutationResult {
	return MutationResult{File: file}
}

// ChangeText formats the "old -> new" suffix used in progress output.
// It returns an empty string when neither name is set.
func (r MutationResult) ChangeText() string {
	if r.OldName == "" && r.NewName == "" {
		return ""
	}
	old, repl := r.OldName, r.NewName
	if old == "" {
		old = "-"
	}
	if repl == "" {
		repl = "-"
	}
	return fmt.Sprintf(": %s -> %s", old, repl)
}

// BuildResult captures a single build invocation.
type BuildResult struct {
	// Success is true when the build command exited with code 0.
	Success bool `json:"success"`

	// Cmd is the argv that was executed.
	Cmd []string `json:"cmd"`

	// ExitCode is the process exit code. ExitCodeTimeout marks a build
	// that was killed after exceeding its timeout.
	ExitCode int `json:"exitCode"`

	// Stdout and Stderr hold the captured output streams.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Duration is the wall-clock time of the build.
	Duration time.Duration `json:"duration"`
}

// BuildPhase names a build within a mutation session.
type BuildPhase string

const (
	// PhaseBaseline is the build of the untouched project.
	PhaseBaseline BuildPhase = "baseline"

	// PhaseMutated is the build after the mutation was applied.
	PhaseMutated BuildPhase = "mutated"
)

// String returns the string representation of BuildPhase.
func (p BuildPhase) String() string {
	return string(p)
}

// ExitCodeTimeout is reported for builds that exceeded their timeout,
// matching the convention of coreutils' timeout(1).
const ExitCodeTimeout = 124

// Summary renders the build result as a multi-line block for terminal output.
func (b BuildResult) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: %s\n", strings.Join(b.Cmd, " "))
	fmt.Fprintf(&sb, "Exit: %d\n", b.ExitCode)
	fmt.Fprintf(&sb, "Success: %t\n", b.Success)
	fmt.Fprintf(&sb, "Duration: %s\n", b.Duration.Round(time.Millisecond))
	sb.WriteString("---- STDOUT ----\n")
	sb.WriteString(strings.TrimRight(b.Stdout, "\n"))
	sb.WriteString("\n---- STDERR ----\n")
	sb.WriteString(strings.TrimRight(b.Stderr, "\n"))
	return sb.String()
}

// Head returns at most n leading lines of text. It returns "" for empty
// text or non-positive n.
func Head(text string, n int) string {
	if text == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

// Verdict is the overall outcome of a mutation session.
type Verdict string

const (
	// VerdictOK means a mutation was applied and the project still builds.
	VerdictOK Verdict = "ok"

	// VerdictNoMutation means no candidate was found in any inspected file.
	VerdictNoMutation Verdict = "no_mutation"

	// VerdictBaselineFailed means the project did not build before
	// mutation, so no mutation was attempted.
	VerdictBaselineFailed Verdict = "baseline_failed"

	// VerdictMutatedBuildFailed means the mutation broke the build.
	VerdictMutatedBuildFailed Verdict = "mutated_build_failed"
)

// String returns the string representation of Verdict.
func (v Verdict) String() string {
	return string(v)
}

// BuildabilityPreserved reports whether the verdict means the project
// still builds (or was never touched).
func (v Verdict) BuildabilityPreserved() bool {
	return v == VerdictOK || v == VerdictNoMutation
}

// ComputeVerdict derives the verdict from the session's partial results.
// Any argument may be nil when that phase did not run.
//
// Precedence:
//  1. baseline present and failed → baseline_failed
//  2. mutation absent or unchanged, and no mutated build → no_mutation
//  3. mutated build succeeded → ok
//  4. mutated build failed → mutated_build_failed
//  5. otherwise → ok
func ComputeVerdict(baseline *BuildResult, mutation *MutationResult, mutated *BuildResult) Verdict {
	switch {
	case baseline != nil && !baseline.Success:
		return VerdictBaselineFailed
	case (mutation == nil || !mutation.Changed) && mutated == nil:
		return VerdictNoMutation
	case mutated != nil && mutated.Success:
		return VerdictOK
	case mutated != nil && !mutated.Success:
		return VerdictMutatedBuildFailed
	default:
		return VerdictOK
	}
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred. It is also
	// returned when no files match and when the mutated build fails under
	// --fail-on-build.
	ExitGeneralError ExitCode = 1

	// ExitBaselineFailed indicates the project did not build before
	// mutation, or the command was invoked incorrectly.
	ExitBaselineFailed ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitInvalidConfig indicates a configuration file or flag value
	// could not be used.
	ExitInvalidConfig ExitCode = 4

	// ExitGitError indicates a Git operation (stash, reset, worktree) failed.
	ExitGitError ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
