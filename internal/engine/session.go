// Package engine runs a mutation session: build the project, apply one
// mutation to the first file that has a candidate, build again and decide
// whether buildability was preserved.
//
// The session never leaves the repository modified unless asked to. The
// working tree is restored through a workspace.Guard, or the whole session
// runs inside a throwaway git worktree when isolation is requested.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinji-kodama/mutafix/internal/build"
	"github.com/shinji-kodama/mutafix/internal/diagnostics"
	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/mutate"
	"github.com/shinji-kodama/mutafix/internal/report"
	"github.com/shinji-kodama/mutafix/internal/scan"
	"github.com/shinji-kodama/mutafix/internal/workspace"
)

// Builder builds the project once. build.Runner and docker.Builder both
// satisfy it.
type Builder interface {
	Build(ctx context.Context) (model.BuildResult, error)
}

// BuilderFactory returns a Builder for the project in dir. It is called
// once per session, after isolation decided where the project lives.
type BuilderFactory func(dir, runID string) Builder

// Options configures one session.
type Options struct {
	// Repo is the project root.
	Repo string

	Operation model.Operation

	// Include and Exclude are gitignore-style patterns (see scan.Options).
	Include      []string
	Exclude      []string
	IncludeTests bool

	// Limit caps how many candidate files are tried. Values below 1 mean 1.
	Limit int

	PickIndex  *int
	RandomSeed *int64

	// KeepMutation leaves the mutated file (or the isolated worktree) on
	// disk after the session.
	KeepMutation bool

	// Isolate runs the session in a detached git worktree of HEAD.
	Isolate bool

	// FailOnBuild turns a failed mutated build into exit code 1.
	FailOnBuild bool

	// DiagnosticsLines caps the output heads copied into the report.
	DiagnosticsLines int

	// ReportPath, when set, is where the report is written.
	ReportPath   string
	ReportFormat report.Format

	// RunID identifies the session. A random UUID is used when empty.
	RunID string
}

// Outcome is the result of a session.
type Outcome struct {
	RunID   string
	Verdict model.Verdict

	// ExitCode is the process exit code the CLI should use.
	ExitCode model.ExitCode

	// Files are the candidate files that were considered, relative to the
	// repository. Tried is how many of them were handed to the mutator.
	Files []string
	Tried int

	// Target is the repository-relative file that was mutated, or the
	// first candidate when nothing was.
	Target string

	Mutation *model.MutationResult
	Baseline *model.BuildResult
	Mutated  *model.BuildResult

	// Diagnostics explains a failed mutated build.
	Diagnostics string

	Report     *report.Report
	ReportPath string

	// KeptWorktree is the path of an isolated worktree left on disk
	// because KeepMutation was set.
	KeptWorktree string
}

// Session carries the collaborators of a mutation session.
type Session struct {
	// NewBuilder creates the project builder.
	NewBuilder BuilderFactory

	// Out receives progress lines. Nil discards them.
	Out io.Writer

	// Mount is the directory the project is mounted at when builds run in
	// a container. It lets diagnostics map compiler paths back to the host.
	Mount string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger

	// Now is used for report timestamps and comment markers. Defaults to
	// time.Now.
	Now func() time.Time
}

// Run executes a session. Build failures are not errors; they show up in
// the Outcome's verdict and exit code. An error is returned when the
// session itself could not run: unreadable repository, git failures,
// an undetectable build tool, an unreachable Docker daemon.
//
// The workspace is restored before Run returns, even on error, unless
// opts.KeepMutation is set.
func (s *Session) Run(ctx context.Context, opts Options) (out *Outcome, err error) {
	logger := s.logger()
	w := s.Out
	if w == nil {
		w = io.Discard
	}

	repo, err := filepath.Abs(opts.Repo)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if info, statErr := os.Stat(repo); statErr != nil || !info.IsDir() {
		return nil, model.NewCLIError(model.ExitBaselineFailed,
			fmt.Sprintf("repository path not found: %s", repo))
	}

	if opts.Operation == "" {
		opts.Operation = model.DefaultOperation
	}
	if opts.Limit < 1 {
		opts.Limit = 1
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	out = &Outcome{RunID: runID}
	logger = logger.With(zap.String("runID", runID), zap.String("operation", opts.Operation.String()))

	mutator, err := mutate.New(opts.Operation, mutate.Options{
		PickIndex:  opts.PickIndex,
		RandomSeed: opts.RandomSeed,
		Now:        s.Now,
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid operation", err)
	}

	// Decide where the session works and how it is undone.
	workDir := repo
	var guard workspace.Guard
	if opts.Isolate {
		iso, isoErr := workspace.Isolate(ctx, repo, logger)
		if isoErr != nil {
			return nil, isoErr
		}
		workDir = iso.Dir
		defer func() {
			if opts.KeepMutation {
				if out != nil {
					out.KeptWorktree = iso.Root
				}
				fmt.Fprintf(w, "--keep-mutation was set: isolated worktree left at %s\n", iso.Root)
				return
			}
			if cleanErr := iso.Cleanup(); cleanErr != nil {
				logger.Warn("Failed to remove isolated worktree", zap.String("path", iso.Root), zap.Error(cleanErr))
				if err == nil {
					err = cleanErr
				}
			}
		}()
	} else {
		guard = workspace.NewGuard(repo, logger)
		if prepErr := guard.Prepare(ctx); prepErr != nil {
			return nil, prepErr
		}
		defer func() {
			if opts.KeepMutation {
				fmt.Fprintln(w, "--keep-mutation was set: leaving changes on disk.")
				if g, ok := guard.(interface{ Stashed() bool }); ok && g.Stashed() {
					fmt.Fprintf(w, "Local changes are stashed as %q; run `git stash pop` once the mutation is reviewed.\n",
						workspace.StashMessage)
				}
				return
			}
			// The session context may already be cancelled here.
			if restoreErr := guard.Restore(context.Background()); restoreErr != nil {
				logger.Warn("Failed to restore workspace", zap.Error(restoreErr))
				err = errors.Join(err, restoreErr)
			}
		}()
	}

	files, err := scan.Find(workDir, scan.Options{
		Include:      opts.Include,
		Exclude:      opts.Exclude,
		IncludeTests: opts.IncludeTests,
		Gitignore:    scan.LoadGitignore(workDir),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", workDir, err)
	}
	out.Files = files
	logger.Debug("Scanned candidate files", zap.Int("count", len(files)))

	if len(files) == 0 {
		fmt.Fprintln(w, "No files matched.")
		out.ExitCode = model.ExitGeneralError
		return out, s.finish(w, repo, opts, out)
	}
	if len(files) > opts.Limit {
		files = files[:opts.Limit]
	}
	out.Target = files[0]

	builder := s.NewBuilder(workDir, runID)

	// 1) Baseline build before any mutation, so a broken project is not
	// blamed on the mutation.
	fmt.Fprintln(w, "== Baseline build (pre-mutation) ==")
	baseline, err := builder.Build(build.WithPhase(ctx, model.PhaseBaseline))
	if err != nil {
		return nil, asBuildError(model.ExitBaselineFailed, "baseline build could not run", err)
	}
	out.Baseline = &baseline
	fmt.Fprintln(w, baseline.Summary())
	if !baseline.Success {
		fmt.Fprintln(w, "\nBaseline build failed. Aborting mutation to avoid false signals.")
		out.ExitCode = model.ExitBaselineFailed
		return out, s.finish(w, repo, opts, out)
	}

	// 2) Try the files in order and stop at the first actual mutation.
	info := opts.Operation.Describe()
	for _, rel := range files {
		path := filepath.Join(workDir, filepath.FromSlash(rel))
		if guard != nil {
			if err := guard.Remember(path); err != nil {
				return nil, err
			}
		}

		out.Tried++
		result, err := mutator.Mutate(path)
		if err != nil {
			return nil, fmt.Errorf("failed to mutate %s: %w", rel, err)
		}
		if !result.Changed {
			fmt.Fprintf(w, "No suitable %s found in %s — trying next file…\n", info.Label, rel)
			continue
		}

		fmt.Fprintf(w, "%s in %s%s\n", info.Verb, rel, result.ChangeText())
		out.Target = rel
		out.Mutation = &result
		break
	}

	if out.Mutation == nil {
		fmt.Fprintf(w, "Tried %d file(s), no suitable %s found.\n", out.Tried, info.Label)
		out.Mutation = &model.MutationResult{File: out.Target}
		out.ExitCode = model.ExitSuccess
		return out, s.finish(w, repo, opts, out)
	}

	// 3) Build the mutated project.
	fmt.Fprintln(w, "\n== Mutated build (post-mutation) ==")
	mutated, err := builder.Build(build.WithPhase(ctx, model.PhaseMutated))
	if err != nil {
		return nil, asBuildError(model.ExitGeneralError, "mutated build could not run", err)
	}
	out.Mutated = &mutated
	fmt.Fprintln(w, mutated.Summary())

	if mutated.Success {
		out.ExitCode = model.ExitSuccess
	} else {
		explainer := &diagnostics.Explainer{
			Root:    workDir,
			Mount:   s.Mount,
			Context: diagnostics.DefaultContext,
		}
		out.Diagnostics = explainer.Explain(mutated, *out.Mutation)
		out.ExitCode = model.ExitSuccess
		if opts.FailOnBuild {
			out.ExitCode = model.ExitGeneralError
		}
	}
	return out, s.finish(w, repo, opts, out)
}

// finish computes the verdict, writes the report and prints the closing
// lines.
func (s *Session) finish(w io.Writer, repo string, opts Options, out *Outcome) error {
	out.Report = report.New(report.Input{
		RunID:            out.RunID,
		Repo:             repo,
		Operation:        opts.Operation,
		Target:           out.Target,
		Mutation:         out.Mutation,
		Baseline:         out.Baseline,
		Mutated:          out.Mutated,
		DiagnosticsLines: opts.DiagnosticsLines,
		Diagnostics:      out.Diagnostics,
		Now:              s.Now,
	})
	out.Verdict = out.Report.Verdict

	switch out.Verdict {
	case model.VerdictOK:
		if out.Mutated != nil {
			fmt.Fprintln(w, "\nBuildability preserved after mutation.")
		}
	case model.VerdictMutatedBuildFailed:
		fmt.Fprintln(w, "\nMutation caused build failure.")
		if out.Diagnostics != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, out.Diagnostics)
		}
	}

	if opts.ReportPath == "" {
		return nil
	}
	format := opts.ReportFormat
	if format == "" {
		format = report.FormatForPath(opts.ReportPath, report.FormatJSON)
	}
	if err := out.Report.Write(opts.ReportPath, format); err != nil {
		return err
	}
	abs, err := filepath.Abs(opts.ReportPath)
	if err != nil {
		abs = opts.ReportPath
	}
	out.ReportPath = abs
	fmt.Fprintf(w, "\nWrote %s report → %s\n", format, abs)
	return nil
}

// asBuildError keeps CLIErrors from the builder (e.g. Docker failures)
// and gives everything else the supplied exit code.
func asBuildError(code model.ExitCode, message string, err error) error {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	return model.WrapCLIError(code, message, err)
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
