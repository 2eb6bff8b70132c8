package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/build"
	"github.com/shinji-kodama/mutafix/internal/config"
	"github.com/shinji-kodama/mutafix/internal/docker"
	"github.com/shinji-kodama/mutafix/internal/engine"
	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/report"
)

// mutateFlags holds the flag values for the mutate command. Only flags the
// user actually set override the config file.
type mutateFlags struct {
	repo             string
	configPath       string
	operation        string
	fileGlobs        []string
	excludes         []string
	includeTests     bool
	limit            int
	pickIndex        int
	randomSeed       int64
	keepMutation     bool
	jsonOut          string
	reportFormat     string
	diagnosticsLines int
	failOnBuild      bool
	isolate          bool
	docker           bool
	dockerImage      string
	dockerPull       bool
	timeout          string
}

// NewMutateCommand creates the "mutate" cobra command.
func NewMutateCommand() *cobra.Command {
	flags := &mutateFlags{}

	cmd := &cobra.Command{
		Use:   "mutate",
		Short: "Apply one mutation and check that the project still builds",
		Long: `Apply one mutation to the first candidate file and rebuild the project.

The project is built before the mutation (baseline). If the baseline fails,
nothing is mutated and the command exits with code 2. Otherwise candidate
files are tried in order until one offers a target for the operation; the
project is rebuilt and the verdict is printed.

Settings are read from .mutafix.yaml, .mutafix.yml or .mutafix.json in the
repository. Flags override the file.

Exit codes:
  0  buildability preserved, nothing to mutate, or mutated build failed
     without --fail-on-build
  1  no files matched, or mutated build failed with --fail-on-build
  2  baseline build failed, or invalid usage
  3  Docker not available (with --docker)
  4  invalid configuration
  5  git failure (stash, reset, worktree)

Examples:
  mutafix mutate --repo .
  mutafix mutate --repo . --operation flip-if --pick-index 2
  mutafix mutate --repo . --file-glob 'internal/**/*.go' --limit 5 --json-out out/report.json
  mutafix mutate --repo . --isolate --docker --docker-image golang:1.25`,

		Args: usageArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutate(cmd.Context(), cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.repo, "repo", "", "Path to the project to mutate (required)")
	f.StringVar(&flags.configPath, "config", "", "Config file to use instead of the repository's .mutafix file")
	f.StringVar(&flags.operation, "operation", model.DefaultOperation.String(),
		"Mutation to apply (see `mutafix operations`)")
	f.StringArrayVar(&flags.fileGlobs, "file-glob", nil, "Candidate file pattern, gitignore syntax (repeatable)")
	f.StringArrayVar(&flags.excludes, "exclude", nil, "Pattern of files to skip, gitignore syntax (repeatable)")
	f.BoolVar(&flags.includeTests, "include-tests", false, "Also mutate _test.go files")
	f.IntVar(&flags.limit, "limit", config.DefaultLimit, "Maximum number of candidate files to try")
	f.IntVar(&flags.pickIndex, "pick-index", 0, "Pick the N-th candidate in the file (0-based, clamped)")
	f.Int64Var(&flags.randomSeed, "random-seed", 0, "Pick a candidate pseudo-randomly with this seed")
	f.BoolVar(&flags.keepMutation, "keep-mutation", false, "Leave the mutated file on disk")
	f.StringVar(&flags.jsonOut, "json-out", "", "Write the session report to this file")
	f.StringVar(&flags.reportFormat, "report-format", config.DefaultReportFormat,
		"Report file format: json or yaml (default: from the --json-out extension)")
	f.IntVar(&flags.diagnosticsLines, "diagnostics-lines", config.DefaultDiagnosticsLines,
		"Lines of build output kept in the report")
	f.BoolVar(&flags.failOnBuild, "fail-on-build", false, "Exit with code 1 when the mutated build fails")
	f.BoolVar(&flags.isolate, "isolate", false, "Run in a temporary git worktree of HEAD")
	f.BoolVar(&flags.docker, "docker", false, "Build inside a Docker container")
	f.StringVar(&flags.dockerImage, "docker-image", config.DefaultDockerImage, "Image used for --docker builds")
	f.BoolVar(&flags.dockerPull, "docker-pull", false, "Pull the build image even if it exists locally")
	f.StringVar(&flags.timeout, "timeout", "", "Build timeout, e.g. 10m (default 30m)")

	return cmd
}

// runMutate resolves the configuration, wires the builder and runs the
// session.
func runMutate(ctx context.Context, cmd *cobra.Command, flags *mutateFlags) error {
	if flags.repo == "" {
		return usageError(errors.New(`required flag "--repo" not set`))
	}
	repo, err := filepath.Abs(flags.repo)
	if err != nil {
		return model.WrapCLIError(model.ExitBaselineFailed, "invalid --repo", err)
	}

	cfg, err := loadMutateConfig(repo, flags.configPath)
	if err != nil {
		return err
	}
	applyMutateFlags(cfg, flags, cmd.Flags().Changed)
	if err := cfg.Validate(); err != nil {
		return err
	}
	VerboseLog("Resolved configuration: operation=%s limit=%d docker=%t isolate=%t",
		cfg.Operation, cfg.Limit, cfg.Build.Docker.Enabled, cfg.Isolate)

	timeout, _ := cfg.BuildTimeout()
	runID := uuid.NewString()

	session := &engine.Session{
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	}
	// In JSON mode stdout carries only the report.
	if IsJSONOutput() {
		session.Out = cmd.ErrOrStderr()
	}

	if cfg.Build.Docker.Enabled {
		client, err := docker.NewClient(logger)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx); err != nil {
			return err
		}
		VerboseLog("Connected to Docker daemon at %s", client.Host())

		session.Mount = docker.MountPoint
		session.NewBuilder = func(dir, id string) engine.Builder {
			return &docker.Builder{
				Client:       client,
				Dir:          dir,
				Image:        cfg.Build.Docker.Image,
				Pull:         cfg.Build.Docker.Pull,
				SkipTests:    cfg.SkipTests(),
				CompileTests: cfg.IncludeTests,
				Timeout:      timeout,
				Env:          cfg.Build.Env,
				Labels: docker.RunLabels{
					RunID:     id,
					Operation: cfg.MustOperation(),
					Repo:      repo,
					CreatedAt: time.Now(),
				},
				Logger: logger,
			}
		}
	} else {
		session.NewBuilder = func(dir, _ string) engine.Builder {
			return &build.Runner{
				Dir:          dir,
				SkipTests:    cfg.SkipTests(),
				CompileTests: cfg.IncludeTests,
				Timeout:      timeout,
				Env:          cfg.Build.Env,
				Logger:       logger,
			}
		}
	}

	opts, err := sessionOptions(cfg, repo, flags.jsonOut, cmd.Flags().Changed("report-format"))
	if err != nil {
		return err
	}
	opts.RunID = runID

	outcome, err := session.Run(ctx, opts)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		if err := printJSON(cmd.OutOrStdout(), outcome.Report); err != nil {
			return err
		}
	} else {
		printVerdictLine(cmd.OutOrStdout(), outcome.Verdict, outcome.Report.BuildabilityPreserved)
	}
	return exitWith(outcome.ExitCode)
}

// loadMutateConfig reads the explicit config file, or the repository's
// file if there is one.
func loadMutateConfig(repo, path string) (*config.Config, error) {
	if path == "" {
		return config.Load(repo)
	}
	cfg := config.Default()
	if err := config.LoadFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyMutateFlags copies every flag the user set onto cfg. changed reports
// whether a flag was given on the command line.
func applyMutateFlags(cfg *config.Config, flags *mutateFlags, changed func(string) bool) {
	if changed("operation") {
		cfg.Operation = flags.operation
	}
	if changed("file-glob") {
		cfg.Include = flags.fileGlobs
	}
	if changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, flags.excludes...)
	}
	if changed("include-tests") {
		cfg.IncludeTests = flags.includeTests
	}
	if changed("limit") {
		cfg.Limit = flags.limit
	}
	if changed("pick-index") {
		v := flags.pickIndex
		cfg.PickIndex = &v
	}
	if changed("random-seed") {
		v := flags.randomSeed
		cfg.RandomSeed = &v
	}
	if changed("keep-mutation") {
		cfg.KeepMutation = flags.keepMutation
	}
	if changed("report-format") {
		cfg.ReportFormat = flags.reportFormat
	}
	if changed("diagnostics-lines") {
		cfg.DiagnosticsLines = flags.diagnosticsLines
	}
	if changed("fail-on-build") {
		cfg.FailOnBuild = flags.failOnBuild
	}
	if changed("isolate") {
		cfg.Isolate = flags.isolate
	}
	if changed("docker") {
		cfg.Build.Docker.Enabled = flags.docker
	}
	if changed("docker-image") {
		cfg.Build.Docker.Image = flags.dockerImage
	}
	if changed("docker-pull") {
		cfg.Build.Docker.Pull = flags.dockerPull
	}
	if changed("timeout") {
		cfg.Build.Timeout = flags.timeout
	}
}

// sessionOptions turns a validated config into engine options. The report
// format follows the --json-out extension unless --report-format was given.
func sessionOptions(cfg *config.Config, repo, reportPath string, formatFlagSet bool) (engine.Options, error) {
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return engine.Options{}, model.WrapCLIError(model.ExitInvalidConfig, "invalid configuration", err)
	}
	if reportPath != "" && !formatFlagSet {
		format = report.FormatForPath(reportPath, format)
	}

	return engine.Options{
		Repo:             repo,
		Operation:        cfg.MustOperation(),
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		IncludeTests:     cfg.IncludeTests,
		Limit:            cfg.Limit,
		PickIndex:        cfg.PickIndex,
		RandomSeed:       cfg.RandomSeed,
		KeepMutation:     cfg.KeepMutation,
		Isolate:          cfg.Isolate,
		FailOnBuild:      cfg.FailOnBuild,
		DiagnosticsLines: cfg.DiagnosticsLines,
		ReportPath:       reportPath,
		ReportFormat:     format,
	}, nil
}

// printVerdictLine writes the closing line of a session or report.
func printVerdictLine(w io.Writer, verdict model.Verdict, preserved bool) {
	fmt.Fprintf(w, "Verdict: %s (buildability preserved: %t)\n", verdict, preserved)
}
