// Package cli implements the cobra-based CLI commands for mutafix.
//
// Each subcommand (mutate, operations, fixture, clean, report, sample) is
// defined in its own file within this package. This file defines the root
// command that serves as the parent for all subcommands and handles global
// flags, logging and exit codes.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command output (and errors) to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool
)

// logger is built in PersistentPreRunE. It stays a no-op logger until then,
// so helpers can log safely from tests that never run the root command.
var logger = zap.NewNop()

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mutafix",
		Short: "Metamorphic mutation harness for Go projects",
		Long: `mutafix applies one refactoring-style mutation to a Go source file and checks
whether the project still builds.

A session builds the project first (baseline), mutates the first candidate
file that offers a target, builds again and reports a verdict. The working
tree is restored afterwards unless --keep-mutation is given.`,

		// Errors are printed by Execute in text or JSON form.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(verbose, jsonOutput)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	// Unknown flags and bad flag values are usage errors. Subcommands
	// inherit this function from the root.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewMutateCommand())
	rootCmd.AddCommand(NewOperationsCommand())
	rootCmd.AddCommand(NewFixtureCommand())
	rootCmd.AddCommand(NewCleanCommand())
	rootCmd.AddCommand(NewReportCommand())
	rootCmd.AddCommand(NewSampleCommand())

	return rootCmd
}

// newLogger builds the process logger: zap's production config on stderr,
// at debug level with --verbose. Console encoding is used unless JSON
// output was requested.
func newLogger(verbose, jsonLogs bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !jsonLogs {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.DisableStacktrace = true
	return config.Build()
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError values carry their own exit code. A CLIError without a message
// only sets the exit code; the command has already reported its outcome.
// Other errors exit with code 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(handleError(os.Stderr, err)))
	}
}

// handleError prints err (unless it is a silent CLIError) and returns the
// exit code for it.
func handleError(w io.Writer, err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Message != "" || cliErr.Err != nil {
			printError(w, cliErr.Message, cliErr.Err)
		}
		return cliErr.Code
	}

	printError(w, err.Error(), nil)
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout is reserved for
		// successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// usageError marks err as a command-line mistake, which exits with code 2.
func usageError(err error) error {
	return model.WrapCLIError(model.ExitBaselineFailed, "invalid usage", err)
}

// usageArgs wraps a positional-argument validator so that its errors are
// usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// exitWith returns a silent CLIError that makes Execute exit with code.
// It returns nil for ExitSuccess.
func exitWith(code model.ExitCode) error {
	if code == model.ExitSuccess {
		return nil
	}
	return &model.CLIError{Code: code}
}

// VerboseLog writes a debug trace line through the CLI logger. It is only
// visible with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Sugar().Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
