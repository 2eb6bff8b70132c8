package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/model"
	"github.com/shinji-kodama/mutafix/internal/report"
)

// reportFlags holds the flag values for the report command.
type reportFlags struct {
	failOnBuild bool
}

// NewReportCommand creates the "report" cobra command.
func NewReportCommand() *cobra.Command {
	flags := &reportFlags{}

	cmd := &cobra.Command{
		Use:   "report <file>",
		Short: "Summarize a session report written by --json-out",
		Long: `Read a JSON or YAML report written by "mutafix mutate --json-out" and print
a summary. The exit code follows the stored verdict the same way mutate
does, so CI can gate on a report produced earlier.

Examples:
  mutafix report out/report.json
  mutafix report out/report.yaml --json
  mutafix report out/report.json --fail-on-build`,

		Args: usageArgs(cobra.ExactArgs(1)),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.OutOrStdout(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.failOnBuild, "fail-on-build", false,
		"Exit with code 1 when the report records a failed mutated build")

	return cmd
}

func runReport(w io.Writer, path string, flags *reportFlags) error {
	r, err := report.Read(path)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to read report %s", path), err)
	}

	if IsJSONOutput() {
		if err := printJSON(w, r); err != nil {
			return err
		}
	} else {
		writeReportTable(w, r)
		if r.Diagnostics != "" {
			fmt.Fprintln(w)
			fmt.Fprintln(w, r.Diagnostics)
		}
		printVerdictLine(w, r.Verdict, r.BuildabilityPreserved)
	}
	return exitWith(verdictExitCode(r.Verdict, flags.failOnBuild))
}

// verdictExitCode maps a verdict to the exit code mutate uses for it.
func verdictExitCode(v model.Verdict, failOnBuild bool) model.ExitCode {
	switch v {
	case model.VerdictBaselineFailed:
		return model.ExitBaselineFailed
	case model.VerdictMutatedBuildFailed:
		if failOnBuild {
			return model.ExitGeneralError
		}
		return model.ExitSuccess
	default:
		return model.ExitSuccess
	}
}

// writeReportTable renders the key fields of a report as a two-column
// table.
func writeReportTable(w io.Writer, r *report.Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(false)

	rows := [][]string{
		{"Run", r.RunID},
		{"Repository", r.Repo},
		{"Operation", r.Operation},
		{"Target", valueOrDash(r.TargetFile)},
	}
	if r.Mutation.Changed {
		rows = append(rows, []string{"Mutation", fmt.Sprintf("%s → %s", r.Mutation.Old, r.Mutation.New)})
	} else {
		rows = append(rows, []string{"Mutation", "-"})
	}
	rows = append(rows,
		[]string{"Baseline build", buildCell(r.BaselineBuild)},
		[]string{"Mutated build", buildCell(r.MutatedBuild)},
		[]string{"Generated", r.GeneratedAt.Format(time.RFC3339)},
	)
	table.AppendBulk(rows)
	table.Render()
}

func buildCell(b *report.Build) string {
	if b == nil {
		return "-"
	}
	status := "ok"
	if !b.Success {
		status = "failed (exit " + strconv.Itoa(b.ExitCode) + ")"
	}
	return fmt.Sprintf("%s in %s", status, (time.Duration(b.DurationMS) * time.Millisecond).String())
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
