package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/sample"
)

// NewSampleCommand creates the "sample" cobra command. It runs the same
// program as cmd/sample-program.
func NewSampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Run the deterministic sample program",
		Long: `Run the sample program that the fixtures are derived from. It prints a
greeting, three fruit names in upper case, a short counter and a sum.`,

		Args: usageArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			return sample.Run(cmd.OutOrStdout())
		},
	}
}
