package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/fixture"
	"github.com/shinji-kodama/mutafix/internal/model"
)

// fixtureFlags holds the flag values for the fixture command.
type fixtureFlags struct {
	variant   string
	module    string
	goVersion string
	force     bool
}

// NewFixtureCommand creates the "fixture" cobra command.
func NewFixtureCommand() *cobra.Command {
	flags := &fixtureFlags{}

	variants := make([]string, 0, len(fixture.Variants()))
	for _, v := range fixture.Variants() {
		variants = append(variants, fmt.Sprintf("  %-8s %s", v, v.Describe()))
	}

	cmd := &cobra.Command{
		Use:   "fixture <dir>",
		Short: "Generate a small Go project to mutate",
		Long: `Generate a Go module with a sample program and a .mutafix.yaml in <dir>.

Variants:
` + strings.Join(variants, "\n") + `

Examples:
  mutafix fixture ./tmp/app
  mutafix fixture ./tmp/target --variant target --module example.com/target`,

		Args: usageArgs(cobra.ExactArgs(1)),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixture(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.variant, "variant", string(fixture.VariantApp), "Fixture program to generate")
	cmd.Flags().StringVar(&flags.module, "module", fixture.DefaultModule, "Module path written to go.mod")
	cmd.Flags().StringVar(&flags.goVersion, "go-version", fixture.DefaultGoVersion, "go directive written to go.mod")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Overwrite existing files")

	return cmd
}

func runFixture(cmd *cobra.Command, dir string, flags *fixtureFlags) error {
	variant, err := fixture.ParseVariant(flags.variant)
	if err != nil {
		return model.WrapCLIError(model.ExitBaselineFailed, "invalid --variant", err)
	}

	written, err := fixture.Write(dir, fixture.Options{
		Variant:   variant,
		Module:    flags.module,
		GoVersion: flags.goVersion,
		Force:     flags.force,
	})
	if errors.Is(err, os.ErrExist) {
		return model.WrapCLIError(model.ExitGeneralError, "refusing to overwrite fixture", err)
	}
	if err != nil {
		return err
	}
	VerboseLog("Wrote %d fixture file(s) to %s", len(written), dir)

	w := cmd.OutOrStdout()
	if IsJSONOutput() {
		return printJSON(w, map[string]interface{}{
			"dir":     dir,
			"variant": variant,
			"files":   written,
		})
	}

	fmt.Fprintf(w, "Created %s fixture in %s\n", variant, dir)
	for _, path := range written {
		fmt.Fprintf(w, "  %s\n", path)
	}
	fmt.Fprintf(w, "\nTry: mutafix mutate --repo %s\n", dir)
	return nil
}
