package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/mutafix/internal/model"
)

// NewOperationsCommand creates the "operations" cobra command.
func NewOperationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the supported mutation operations",
		Long: `List the mutation operations accepted by "mutafix mutate --operation".

Examples:
  mutafix operations
  mutafix operations --json`,

		Args: usageArgs(cobra.NoArgs),

		RunE: func(cmd *cobra.Command, args []string) error {
			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), operationsJSON())
			}
			writeOperationsTable(cmd.OutOrStdout())
			return nil
		},
	}
}

// operationJSON is the JSON output structure for one operation.
type operationJSON struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	model.OperationInfo
}

func operationsJSON() map[string][]operationJSON {
	ops := model.AllOperations()
	result := make([]operationJSON, 0, len(ops))
	for _, op := range ops {
		result = append(result, operationJSON{
			Name:          op.String(),
			Default:       op == model.DefaultOperation,
			OperationInfo: op.Describe(),
		})
	}
	return map[string][]operationJSON{"operations": result}
}

// writeOperationsTable renders the operations as a table:
//
//	+-------------------+--------------------+----------------------------------+
//	| OPERATION         | TARGET             | DESCRIPTION                      |
//	+-------------------+--------------------+----------------------------------+
//	| rename-local *    | local variable     | Rename a local variable and ...  |
func writeOperationsTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Operation", "Target", "Description"})
	table.SetAutoWrapText(false)

	rows := make([][]string, 0, len(model.AllOperations()))
	for _, op := range model.AllOperations() {
		name := op.String()
		if op == model.DefaultOperation {
			name += " *"
		}
		info := op.Describe()
		rows = append(rows, []string{name, info.Label, info.Help})
	}
	table.AppendBulk(rows)
	table.SetCaption(true, "* default operation")
	table.Render()
}
