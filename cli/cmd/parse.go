package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/restcore/cli/output"
	"github.com/fluxbase-eu/restcore/internal/filter"
)

var parseCmd = &cobra.Command{
	Use:   "parse [filter]",
	Short: "Parse a filter expression into clauses",
	Long: `Normalize a filter expression and show the clauses and logic operators
it is made of. Parsing never fails; clauses without a known operator are
shown with an empty operator and rejected later by the compiler.

Examples:
  restcore parse "age|gt|30;name|like|bo"
  restcore parse "role=in=(ADMIN,USER),email|ne|null" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

// parsedClause is the printable form of one expression node.
type parsedClause struct {
	Field    string `json:"field" yaml:"field"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value" yaml:"value"`
	Logic    string `json:"logic,omitempty" yaml:"logic,omitempty"`
}

func runParse(cmd *cobra.Command, args []string) error {
	rf := filter.NewRequestFilter().SetFilter(args[0])
	expr := rf.Expression()

	clauses := make([]parsedClause, 0, len(expr.Nodes))
	for _, node := range expr.Nodes {
		if node.Clause == nil {
			continue
		}
		clauses = append(clauses, parsedClause{
			Field:    node.Clause.Field,
			Operator: string(node.Clause.Operator),
			Value:    node.Clause.Value,
			Logic:    string(node.Logic),
		})
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(map[string]interface{}{
			"normalized": rf.Filter(),
			"clauses":    clauses,
		})
	}

	formatter.PrintKeyValue("normalized", rf.Filter())
	data := output.TableData{Headers: []string{"#", "FIELD", "OPERATOR", "VALUE", "LOGIC"}}
	for i, c := range clauses {
		data.Rows = append(data.Rows, []string{strconv.Itoa(i + 1), c.Field, c.Operator, c.Value, c.Logic})
	}
	formatter.PrintTable(data)
	return nil
}
