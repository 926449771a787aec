package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/restcore/cli/output"
	"github.com/fluxbase-eu/restcore/internal/database"
	"github.com/fluxbase-eu/restcore/internal/query"
	"github.com/fluxbase-eu/restcore/internal/schema"
)

var explainFlags requestFlags

var explainCmd = &cobra.Command{
	Use:   "explain [entity]",
	Short: "Compile a list request and show the generated SQL",
	Long: `Compile the request against a sample entity and print the PostgreSQL
statements the database engine would run, with their arguments.

Examples:
  restcore explain users --filter "age|gt|30;name|like|bo"
  restcore explain users --sum orders.total --group-by country.name -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExplain,
}

func init() {
	explainFlags.bind(explainCmd)
}

// explanation is the printable result of explain.
type explanation struct {
	Entity    string        `json:"entity" yaml:"entity"`
	Mode      string        `json:"mode" yaml:"mode"`
	SQL       string        `json:"sql" yaml:"sql"`
	Args      []interface{} `json:"args" yaml:"args"`
	CountSQL  string        `json:"countSql" yaml:"countSql"`
	CountArgs []interface{} `json:"countArgs" yaml:"countArgs"`
}

func runExplain(cmd *cobra.Command, args []string) error {
	t, err := lookupEntity(args[0])
	if err != nil {
		return err
	}

	resolver := schema.NewReflectResolver(0)
	plan, err := query.NewCompiler(resolver).CompileFilter(t, explainFlags.build())
	if err != nil {
		return err
	}

	sql, sqlArgs, err := database.NewQueryBuilder(resolver, plan).BuildSelect()
	if err != nil {
		return err
	}
	countSQL, countArgs, err := database.NewQueryBuilder(resolver, plan).BuildCount()
	if err != nil {
		return err
	}

	exp := explanation{
		Entity:    plan.Entity.Table,
		Mode:      plan.Mode.String(),
		SQL:       sql,
		Args:      sqlArgs,
		CountSQL:  countSQL,
		CountArgs: countArgs,
	}
	if formatter.Format != output.FormatTable {
		return formatter.Print(exp)
	}

	formatter.PrintKeyValue("entity", exp.Entity)
	formatter.PrintKeyValue("mode", exp.Mode)
	formatter.PrintKeyValue("sql", exp.SQL)
	formatter.PrintKeyValue("args", fmt.Sprint(exp.Args))
	formatter.PrintKeyValue("count_sql", exp.CountSQL)
	formatter.PrintKeyValue("count_args", fmt.Sprint(exp.CountArgs))
	return nil
}
