package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/filter"
	"github.com/fluxbase-eu/restcore/internal/memstore"
	"github.com/fluxbase-eu/restcore/internal/repository"
	"github.com/fluxbase-eu/restcore/internal/schema"
	"github.com/fluxbase-eu/restcore/internal/service"
)

var queryFlags requestFlags

var queryCmd = &cobra.Command{
	Use:   "query [users|countries]",
	Short: "Run a list request against in-memory sample data",
	Long: `Run a list request against a small in-memory data set of users and
countries, without a database. Useful to try out filters, projections and
aggregations.

Examples:
  restcore query users --filter "age|gt|30;name|like|bo"
  restcore query users --projection name,country.name --sort name
  restcore query users --sum orders.total --group-by name -o json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"users", "countries"},
	RunE:      runQuery,
}

func init() {
	queryFlags.bind(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := memstore.New()
	resolver := schema.NewReflectResolver(0)

	users, err := repository.New[example.User](store, resolver)
	if err != nil {
		return err
	}
	countries, err := repository.New[example.Country](store, resolver)
	if err != nil {
		return err
	}
	if err := seedDemo(ctx, users, countries); err != nil {
		return fmt.Errorf("failed to seed sample data: %w", err)
	}

	rf := queryFlags.build()
	switch args[0] {
	case "users":
		return printList(ctx, service.New(users, service.Options{}), rf)
	case "countries":
		return printList(ctx, service.New(countries, service.Options{}), rf)
	default:
		return fmt.Errorf("unknown entity %q (valid: users, countries)", args[0])
	}
}

func printList[E any](ctx context.Context, svc *service.Service[E], rf *filter.RequestFilter) error {
	resp, err := svc.FindAll(ctx, rf)
	if err != nil {
		return err
	}
	if len(resp.Records) == 0 {
		formatter.PrintWarning("No records matched")
	}
	return formatter.PrintRecords(resp.Records, resp.Metadata)
}

// seedDemo stores the sample data set.
func seedDemo(ctx context.Context, users *repository.Repository[example.User], countries *repository.Repository[example.Country]) error {
	germany := &example.Country{Name: "Germany", Code: "DE", Population: 83_200_000, Area: decimal.RequireFromString("357588.00")}
	portugal := &example.Country{Name: "Portugal", Code: "PT", Population: 10_300_000, Area: decimal.RequireFromString("92212.00")}
	for _, c := range []*example.Country{germany, portugal} {
		if _, err := countries.Save(ctx, c); err != nil {
			return err
		}
	}

	placed := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	order := func(total string, qty int) example.Order {
		return example.Order{Total: decimal.RequireFromString(total), Quantity: qty, PlacedAt: placed}
	}
	email := func(s string) *string { return &s }

	demo := []*example.User{
		{Name: "Ann", Age: 34, Score: 1.5, Role: example.RoleAdmin, Country: germany,
			Orders: []example.Order{order("150", 2), order("50", 1)}},
		{Name: "Bob", Age: 41, Score: 3, Role: example.RoleUser, Tags: []string{"beta"}},
		{Name: "Carla", Age: 25, Score: 2, Role: example.RoleUser, Email: email("carla@example.com"), Country: portugal,
			Orders: []example.Order{order("20", 1)}},
		{Name: "Roboto", Age: 28, Score: 2, Role: example.RoleAdmin, Country: germany},
	}
	for _, u := range demo {
		if _, err := users.Save(ctx, u); err != nil {
			return err
		}
	}
	return nil
}
