package cmd

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/filter"
)

// entityTypes are the sample entities the CLI can compile and run against.
var entityTypes = map[string]reflect.Type{
	"users":     reflect.TypeOf(example.User{}),
	"countries": reflect.TypeOf(example.Country{}),
	"addresses": reflect.TypeOf(example.Address{}),
	"orders":    reflect.TypeOf(example.Order{}),
}

func entityNames() []string {
	names := make([]string, 0, len(entityTypes))
	for name := range entityTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupEntity(name string) (reflect.Type, error) {
	t, ok := entityTypes[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (valid: %s)", name, strings.Join(entityNames(), ", "))
	}
	return t, nil
}

// requestFlags mirrors the query parameters of a list request.
type requestFlags struct {
	filter        string
	projection    string
	sort          string
	sum           string
	avg           string
	count         string
	countDistinct string
	groupBy       string
	offset        int
	limit         int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.filter, "filter", "", "filter expression, e.g. age|gt|30;name|like|bo")
	cmd.Flags().StringVar(&f.projection, "projection", "", "comma separated fields to project")
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort terms, e.g. name=desc,age")
	cmd.Flags().StringVar(&f.sum, "sum", "", "fields to sum")
	cmd.Flags().StringVar(&f.avg, "avg", "", "fields to average")
	cmd.Flags().StringVar(&f.count, "count", "", "fields to count")
	cmd.Flags().StringVar(&f.countDistinct, "count-distinct", "", "fields to count distinct values of")
	cmd.Flags().StringVar(&f.groupBy, "group-by", "", "fields to group aggregates by")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "number of records to skip")
	cmd.Flags().IntVar(&f.limit, "limit", filter.DefaultLimits.Default, "maximum number of records")
}

func (f *requestFlags) build() *filter.RequestFilter {
	return filter.NewRequestFilter().
		SetFilter(f.filter).
		SetProjection(f.projection).
		SetSort(f.sort).
		SetSum(f.sum).
		SetAvg(f.avg).
		SetCount(f.count).
		SetCountDistinct(f.countDistinct).
		SetGroupBy(f.groupBy).
		SetOffset(f.offset).
		SetLimit(f.limit)
}
