package filter

import "strings"

// SortSpec is one ordering term.
type SortSpec struct {
	Field string
	Order SortOrder
}

// ParseFieldList splits a comma separated list of dotted field paths,
// dropping bracket decoration and blank items.
func ParseFieldList(raw string) []string {
	raw = stripBrackets(raw)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}

// ParseSort parses "field[=asc|desc]" items. A missing direction means
// ascending; an unknown one leaves Order empty for the compiler to reject.
func ParseSort(raw string) []SortSpec {
	items := ParseFieldList(raw)
	specs := make([]SortSpec, 0, len(items))
	for _, item := range items {
		field, dir, hasDir := strings.Cut(item, "=")
		spec := SortSpec{Field: strings.TrimSpace(field), Order: SortAsc}
		if hasDir {
			order, _ := ParseSortOrder(dir)
			spec.Order = order
		}
		specs = append(specs, spec)
	}
	return specs
}

func stripBrackets(s string) string {
	return strings.NewReplacer("[", "", "]", "").Replace(s)
}
