// Package mapper rebuilds entities from the rows an engine returns for a
// compiled plan: whole entities, one value per selection term, or a single
// value.
package mapper

// Row is one of EntityRow, ValuesRow or ScalarRow.
type Row interface {
	row()
}

// EntityRow is an already shaped entity, as *E or E.
type EntityRow struct {
	Entity interface{}
}

// ValuesRow holds one value per selection term, in selection order.
type ValuesRow []interface{}

// ScalarRow is the single value of a one-term selection.
type ScalarRow struct {
	Value interface{}
}

func (EntityRow) row() {}
func (ValuesRow) row() {}
func (ScalarRow) row() {}
