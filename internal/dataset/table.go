// Package dataset holds the in-memory tabular model shared by every pipeline
// stage: a Table of named columns over tagged scalar Values, the long/wide
// Layout tags, and the Schema descriptor that maps logical trial fields to
// concrete column names. Stages treat tables as immutable inputs and return
// new tables; annotation happens by appending columns, never by rewriting
// rows in place.
package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchColumn reports a reference to a column the table does not have.
	ErrNoSuchColumn = errors.New("dataset: no such column")
	// ErrColumnExists reports an attempt to add a column twice.
	ErrColumnExists = errors.New("dataset: column already exists")
	// ErrRowWidth reports a row whose cell count does not match the table.
	ErrRowWidth = errors.New("dataset: row width does not match columns")
)

// Table is an ordered collection of named columns over rows of Values.
type Table struct {
	cols  []string
	index map[string]int
	rows  [][]Value
}

// New creates an empty table with the given column order.
func New(cols ...string) *Table {
	t := &Table{
		cols:  append([]string(nil), cols...),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range t.cols {
		t.index[c] = i
	}
	return t
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.rows) }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// AppendRow adds a row. The cell count must match the column count.
func (t *Table) AppendRow(cells ...Value) error {
	if len(cells) != len(t.cols) {
		return fmt.Errorf("%w: got %d cells, table has %d columns", ErrRowWidth, len(cells), len(t.cols))
	}
	t.rows = append(t.rows, append([]Value(nil), cells...))
	return nil
}

// Cell returns the value at (row, column). Out-of-range rows and unknown
// columns read as missing, which keeps downstream schema detection total.
func (t *Table) Cell(row int, col string) Value {
	ci, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return Missing()
	}
	return t.rows[row][ci]
}

// SetCell writes the value at (row, column).
func (t *Table) SetCell(row int, col string, v Value) error {
	ci, ok := t.index[col]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchColumn, col)
	}
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("dataset: row %d out of range (%d rows)", row, len(t.rows))
	}
	t.rows[row][ci] = v
	return nil
}

// AddColumn appends a new column filled with the given value on every
// existing row.
func (t *Table) AddColumn(name string, fill Value) error {
	if _, ok := t.index[name]; ok {
		return fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	t.index[name] = len(t.cols)
	t.cols = append(t.cols, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], fill)
	}
	return nil
}

// Column returns a copy of the named column's values in row order.
func (t *Table) Column(name string) ([]Value, bool) {
	ci, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]Value, len(t.rows))
	for i := range t.rows {
		out[i] = t.rows[i][ci]
	}
	return out, true
}

// Row returns a copy of the cells of one row.
func (t *Table) Row(i int) []Value {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return append([]Value(nil), t.rows[i]...)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := New(t.cols...)
	out.rows = make([][]Value, len(t.rows))
	for i, r := range t.rows {
		out.rows[i] = append([]Value(nil), r...)
	}
	return out
}

// Filter returns a new table containing the rows for which keep returns true,
// preserving order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := New(t.cols...)
	for i := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]Value(nil), t.rows[i]...))
		}
	}
	return out
}

// AppendRowFrom copies row i of src into t, matching columns by name. Columns
// t has but src lacks are filled with missing; extra src columns are ignored.
func (t *Table) AppendRowFrom(src *Table, i int) error {
	cells := make([]Value, len(t.cols))
	for ci, name := range t.cols {
		cells[ci] = src.Cell(i, name)
	}
	t.rows = append(t.rows, cells)
	return nil
}

// Equal reports whether two tables have identical columns, order and cells.
func (t *Table) Equal(o *Table) bool {
	if o == nil || len(t.cols) != len(o.cols) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.cols {
		if t.cols[i] != o.cols[i] {
			return false
		}
	}
	for ri := range t.rows {
		for ci := range t.rows[ri] {
			if !t.rows[ri][ci].Equal(o.rows[ri][ci]) {
				return false
			}
		}
	}
	return true
}
