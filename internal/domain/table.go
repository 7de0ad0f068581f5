package domain

import (
	"slices"
	"strings"
)

// Table is a column-named, row-oriented set of raw cells. It is the contract
// between the core and the adapters that read and write files.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of a column, or -1 when absent.
func (t Table) Index(column string) int {
	return slices.Index(t.Columns, column)
}

// cell returns the value at (row, column index), tolerating ragged rows.
func (t Table) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// NormalizeColumnName canonicalizes a header: BOM and edge whitespace removed,
// lower-cased, inner spaces replaced by underscores.
func NormalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, "\uFEFF")
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, " ", "_")
}

// NormalizeColumns returns a copy of t with canonical column names. Rows are
// shared with the input and must not be modified by the caller.
func NormalizeColumns(t Table) Table {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = NormalizeColumnName(c)
	}
	return Table{Name: t.Name, Columns: cols, Rows: t.Rows}
}

// ValidateSchema checks that every required column is present. The returned
// *SchemaValidationError lists the missing names sorted.
func ValidateSchema(t Table, required ...string) error {
	present := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		present[c] = struct{}{}
	}

	var missing []string
	for _, r := range required {
		if _, ok := present[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	missing = slices.Compact(missing)
	return &SchemaValidationError{Table: t.Name, Missing: missing}
}

// columnReader resolves column positions once so per-row access is cheap.
type columnReader struct {
	t   Table
	idx map[string]int
}

func newColumnReader(t Table, columns ...string) columnReader {
	idx := make(map[string]int, len(columns))
	for _, c := range columns {
		idx[c] = t.Index(c)
	}
	return columnReader{t: t, idx: idx}
}

func (r columnReader) get(row []string, column string) string {
	i, ok := r.idx[column]
	if !ok {
		i = r.t.Index(column)
	}
	return r.t.cell(row, i)
}
