package persistence

import (
	"fmt"
	"strings"
)

// UpsertSpec builds a single-row INSERT ... ON CONFLICT statement implementing
// field-level last-write-wins: a NULL argument leaves the existing column
// value untouched, so callers pass nil for fields the request did not carry.
// InsertOnly columns (generated ids) are written on insert and never updated.
// Defaults maps a column to a SQL literal substituted when a NULL argument
// would otherwise be inserted into a fresh row.
type UpsertSpec struct {
	Table      string
	KeyColumn  string
	InsertOnly []string
	Columns    []string
	Defaults   map[string]string
	Returning  []string
}

// SQL renders the statement. Placeholders are positional: $1 is the key,
// followed by InsertOnly columns, followed by Columns, in declaration order.
func (s UpsertSpec) SQL() string {
	var b strings.Builder

	all := make([]string, 0, 1+len(s.InsertOnly)+len(s.Columns))
	all = append(all, s.KeyColumn)
	all = append(all, s.InsertOnly...)
	all = append(all, s.Columns...)

	values := make([]string, len(all))
	for i, col := range all {
		placeholder := fmt.Sprintf("$%d", i+1)
		if def, ok := s.Defaults[col]; ok {
			values[i] = fmt.Sprintf("COALESCE(%s, %s)", placeholder, def)
		} else {
			values[i] = placeholder
		}
	}

	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(all, ", "), strings.Join(values, ", "))

	// The update half references the raw placeholders, not EXCLUDED, so an
	// insert default never overwrites an existing value on conflict.
	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", s.KeyColumn)
	assignments := make([]string, 0, len(s.Columns))
	for i, col := range s.Columns {
		placeholder := fmt.Sprintf("$%d", 1+len(s.InsertOnly)+1+i)
		assignments = append(assignments,
			fmt.Sprintf("%s = COALESCE(%s, %s.%s)", col, placeholder, s.Table, col))
	}
	b.WriteString(strings.Join(assignments, ", "))

	if len(s.Returning) > 0 {
		fmt.Fprintf(&b, " RETURNING %s", strings.Join(s.Returning, ", "))
	}

	return b.String()
}
