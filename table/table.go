// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package table holds the in-memory columnar data model: typed,
// dense columns grouped into a table with a fixed row count.
package table

import "fmt"

// Type is the logical type of a column's values.
type Type int

const (
	INT64 Type = iota
	STRING
	BOOL
)

func (t Type) String() string {
	switch t {
	case INT64:
		return "INT64"
	case STRING:
		return "STRING"
	case BOOL:
		return "BOOL"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Data is a tagged union over the three physical column
// representations. Only the one of Ints, Strs, Bools selected by
// Type is used; the others are nil (an empty column may leave its
// own slice nil as well).
type Data struct {
	Type  Type
	Ints  []int64
	Strs  []string
	Bools []bool
}

// Len returns the number of values backing the column, regardless
// of which physical slice is populated.
func (d Data) Len() int {
	switch d.Type {
	case INT64:
		return len(d.Ints)
	case STRING:
		return len(d.Strs)
	case BOOL:
		return len(d.Bools)
	default:
		return 0
	}
}

// NewIntData wraps an int64 slice as column data.
func NewIntData(v []int64) Data { return Data{Type: INT64, Ints: v} }

// NewStringData wraps a string slice as column data.
func NewStringData(v []string) Data { return Data{Type: STRING, Strs: v} }

// NewBoolData wraps a bool slice as column data.
func NewBoolData(v []bool) Data { return Data{Type: BOOL, Bools: v} }

// Clone returns a deep copy of the column data.
func (d Data) Clone() Data {
	switch d.Type {
	case INT64:
		out := make([]int64, len(d.Ints))
		copy(out, d.Ints)
		return Data{Type: INT64, Ints: out}
	case STRING:
		out := make([]string, len(d.Strs))
		copy(out, d.Strs)
		return Data{Type: STRING, Strs: out}
	case BOOL:
		out := make([]bool, len(d.Bools))
		copy(out, d.Bools)
		return Data{Type: BOOL, Bools: out}
	default:
		return Data{}
	}
}

// Pad grows the column, appending zero values, up to n elements.
// It is a no-op if the column already has at least n elements.
func (d *Data) Pad(n int) {
	switch d.Type {
	case INT64:
		for len(d.Ints) < n {
			d.Ints = append(d.Ints, 0)
		}
	case STRING:
		for len(d.Strs) < n {
			d.Strs = append(d.Strs, "")
		}
	case BOOL:
		for len(d.Bools) < n {
			d.Bools = append(d.Bools, false)
		}
	}
}

// Column is a named, typed column belonging to a Table.
type Column struct {
	Name string
	Data Data
}

// NewIntColumn builds an INT64 column.
func NewIntColumn(name string, values []int64) Column {
	return Column{Name: name, Data: NewIntData(values)}
}

// NewStringColumn builds a STRING column.
func NewStringColumn(name string, values []string) Column {
	return Column{Name: name, Data: NewStringData(values)}
}

// NewBoolColumn builds a BOOL column.
func NewBoolColumn(name string, values []bool) Column {
	return Column{Name: name, Data: NewBoolData(values)}
}

// Table is a row count plus an ordered sequence of columns. Every
// column must have exactly NumRows values and column names must be
// unique within the table; callers constructing Tables are
// responsible for the invariant (see catalog.CreateTable for the
// validated entry point).
type Table struct {
	NumRows uint64
	Columns []Column
}

// NumCols returns the number of columns in the table.
func (t *Table) NumCols() int { return len(t.Columns) }

// ColumnByName returns the column with the given name and its
// index, or ok=false if no such column exists.
func (t *Table) ColumnByName(name string) (col *Column, index int, ok bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], i, true
		}
	}
	return nil, -1, false
}

// Clone returns a deep copy of the table, suitable for COPY's
// snapshot protocol (spec §4.5 point 5).
func (t *Table) Clone() Table {
	cols := make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = Column{Name: c.Name, Data: c.Data.Clone()}
	}
	return Table{NumRows: t.NumRows, Columns: cols}
}
