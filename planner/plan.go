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

package planner

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/query"
)

// PlanKind identifies which physical plan variant a planned query
// produced.
type PlanKind int

const (
	PlanSelectAll PlanKind = iota
	PlanSelect
	PlanCopyFromCsv
)

// SelectAllPlan points directly at the source table; the executor
// materialises no new data for it (spec §4.5 "SelectAll").
type SelectAllPlan struct {
	TableID uuid.UUID
}

// SelectPlan is the output of select planning (spec §4.4, final
// paragraph): an optional source table, a name->index map used to
// build working columns, the flattened expression array, the indices
// of the projected expressions, an optional filter expression index,
// the sort specification, and an optional limit.
type SelectPlan struct {
	TableID       uuid.UUID
	HasTable      bool
	ColumnIndex   map[string]int
	Nodes         []FlatExpression
	Projection    []int
	FilterID      int
	HasFilter     bool
	OrderBy       []query.OrderByExpression
	Limit         *uint64
}

// CopyFromCsvPlan is the output of copy planning (spec §4.4 "Copy
// planning").
type CopyFromCsvPlan struct {
	TableID            uuid.UUID
	SourceFile         string
	HasHeader          bool
	DestinationColumns []string // nil for positional mapping
}

// PhysicalPlan is the tagged union the planner hands to package
// executor.
type PhysicalPlan struct {
	Kind      PlanKind
	SelectAll SelectAllPlan
	Select    SelectPlan
	Copy      CopyFromCsvPlan
}

// Plan resolves and type-checks the query with the given id,
// transitioning its status CREATED -> PLANNING, and on success
// returns a PhysicalPlan. On any failure it records a query.Error and
// transitions the query to FAILED, returning the same error (spec
// §4.4, first paragraph: "if the query was deleted it emits a
// planner-local failure and returns none").
func Plan(m *catalog.Metastore, queryID uuid.UUID) (*PhysicalPlan, error) {
	q, err := m.GetQueryByID(queryID)
	if err != nil {
		return nil, err
	}
	if !q.Transition(query.Planning) {
		err := fmt.Errorf("query %s is not plannable from state %s", queryID, q.Status)
		q.Fail(query.Error{Message: err.Error()})
		return nil, err
	}

	plan, err := planDefinition(m, q.Definition)
	if err != nil {
		q.Fail(query.Error{Message: err.Error()})
		return nil, err
	}
	return plan, nil
}

func planDefinition(m *catalog.Metastore, def query.Definition) (*PhysicalPlan, error) {
	switch def.Kind {
	case query.DefSelectAll:
		return planSelectAll(m, def.SelectAll)
	case query.DefSelect:
		return planSelect(m, def.Select)
	case query.DefCopy:
		return planCopy(m, def.Copy)
	default:
		return nil, fmt.Errorf("unknown query definition kind: %v", def.Kind)
	}
}

func planSelectAll(m *catalog.Metastore, q query.SelectAllQuery) (*PhysicalPlan, error) {
	if q.ResolvedTableID != nil {
		return &PhysicalPlan{Kind: PlanSelectAll, SelectAll: SelectAllPlan{TableID: *q.ResolvedTableID}}, nil
	}
	id, ok := m.ResolveName(q.TableName)
	if !ok {
		return nil, fmt.Errorf("no live table named %q", q.TableName)
	}
	return &PhysicalPlan{Kind: PlanSelectAll, SelectAll: SelectAllPlan{TableID: id}}, nil
}

func planCopy(m *catalog.Metastore, q query.CopyQuery) (*PhysicalPlan, error) {
	var id uuid.UUID
	if q.ResolvedTableID != nil {
		id = *q.ResolvedTableID
	} else {
		resolved, ok := m.ResolveName(q.TableName)
		if !ok {
			return nil, fmt.Errorf("no live table named %q", q.TableName)
		}
		id = resolved
	}
	if q.DestinationColumns != nil {
		schema, err := m.GetTable(id)
		if err != nil {
			return nil, err
		}
		if len(q.DestinationColumns) != len(schema) {
			return nil, fmt.Errorf("destination_columns length %d does not match target table's %d columns", len(q.DestinationColumns), len(schema))
		}
		known := make(map[string]bool, len(schema))
		for _, c := range schema {
			known[c.Name] = true
		}
		for _, name := range q.DestinationColumns {
			if !known[name] {
				return nil, fmt.Errorf("destination column %q does not exist on target table", name)
			}
		}
	}
	return &PhysicalPlan{Kind: PlanCopyFromCsv, Copy: CopyFromCsvPlan{
		TableID:            id,
		SourceFile:         q.SourceFile,
		HasHeader:          q.HasHeader,
		DestinationColumns: q.DestinationColumns,
	}}, nil
}
