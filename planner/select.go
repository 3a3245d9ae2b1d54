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
	"github.com/isdb-project/isdb/table"
)

// planSelect implements spec §4.4 "Select planning", steps 1-5.
func planSelect(m *catalog.Metastore, q query.SelectQuery) (*PhysicalPlan, error) {
	var (
		tableID     uuid.UUID
		hasTable    bool
		columnIndex = make(map[string]int)
		columnTypes = make(map[string]table.Type)
	)

	if q.ResolvedTableID != nil {
		tableID, hasTable = *q.ResolvedTableID, true
	} else if q.TableName != "" {
		id, ok := m.ResolveName(q.TableName)
		if !ok {
			return nil, fmt.Errorf("no live table named %q", q.TableName)
		}
		tableID, hasTable = id, true
	}

	if hasTable {
		schema, err := m.GetTable(tableID)
		if err != nil {
			return nil, err
		}
		for i, c := range schema {
			columnIndex[c.Name] = i
			columnTypes[c.Name] = c.Type
		}
	}

	f := newFlattener()

	projectionIDs := make([]int, len(q.Projection))
	for i, expr := range q.Projection {
		id, err := f.flatten(expr, columnTypes)
		if err != nil {
			return nil, err
		}
		projectionIDs[i] = id
	}

	hasFilter := q.Filter != nil
	filterID := -1
	if hasFilter {
		id, err := f.flatten(q.Filter, columnTypes)
		if err != nil {
			return nil, err
		}
		if f.nodes[id].Type != table.BOOL {
			return nil, fmt.Errorf("WHERE expression must be BOOL, got %s", f.nodes[id].Type)
		}
		filterID = id
	}

	for _, ob := range q.OrderBy {
		if ob.ColumnIndex < 0 || ob.ColumnIndex >= len(projectionIDs) {
			return nil, fmt.Errorf("ORDER BY column index %d is out of bounds for a %d-column projection", ob.ColumnIndex, len(projectionIDs))
		}
	}

	plan := SelectPlan{
		TableID:     tableID,
		HasTable:    hasTable,
		ColumnIndex: columnIndex,
		Nodes:       f.nodes,
		Projection:  projectionIDs,
		FilterID:    filterID,
		HasFilter:   hasFilter,
		OrderBy:     q.OrderBy,
		Limit:       q.Limit,
	}
	return &PhysicalPlan{Kind: PlanSelect, Select: plan}, nil
}
