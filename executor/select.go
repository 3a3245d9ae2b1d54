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

package executor

import (
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/planner"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// Execute runs plan against m for the query with the given id,
// transitioning its status PLANNING->RUNNING at entry (spec §4.5,
// opening paragraph) and COMPLETED/FAILED at exit. On any failure the
// executor releases the query's hold on its target table's access
// set before returning.
func Execute(m *catalog.Metastore, queryID uuid.UUID, plan *planner.PhysicalPlan) error {
	q, err := m.GetQueryByID(queryID)
	if err != nil {
		return err
	}
	if !q.Transition(query.Running) {
		err := newErr("query %s is not executable from state %s", queryID, q.Status)
		q.Fail(query.Error{Message: err.Error()})
		return err
	}

	var execErr error
	switch plan.Kind {
	case planner.PlanSelectAll:
		execErr = executeSelectAll(m, q, plan.SelectAll)
	case planner.PlanSelect:
		execErr = executeSelect(m, q, plan.Select)
	case planner.PlanCopyFromCsv:
		execErr = ExecuteCopy(m, queryID, q, plan.Copy)
	default:
		execErr = newErr("unknown plan kind %v", plan.Kind)
	}

	if execErr != nil {
		releaseTargetAccess(m, queryID, plan)
		q.Fail(query.Error{Message: execErr.Error()})
		return execErr
	}
	q.Transition(query.Completed)
	return nil
}

// releaseTargetAccess drops the query's reservation on whichever
// table it was reading or writing, per spec §4.5: "on any failure,
// the executor releases the query's hold on its target table's
// access set before reporting."
func releaseTargetAccess(m *catalog.Metastore, queryID uuid.UUID, plan *planner.PhysicalPlan) {
	switch plan.Kind {
	case planner.PlanSelectAll:
		m.ReleaseAccess(plan.SelectAll.TableID, queryID)
	case planner.PlanSelect:
		if plan.Select.HasTable {
			m.ReleaseAccess(plan.Select.TableID, queryID)
		}
	case planner.PlanCopyFromCsv:
		m.ReleaseAccess(plan.Copy.TableID, queryID)
	}
}

// executeSelectAll produces a result handle pointing directly at the
// target table (spec §4.5 "SelectAll"): no data is copied, and the
// existing access-set entry (added at query creation) is what keeps
// the table alive for the reader.
func executeSelectAll(m *catalog.Metastore, q *query.Query, plan planner.SelectAllPlan) error {
	// A COPY snapshot redirect pins the query to a tombstoned snapshot
	// (which Lookup does not admit) that the query's own access entry
	// keeps alive; the pin takes precedence over the planned table id.
	if pinned := q.Definition.SelectAll.ResolvedTableID; pinned != nil {
		q.Result = []query.Result{{TableId: *pinned}}
		return nil
	}
	if _, err := m.Lookup(plan.TableID); err != nil {
		return err
	}
	q.Result = []query.Result{{TableId: plan.TableID}}
	return nil
}

// executeSelect drives expression evaluation over one table's columns
// (or, for a table-less select, zero rows) per spec §4.5 "Select",
// steps 1-7.
func executeSelect(m *catalog.Metastore, q *query.Query, plan planner.SelectPlan) error {
	rowCount := 0
	columns := make(map[string]*table.Data)

	if plan.HasTable {
		md, err := m.Lookup(plan.TableID)
		if err != nil {
			return err
		}
		rowCount = int(md.Payload.NumRows)
		for name, idx := range plan.ColumnIndex {
			data := md.Payload.Columns[idx].Data
			columns[name] = &data
		}
	}

	ws := newWorkingSet(plan.Nodes, columns, rowCount)

	// Step 3: filter.
	if plan.HasFilter {
		maskData, err := ws.evaluate(plan.FilterID)
		if err != nil {
			return err
		}
		mask := maskData.Bools

		filtered := make(map[string]*table.Data, len(columns))
		for name, col := range columns {
			filtered[name] = compactData(col, mask)
		}
		newRowCount := 0
		for _, keep := range mask {
			if keep {
				newRowCount++
			}
		}
		// Cache is cleared because expression results computed for
		// the pre-filter row count are no longer valid (spec §4.5
		// point 3).
		ws = newWorkingSet(plan.Nodes, filtered, newRowCount)
	}

	// Step 4: projection.
	projected := make([]*table.Data, len(plan.Projection))
	for i, id := range plan.Projection {
		col, err := ws.evaluate(id)
		if err != nil {
			return err
		}
		projected[i] = col
	}

	// Step 5: sort.
	order := make([]int, ws.rowCount)
	for i := range order {
		order[i] = i
	}
	if len(plan.OrderBy) > 0 {
		sort.SliceStable(order, func(i, j int) bool {
			return lessByKeys(projected, plan.OrderBy, order[i], order[j])
		})
	}

	// Step 6: limit.
	if plan.Limit != nil && *plan.Limit < uint64(len(order)) {
		order = order[:*plan.Limit]
	}

	// Step 7: materialisation.
	resultCols := make([]table.Column, len(projected))
	for i, col := range projected {
		name := projectionName(plan, i)
		resultCols[i] = table.Column{Name: name, Data: gather(col, order)}
	}
	result := table.Table{NumRows: uint64(len(order)), Columns: resultCols}

	resultID := m.RegisterResultTable("__select_result_"+q.Id.String(), result)
	m.AddAccess(resultID, q.Id)
	q.Result = []query.Result{{TableId: resultID}}
	return nil
}

// projectionName assigns a stable output name to projection slot i: a
// bare column reference keeps its source name, anything else (a
// literal, a function call, an arithmetic expression) gets a
// positional placeholder.
func projectionName(plan planner.SelectPlan, i int) string {
	node := plan.Nodes[plan.Projection[i]]
	if node.Kind == query.ExprRef {
		return node.RefName
	}
	return "col" + strconv.Itoa(i)
}

// lessByKeys compares working-row indices a and b lexicographically
// over the sort keys, applying each key to its projection column;
// non-ascending keys reverse the per-key comparison, and ties fall
// through to the next key (spec §4.5 point 5).
func lessByKeys(projected []*table.Data, keys []query.OrderByExpression, a, b int) bool {
	for _, key := range keys {
		col := projected[key.ColumnIndex]
		rel := compareValueAt(col, a, b)
		if !key.Ascending {
			rel = -rel
		}
		if rel != 0 {
			return rel < 0
		}
	}
	return false
}

// compareValueAt compares col[a] to col[b] directly (not assuming
// a and b are the same row), unlike compareAt which compares two
// different columns at the same row.
func compareValueAt(col *table.Data, a, b int) int {
	switch col.Type {
	case table.INT64:
		x, y := col.Ints[a], col.Ints[b]
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case table.STRING:
		if col.Strs[a] < col.Strs[b] {
			return -1
		} else if col.Strs[a] > col.Strs[b] {
			return 1
		}
		return 0
	case table.BOOL:
		x, y := col.Bools[a], col.Bools[b]
		if x == y {
			return 0
		}
		if !x && y {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// compactData builds a fresh column keeping only the rows where mask
// is true, preserving row order (spec §4.5 point 3, "stable
// compaction").
func compactData(d *table.Data, mask []bool) *table.Data {
	switch d.Type {
	case table.INT64:
		var out []int64
		for i, keep := range mask {
			if keep {
				out = append(out, d.Ints[i])
			}
		}
		data := table.NewIntData(out)
		return &data
	case table.STRING:
		var out []string
		for i, keep := range mask {
			if keep {
				out = append(out, d.Strs[i])
			}
		}
		data := table.NewStringData(out)
		return &data
	case table.BOOL:
		var out []bool
		for i, keep := range mask {
			if keep {
				out = append(out, d.Bools[i])
			}
		}
		data := table.NewBoolData(out)
		return &data
	default:
		return d
	}
}

// gather builds a fresh column by reading col at each index in order,
// used for the permuted-and-truncated materialisation pass (spec
// §4.5 point 7).
func gather(col *table.Data, order []int) table.Data {
	switch col.Type {
	case table.INT64:
		out := make([]int64, len(order))
		for i, idx := range order {
			out[i] = col.Ints[idx]
		}
		return table.NewIntData(out)
	case table.STRING:
		out := make([]string, len(order))
		for i, idx := range order {
			out[i] = col.Strs[idx]
		}
		return table.NewStringData(out)
	case table.BOOL:
		out := make([]bool, len(order))
		for i, idx := range order {
			out[i] = col.Bools[idx]
		}
		return table.NewBoolData(out)
	default:
		return table.Data{}
	}
}
