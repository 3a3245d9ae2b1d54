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

package catalog

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// CreateSelectAllQuery resolves tableName and registers a new
// SelectAll query against it (spec §4.3).
func (m *Metastore) CreateSelectAllQuery(tableName string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableID, ok := m.resolveLiveName(tableName)
	if !ok {
		return uuid.UUID{}, &QueryCreationError{Problems: []string{
			fmt.Sprintf("no live table named %q", tableName),
		}}
	}

	q := query.New(query.NewSelectAllDefinition(tableName))
	m.queries[q.Id] = q
	m.addAccessLocked(tableID, q.Id)
	return q.Id, nil
}

// CreateSelectQuery resolves def's target table (if any — a select
// with no FROM clause is permitted over literal-only expressions) and
// registers a new Select query (spec §4.3, §4.4).
func (m *Metastore) CreateSelectQuery(def query.SelectQuery) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tableID uuid.UUID
	hasTable := false
	if def.TableName != "" {
		id, ok := m.resolveLiveName(def.TableName)
		if !ok {
			return uuid.UUID{}, &QueryCreationError{Problems: []string{
				fmt.Sprintf("no live table named %q", def.TableName),
			}}
		}
		tableID, hasTable = id, true
	}

	q := query.New(query.NewSelectDefinition(def))
	m.queries[q.Id] = q
	if hasTable {
		m.addAccessLocked(tableID, q.Id)
	}
	return q.Id, nil
}

// CreateCopyQuery resolves def's target table, verifies the source
// CSV file exists, and registers a new Copy query (spec §4.3).
func (m *Metastore) CreateCopyQuery(def query.CopyQuery) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var problems []string
	tableID, ok := m.resolveLiveName(def.TableName)
	if !ok {
		problems = append(problems, fmt.Sprintf("no live table named %q", def.TableName))
	}
	if _, err := os.Stat(def.SourceFile); err != nil {
		problems = append(problems, fmt.Sprintf("source file %q does not exist", def.SourceFile))
	}
	if len(problems) > 0 {
		return uuid.UUID{}, &QueryCreationError{Problems: problems}
	}

	q := query.New(query.NewCopyDefinition(def))
	m.queries[q.Id] = q
	m.addAccessLocked(tableID, q.Id)
	return q.Id, nil
}

// GetQuery returns a copy of the query record with the given id.
func (m *Metastore) GetQuery(id uuid.UUID) (query.Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queries[id]
	if !ok {
		return query.Query{}, &QueryAccessError{Message: "unknown query", Context: id.String()}
	}
	return *q, nil
}

// ListQueries returns a copy of every registered query record.
func (m *Metastore) ListQueries() []query.Query {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]query.Query, 0, len(m.queries))
	for _, q := range m.queries {
		out = append(out, *q)
	}
	return out
}

// GetQueryError returns the recorded errors for a FAILED query.
func (m *Metastore) GetQueryError(id uuid.UUID) ([]query.Error, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, &QueryErrorAccessError{Message: "unknown query", Context: id.String()}
	}
	if q.Status != query.Failed {
		return nil, &QueryErrorAccessError{Message: "query has not failed", Context: q.Status.String()}
	}
	return q.Errors, nil
}

// truncate returns a deep copy of t's columns, each truncated to
// min(rowLimit, t.NumRows) rows; rowLimit of nil returns every row
// (spec §4.3, "row limit semantics").
func truncate(t table.Table, rowLimit *uint64) table.Table {
	limit := t.NumRows
	if rowLimit != nil && *rowLimit < limit {
		limit = *rowLimit
	}
	cols := make([]table.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = table.Column{Name: c.Name, Data: sliceData(c.Data, int(limit))}
	}
	return table.Table{NumRows: limit, Columns: cols}
}

func sliceData(d table.Data, n int) table.Data {
	switch d.Type {
	case table.INT64:
		out := make([]int64, n)
		copy(out, d.Ints)
		return table.NewIntData(out)
	case table.STRING:
		out := make([]string, n)
		copy(out, d.Strs)
		return table.NewStringData(out)
	case table.BOOL:
		out := make([]bool, n)
		copy(out, d.Bools)
		return table.NewBoolData(out)
	default:
		return table.Data{}
	}
}

// resultTables returns the table payloads referenced by q's Result
// handles, truncated to rowLimit. Caller must hold at least a read
// lock.
func (m *Metastore) resultTables(q *query.Query, rowLimit *uint64) ([]table.Table, error) {
	out := make([]table.Table, 0, len(q.Result))
	for _, r := range q.Result {
		md, ok := m.tables[r.TableId]
		if !ok {
			return nil, &QueryResultAccessError{Message: "result table no longer exists", Context: r.TableId.String()}
		}
		out = append(out, truncate(md.Payload, rowLimit))
	}
	return out, nil
}

// GetQueryResult returns (copies of, truncated to rowLimit) the
// result tables of a COMPLETED query, without releasing its hold on
// them.
func (m *Metastore) GetQueryResult(id uuid.UUID, rowLimit *uint64) ([]table.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, &QueryResultAccessError{Message: "unknown query", Context: id.String()}
	}
	if q.Status != query.Completed {
		return nil, &QueryResultAccessError{Message: "query has no result yet", Context: q.Status.String()}
	}
	return m.resultTables(q, rowLimit)
}

// GetQueryResultFlush behaves like GetQueryResult but additionally
// releases the query's reservation on each result table; if a
// flushed table's reader set becomes empty and it is scheduled for
// deletion, it is removed (spec §4.3).
func (m *Metastore) GetQueryResultFlush(id uuid.UUID, rowLimit *uint64) ([]table.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, &QueryResultAccessError{Message: "unknown query", Context: id.String()}
	}
	if q.Status != query.Completed {
		return nil, &QueryResultAccessError{Message: "query has no result yet", Context: q.Status.String()}
	}
	out, err := m.resultTables(q, rowLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range q.Result {
		m.releaseAccessLocked(r.TableId, id)
	}
	return out, nil
}
