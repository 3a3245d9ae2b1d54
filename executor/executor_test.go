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
	"os"
	"path/filepath"
	"testing"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/planner"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

func newTestMetastore(t *testing.T) *catalog.Metastore {
	t.Helper()
	return catalog.New(t.TempDir(), "isdb")
}

func runToCompletion(t *testing.T, m *catalog.Metastore, qid query.Id) *query.Query {
	t.Helper()
	plan, err := planner.Plan(m, qid)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := Execute(m, qid, plan); err != nil {
		t.Fatalf("execute: %v", err)
	}
	q, err := m.GetQuery(qid)
	if err != nil {
		t.Fatalf("get query: %v", err)
	}
	return &q
}

func mustCreateTable(t *testing.T, m *catalog.Metastore, name string, cols []catalog.ColumnSchema) {
	t.Helper()
	if _, err := m.CreateTable(name, cols); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

// TestSelectFilterSortLimit exercises a filter + single-key sort +
// limit pipeline end to end.
func TestSelectFilterSortLimit(t *testing.T) {
	m := newTestMetastore(t)
	mustCreateTable(t, m, "t", []catalog.ColumnSchema{
		{Name: "a", Type: table.INT64},
		{Name: "b", Type: table.INT64},
	})

	csv := "a,b\n1,30\n2,10\n3,10\n4,20\n5,5\n"
	path := writeTempCSV(t, csv)
	copyID, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: path, HasHeader: true})
	if err != nil {
		t.Fatalf("create copy: %v", err)
	}
	runToCompletion(t, m, copyID)

	one := uint64(2)
	def := query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Ref("a"), query.Ref("b")},
		Filter:     query.Bin(query.Ref("a"), query.OpGt, query.Lit(query.NewIntLiteral(1))),
		OrderBy:    []query.OrderByExpression{{ColumnIndex: 1, Ascending: true}},
		Limit:      &one,
	}
	qid, err := m.CreateSelectQuery(def)
	if err != nil {
		t.Fatalf("create select: %v", err)
	}
	q := runToCompletion(t, m, qid)
	if q.Status != query.Completed {
		t.Fatalf("expected COMPLETED, got %s", q.Status)
	}
	results, err := m.GetQueryResult(qid, nil)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if len(results) != 1 || results[0].NumRows != 2 {
		t.Fatalf("expected a single 2-row result, got %+v", results)
	}
	bCol := results[0].Columns[1].Data.Ints
	if bCol[0] != 5 || bCol[1] != 10 {
		t.Fatalf("expected b sorted ascending starting [5,10], got %v", bCol)
	}
}

// TestDivisionByZeroFailsQuery verifies that a division by zero during
// expression evaluation fails the whole query.
func TestDivisionByZeroFailsQuery(t *testing.T) {
	m := newTestMetastore(t)
	mustCreateTable(t, m, "t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}})

	path := writeTempCSV(t, "a\n1\n0\n")
	copyID, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: path, HasHeader: true})
	if err != nil {
		t.Fatalf("create copy: %v", err)
	}
	runToCompletion(t, m, copyID)

	def := query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Bin(query.Lit(query.NewIntLiteral(10)), query.OpDiv, query.Ref("a"))},
	}
	qid, err := m.CreateSelectQuery(def)
	if err != nil {
		t.Fatalf("create select: %v", err)
	}
	plan, err := planner.Plan(m, qid)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := Execute(m, qid, plan); err == nil {
		t.Fatal("expected Execute to report the division by zero")
	}
	q, err := m.GetQuery(qid)
	if err != nil {
		t.Fatalf("get query: %v", err)
	}
	if q.Status != query.Failed {
		t.Fatalf("expected FAILED, got %s", q.Status)
	}
	if len(q.Errors) == 0 {
		t.Fatal("expected a recorded error")
	}
}

// TestSelectAllNoCopy verifies SelectAll produces a result handle
// pointing directly at the target table.
func TestSelectAllNoCopy(t *testing.T) {
	m := newTestMetastore(t)
	mustCreateTable(t, m, "t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}})

	path := writeTempCSV(t, "a\n1\n2\n3\n")
	copyID, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: path, HasHeader: true})
	if err != nil {
		t.Fatalf("create copy: %v", err)
	}
	runToCompletion(t, m, copyID)

	qid, err := m.CreateSelectAllQuery("t")
	if err != nil {
		t.Fatalf("create select all: %v", err)
	}
	q := runToCompletion(t, m, qid)
	if q.Status != query.Completed {
		t.Fatalf("expected COMPLETED, got %s", q.Status)
	}
	results, err := m.GetQueryResult(qid, nil)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if len(results) != 1 || results[0].NumRows != 3 {
		t.Fatalf("expected a single 3-row result, got %+v", results)
	}
}

// TestCopyRedirectsConcurrentReader covers the snapshot protocol: a
// SelectAll registered before a concurrent COPY must observe the
// pre-COPY content even though the live table is mutated afterward.
func TestCopyRedirectsConcurrentReader(t *testing.T) {
	m := newTestMetastore(t)
	mustCreateTable(t, m, "t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}})

	seedPath := writeTempCSV(t, "a\n1\n2\n")
	seedCopy, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: seedPath, HasHeader: true})
	if err != nil {
		t.Fatalf("create seed copy: %v", err)
	}
	runToCompletion(t, m, seedCopy)

	// Register (plan, but don't yet execute) a SelectAll — this adds it
	// to the table's access set, making it a concurrent reader.
	readerID, err := m.CreateSelectAllQuery("t")
	if err != nil {
		t.Fatalf("create select all: %v", err)
	}
	readerPlan, err := planner.Plan(m, readerID)
	if err != nil {
		t.Fatalf("plan reader: %v", err)
	}

	// Run a second COPY while the reader is still pending.
	morePath := writeTempCSV(t, "a\n3\n4\n5\n")
	copyID, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: morePath, HasHeader: true})
	if err != nil {
		t.Fatalf("create second copy: %v", err)
	}
	runToCompletion(t, m, copyID)

	// Now execute the reader against its already-built plan — it
	// should still see the 2-row pre-COPY snapshot, not the 5-row live
	// table.
	if err := Execute(m, readerID, readerPlan); err != nil {
		t.Fatalf("execute reader: %v", err)
	}
	results, err := m.GetQueryResult(readerID, nil)
	if err != nil {
		t.Fatalf("get reader result: %v", err)
	}
	if len(results) != 1 || results[0].NumRows != 2 {
		t.Fatalf("expected reader to observe pre-COPY snapshot of 2 rows, got %+v", results)
	}

	allID, err := m.CreateSelectAllQuery("t")
	if err != nil {
		t.Fatalf("create select all: %v", err)
	}
	q := runToCompletion(t, m, allID)
	if q.Status != query.Completed {
		t.Fatalf("expected COMPLETED, got %s", q.Status)
	}
	liveResults, err := m.GetQueryResult(allID, nil)
	if err != nil {
		t.Fatalf("get live result: %v", err)
	}
	if len(liveResults) != 1 || liveResults[0].NumRows != 5 {
		t.Fatalf("expected live table to have 5 rows after both copies, got %+v", liveResults)
	}
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}
