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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

func newTestMetastore(t *testing.T) *Metastore {
	t.Helper()
	return New(t.TempDir(), "isdb")
}

func TestCreateTableRejectsDuplicateLiveName(t *testing.T) {
	m := newTestMetastore(t)
	cols := []ColumnSchema{{Name: "a", Type: table.INT64}}
	if _, err := m.CreateTable("t", cols); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := m.CreateTable("t", cols)
	if err == nil {
		t.Fatal("expected error creating duplicate-named live table")
	}
}

func TestCreateTableRejectsDuplicateColumnNames(t *testing.T) {
	m := newTestMetastore(t)
	cols := []ColumnSchema{{Name: "a", Type: table.INT64}, {Name: "a", Type: table.STRING}}
	_, err := m.CreateTable("t", cols)
	if err == nil {
		t.Fatal("expected error for duplicate column names")
	}
}

func TestNameReusableAfterSoftDelete(t *testing.T) {
	m := newTestMetastore(t)
	cols := []ColumnSchema{{Name: "a", Type: table.INT64}}
	id1, err := m.CreateTable("t", cols)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.DeleteTable(id1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	id2, err := m.CreateTable("t", cols)
	if err != nil {
		t.Fatalf("expected name reuse to succeed, got %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected a fresh id for the reused name")
	}
}

func TestListTablesHidesSoftDeleted(t *testing.T) {
	m := newTestMetastore(t)
	cols := []ColumnSchema{{Name: "a", Type: table.INT64}}
	id, err := m.CreateTable("t", cols)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := len(m.ListTables()); got != 1 {
		t.Fatalf("want 1 table listed, got %d", got)
	}
	if err := m.DeleteTable(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := len(m.ListTables()); got != 0 {
		t.Fatalf("want 0 tables listed after delete, got %d", got)
	}
}

func TestResultTableCollectedWhenReaderSetEmpties(t *testing.T) {
	m := newTestMetastore(t)
	payload := table.Table{
		NumRows: 1,
		Columns: []table.Column{table.NewIntColumn("x", []int64{1})},
	}
	id := m.RegisterResultTable("result", payload)

	qid := uuid.New()
	m.AddAccess(id, qid)

	// Result tables are tombstoned from registration, so Lookup never
	// admits them; check the catalog entry itself.
	if _, ok := m.tables[id]; !ok {
		t.Fatal("expected table to still exist while reader is registered")
	}

	m.ReleaseAccess(id, qid)

	if _, ok := m.tables[id]; ok {
		t.Fatal("expected result table to be collected once its reader set emptied")
	}
}

func TestDeleteTableDeferredUntilReaderSetEmpty(t *testing.T) {
	m := newTestMetastore(t)
	id, err := m.CreateTable("t", []ColumnSchema{{Name: "a", Type: table.INT64}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	qid := uuid.New()
	m.AddAccess(id, qid)

	if err := m.DeleteTable(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// soft-deleted but still has a reader: should not yet be physically gone
	if _, err := m.Lookup(id); err == nil {
		t.Fatal("expected Lookup to treat soft-deleted table as inaccessible to new readers")
	}
	if _, ok := m.tables[id]; !ok {
		t.Fatal("expected soft-deleted table to remain in the catalog while it has a reader")
	}

	m.ReleaseAccess(id, qid)
	// after release, nothing should panic and the entry is fully gone
	if accessors := m.tableAccesses[id]; len(accessors) != 0 {
		t.Fatalf("expected no remaining accessors, got %v", accessors)
	}
	if _, ok := m.tables[id]; ok {
		t.Fatal("expected soft-deleted table to be removed once its reader set emptied")
	}
}

func TestQueryLifecycleRecordsAccess(t *testing.T) {
	m := newTestMetastore(t)
	tid, err := m.CreateTable("t", []ColumnSchema{{Name: "a", Type: table.INT64}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	qid, err := m.CreateSelectAllQuery("t")
	if err != nil {
		t.Fatalf("create select all: %v", err)
	}
	q, err := m.GetQuery(qid)
	if err != nil {
		t.Fatalf("get query: %v", err)
	}
	if q.Status != query.Created {
		t.Fatalf("want CREATED, got %s", q.Status)
	}
	if _, ok := m.tableAccesses[tid][qid]; !ok {
		t.Fatal("expected the query to be recorded in its table's access set")
	}
}

func TestCreateCopyQueryRejectsMissingSourceFile(t *testing.T) {
	m := newTestMetastore(t)
	if _, err := m.CreateTable("t", []ColumnSchema{{Name: "a", Type: table.INT64}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: "/does/not/exist.csv"})
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
}

func TestCreateCopyQueryAcceptsExistingSourceFile(t *testing.T) {
	m := newTestMetastore(t)
	if _, err := m.CreateTable("t", []ColumnSchema{{Name: "a", Type: table.INT64}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("a\n1\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	_, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: path, HasHeader: true})
	if err != nil {
		t.Fatalf("expected copy query creation to succeed, got %v", err)
	}
}

func TestGetQueryResultRowLimit(t *testing.T) {
	m := newTestMetastore(t)
	payload := table.Table{
		NumRows: 5,
		Columns: []table.Column{table.NewIntColumn("x", []int64{1, 2, 3, 4, 5})},
	}
	resultID := m.RegisterResultTable("result", payload)

	q := query.New(query.NewSelectAllDefinition("ignored"))
	q.Status = query.Completed
	q.Result = []query.Result{{TableId: resultID}}
	m.mu.Lock()
	m.queries[q.Id] = q
	m.mu.Unlock()
	m.AddAccess(resultID, q.Id)

	limit := uint64(2)
	tables, err := m.GetQueryResult(q.Id, &limit)
	if err != nil {
		t.Fatalf("get query result: %v", err)
	}
	if len(tables) != 1 || tables[0].NumRows != 2 {
		t.Fatalf("expected 1 table truncated to 2 rows, got %+v", tables)
	}
}
