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

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

func newTestMetastore(t *testing.T) *catalog.Metastore {
	t.Helper()
	return catalog.New(t.TempDir(), "isdb")
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

// TestRunDrainsAllSubmittedQueries submits more queries than the
// configured concurrency and verifies every one reaches a terminal
// status by the time Run returns after Close.
func TestRunDrainsAllSubmittedQueries(t *testing.T) {
	m := newTestMetastore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	path := writeTempCSV(t, "a\n1\n2\n3\n")
	seed, err := m.CreateCopyQuery(query.CopyQuery{TableName: "t", SourceFile: path, HasHeader: true})
	if err != nil {
		t.Fatalf("create seed copy: %v", err)
	}

	e := New(m, 2, nil)

	const n = 8
	ids := make([]query.Id, 0, n+1)
	ids = append(ids, seed)
	for i := 0; i < n; i++ {
		id, err := m.CreateSelectAllQuery("t")
		if err != nil {
			t.Fatalf("create select all %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	for _, id := range ids {
		e.Submit(id)
	}
	e.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not drain in time")
	}

	for _, id := range ids {
		q, err := m.GetQuery(id)
		if err != nil {
			t.Fatalf("get query %s: %v", id, err)
		}
		if q.Status != query.Completed && q.Status != query.Failed {
			t.Fatalf("query %s left in non-terminal status %s", id, q.Status)
		}
	}
}
