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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

func newStore(t *testing.T) *catalog.Metastore {
	t.Helper()
	return catalog.New(t.TempDir(), "isdb")
}

func TestPlanSelectTypeErrorAtPlanTime(t *testing.T) {
	m := newStore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{
		{Name: "a", Type: table.INT64},
		{Name: "b", Type: table.STRING},
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}

	qid, err := m.CreateSelectQuery(query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Bin(query.Ref("a"), query.OpAdd, query.Ref("b"))},
	})
	if err != nil {
		t.Fatalf("create select query: %v", err)
	}

	_, err = Plan(m, qid)
	if err == nil {
		t.Fatal("expected planning to fail for a + b over (i64, string)")
	}
	if !strings.Contains(err.Error(), "Wrong types of arguments in binary operation") {
		t.Fatalf("expected type-mismatch message, got %q", err.Error())
	}

	q, getErr := m.GetQuery(qid)
	if getErr != nil {
		t.Fatalf("get query: %v", getErr)
	}
	if q.Status != query.Failed {
		t.Fatalf("expected query to transition to FAILED, got %s", q.Status)
	}
	if len(q.Result) != 0 {
		t.Fatal("expected no result table for a failed query")
	}
}

func TestPlanSelectCanonicalisesCommutativeOperands(t *testing.T) {
	m := newStore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{
		{Name: "a", Type: table.INT64},
		{Name: "b", Type: table.INT64},
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}

	// SELECT a+b WHERE b+a > 0
	qid, err := m.CreateSelectQuery(query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Bin(query.Ref("a"), query.OpAdd, query.Ref("b"))},
		Filter: query.Bin(
			query.Bin(query.Ref("b"), query.OpAdd, query.Ref("a")),
			query.OpGt,
			query.Lit(query.NewIntLiteral(0)),
		),
	})
	if err != nil {
		t.Fatalf("create select query: %v", err)
	}

	plan, err := Plan(m, qid)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	sel := plan.Select

	projectionNodeID := sel.Projection[0]
	filterNode := sel.Nodes[sel.FilterID]
	if filterNode.Kind != query.ExprBinary {
		t.Fatalf("expected filter root to be a binary comparison, got %v", filterNode.Kind)
	}
	sumNodeID := filterNode.BinLeft // "b+a" operand of the ">" comparison

	if projectionNodeID != sumNodeID {
		t.Fatalf("expected a+b and b+a to intern to the same node, got %d and %d", projectionNodeID, sumNodeID)
	}
}

func TestPlanSelectRejectsOutOfBoundsOrderBy(t *testing.T) {
	m := newStore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	qid, err := m.CreateSelectQuery(query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Ref("a")},
		OrderBy:    []query.OrderByExpression{{ColumnIndex: 5, Ascending: true}},
	})
	if err != nil {
		t.Fatalf("create select query: %v", err)
	}
	if _, err := Plan(m, qid); err == nil {
		t.Fatal("expected planning to reject an out-of-bounds ORDER BY column index")
	}
}

func TestPlanSelectRejectsUnknownColumn(t *testing.T) {
	m := newStore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{{Name: "a", Type: table.INT64}}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	qid, err := m.CreateSelectQuery(query.SelectQuery{
		TableName:  "t",
		Projection: []*query.Expression{query.Ref("nope")},
	})
	if err != nil {
		t.Fatalf("create select query: %v", err)
	}
	if _, err := Plan(m, qid); err == nil {
		t.Fatal("expected planning to reject an unresolved column reference")
	}
}

func TestPlanCopyValidatesDestinationColumnsLength(t *testing.T) {
	m := newStore(t)
	if _, err := m.CreateTable("t", []catalog.ColumnSchema{
		{Name: "a", Type: table.INT64},
		{Name: "b", Type: table.STRING},
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	path := writeTempCSV(t, "a\n1\n")
	qid, err := m.CreateCopyQuery(query.CopyQuery{
		TableName:          "t",
		SourceFile:         path,
		DestinationColumns: []string{"a"}, // wrong length: table has 2 columns
	})
	if err != nil {
		t.Fatalf("create copy query: %v", err)
	}
	if _, err := Plan(m, qid); err == nil {
		t.Fatal("expected planning to reject a mismatched destination_columns length")
	}
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}
