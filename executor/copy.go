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
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/catalog"
	"github.com/isdb-project/isdb/planner"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// ExecuteCopy implements spec §4.5 "Copy from CSV", steps 1-6.
func ExecuteCopy(m *catalog.Metastore, queryID uuid.UUID, q *query.Query, plan planner.CopyFromCsvPlan) error {
	records, err := readCSV(plan.SourceFile, plan.HasHeader)
	if err != nil {
		return err
	}

	md, err := m.Lookup(plan.TableID)
	if err != nil {
		return err
	}
	targetColumns := md.Payload.Columns // original column order, read from the table Lookup returned

	mapping, err := resolveMapping(plan.DestinationColumns, targetColumns, recordWidth(records))
	if err != nil {
		return err
	}

	shadow, appended, err := parseShadowColumns(records, targetColumns, mapping)
	if err != nil {
		return err
	}

	return m.WithWriteTable(plan.TableID, func(m *catalog.Metastore, md *catalog.TableMetaData) error {
		return commitCopy(m, queryID, md, shadow, appended)
	})
}

func recordWidth(records [][]string) int {
	if len(records) == 0 {
		return 0
	}
	return len(records[0])
}

// readCSV parses path into a matrix of string fields, optionally
// skipping the first record as a header (spec §4.5 point 1).
func readCSV(path string, hasHeader bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr("opening CSV file: %s", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // enforce uniform width ourselves, with a row-qualified error
	records, err := r.ReadAll()
	if err != nil {
		return nil, newErr("parsing CSV file: %s", err)
	}
	if hasHeader && len(records) > 0 {
		records = records[1:]
	}
	return records, nil
}

// resolveMapping implements spec §4.5 point 3: an explicit mapping
// must have one entry per target column, must not exceed the CSV
// width, and every entry must name an existing column; an absent
// mapping requires the CSV width to equal the target column count and
// binds positionally.
func resolveMapping(destinationColumns []string, targetColumns []table.Column, csvWidth int) ([]int, error) {
	byName := make(map[string]int, len(targetColumns))
	for i, c := range targetColumns {
		byName[c.Name] = i
	}

	if destinationColumns == nil {
		if csvWidth != len(targetColumns) {
			return nil, newErr("CSV has %d columns but target table has %d", csvWidth, len(targetColumns))
		}
		mapping := make([]int, csvWidth)
		for i := range mapping {
			mapping[i] = i
		}
		return mapping, nil
	}

	if len(destinationColumns) != len(targetColumns) {
		return nil, newErr("destination_columns has %d entries but target table has %d columns", len(destinationColumns), len(targetColumns))
	}
	if len(destinationColumns) > csvWidth {
		return nil, newErr("destination_columns has more entries (%d) than the CSV has fields (%d)", len(destinationColumns), csvWidth)
	}
	mapping := make([]int, len(destinationColumns))
	for csvIdx, name := range destinationColumns {
		targetIdx, ok := byName[name]
		if !ok {
			return nil, newErr("destination column %q does not exist on target table", name)
		}
		mapping[csvIdx] = targetIdx
	}
	return mapping, nil
}

// parseShadowColumns parses records into one typed buffer per target
// column (spec §4.5 points 2-4), returning the buffers keyed by
// target column index and the number of rows appended.
func parseShadowColumns(records [][]string, targetColumns []table.Column, mapping []int) (map[int]*table.Data, int, error) {
	shadow := make(map[int]*table.Data, len(mapping))
	for _, targetIdx := range mapping {
		d := table.Data{Type: targetColumns[targetIdx].Data.Type}
		shadow[targetIdx] = &d
	}

	width := recordWidth(records)
	for rowIdx, record := range records {
		if len(record) != width {
			return nil, 0, newErr("row %d: expected %d fields, got %d", rowIdx, width, len(record))
		}
		for csvIdx, targetIdx := range mapping {
			field := strings.TrimSpace(record[csvIdx])
			col := targetColumns[targetIdx]
			if err := appendField(shadow[targetIdx], col.Data.Type, field); err != nil {
				return nil, 0, newErr("row %d, column %q: %s", rowIdx, col.Name, err)
			}
		}
	}
	return shadow, len(records), nil
}

func appendField(d *table.Data, typ table.Type, field string) error {
	switch typ {
	case table.INT64:
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return newErr("value %q is not a valid INT64", field)
		}
		d.Ints = append(d.Ints, v)
	case table.STRING:
		d.Strs = append(d.Strs, field)
	case table.BOOL:
		switch field {
		case "true":
			d.Bools = append(d.Bools, true)
		case "false":
			d.Bools = append(d.Bools, false)
		default:
			return newErr("value %q is not a valid BOOL (expected \"true\" or \"false\")", field)
		}
	}
	return nil
}

// commitCopy runs under the Metastore's write lock: it performs the
// snapshot redirect of any other current readers (spec §4.5 point 5)
// and then appends the parsed rows to the live table (point 6, the
// append-style semantics decided authoritative per spec §9).
func commitCopy(m *catalog.Metastore, queryID uuid.UUID, md *catalog.TableMetaData, shadow map[int]*table.Data, appended int) error {
	others := m.AccessorsOf(md.Id, queryID)
	if len(others) > 0 {
		snapshotPayload := md.Payload.Clone()
		snapshotID := m.RegisterSnapshot(snapshotPayload)

		for _, qid := range others {
			q, ok := m.QueryUnsafe(qid)
			if !ok {
				continue
			}
			redirectDefinition(q, md.Id, snapshotID)
			redirectResults(q, md.Id, snapshotID)
			m.RedirectAccess(md.Id, snapshotID, qid)
		}
	}

	for targetIdx, buf := range shadow {
		col := &md.Payload.Columns[targetIdx]
		if col.Data.Type != buf.Type {
			return newErr("shadow buffer type mismatch for column %q", col.Name)
		}
		switch col.Data.Type {
		case table.INT64:
			col.Data.Ints = append(col.Data.Ints, buf.Ints...)
		case table.STRING:
			col.Data.Strs = append(col.Data.Strs, buf.Strs...)
		case table.BOOL:
			col.Data.Bools = append(col.Data.Bools, buf.Bools...)
		}
	}
	md.Payload.NumRows += uint64(appended)
	return nil
}

// redirectDefinition rewrites q's still-unresolved table reference
// from the original id to the snapshot id, so that later planning of
// a CREATED/PLANNING query observes the pre-COPY content instead of
// re-resolving its table name to the now-mutated live table.
func redirectDefinition(q *query.Query, from, to uuid.UUID) {
	switch q.Definition.Kind {
	case query.DefSelectAll:
		if resolvedOrNameMatches(q.Definition.SelectAll.ResolvedTableID, from) {
			id := to
			q.Definition.SelectAll.ResolvedTableID = &id
		}
	case query.DefSelect:
		if resolvedOrNameMatches(q.Definition.Select.ResolvedTableID, from) {
			id := to
			q.Definition.Select.ResolvedTableID = &id
		}
	case query.DefCopy:
		if resolvedOrNameMatches(q.Definition.Copy.ResolvedTableID, from) {
			id := to
			q.Definition.Copy.ResolvedTableID = &id
		}
	}
}

// resolvedOrNameMatches reports whether a query not yet pinned to a
// specific table id (resolved == nil, meaning it will resolve by
// name at plan time) should be redirected. Any accessor in the
// table's reader set depends on `from` by construction, so an unset
// pin always qualifies; an already-redirected pin only matches if it
// points at `from` (e.g. a chain of successive COPYs).
func resolvedOrNameMatches(resolved *uuid.UUID, from uuid.UUID) bool {
	return resolved == nil || *resolved == from
}

// redirectResults rewrites any already-materialised result handles
// that point at the original table (e.g. a completed SelectAll, which
// references its target table directly with no copy) to point at the
// snapshot instead.
func redirectResults(q *query.Query, from, to uuid.UUID) {
	for i := range q.Result {
		if q.Result[i].TableId == from {
			q.Result[i].TableId = to
		}
	}
}
