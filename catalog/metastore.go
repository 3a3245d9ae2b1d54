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
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// ColumnSchema names one column's declared type, without its data.
type ColumnSchema struct {
	Name string
	Type table.Type
}

// TableMetaData is a table plus its human-visible name and on-disk
// file path (spec §3).
type TableMetaData struct {
	Id       uuid.UUID
	Name     string
	FilePath string
	Payload  table.Table
}

// Schema returns md's column names and types without its data.
func (md *TableMetaData) Schema() []ColumnSchema {
	cols := make([]ColumnSchema, len(md.Payload.Columns))
	for i, c := range md.Payload.Columns {
		cols[i] = ColumnSchema{Name: c.Name, Type: c.Data.Type}
	}
	return cols
}

// TableSummary is the list_tables projection: id and name only.
type TableSummary struct {
	Id   uuid.UUID
	Name string
}

// Metastore is the Catalog of spec §3: all process-wide table and
// query state, guarded by one reader-writer lock. Locks are never held
// across network I/O (spec §5); a few file operations do run under
// the lock: SaveMetastore's payload writes, the table-file removal in
// maybeCollect, and CreateCopyQuery's source-file check.
type Metastore struct {
	mu sync.RWMutex

	tablesDir     string
	fileExtension string

	tables               map[uuid.UUID]*TableMetaData
	tablesNameID         map[string]uuid.UUID
	scheduledForDeletion map[uuid.UUID]struct{}
	tableAccesses        map[uuid.UUID]map[uuid.UUID]struct{}
	queries              map[uuid.UUID]*query.Query
}

// New creates an empty Metastore. tablesDir is where per-table
// payload files are written; fileExtension is appended to each
// table's id to form its file name (spec §6, FILE_EXTENSION).
func New(tablesDir, fileExtension string) *Metastore {
	return &Metastore{
		tablesDir:            tablesDir,
		fileExtension:        fileExtension,
		tables:               make(map[uuid.UUID]*TableMetaData),
		tablesNameID:         make(map[string]uuid.UUID),
		scheduledForDeletion: make(map[uuid.UUID]struct{}),
		tableAccesses:        make(map[uuid.UUID]map[uuid.UUID]struct{}),
		queries:              make(map[uuid.UUID]*query.Query),
	}
}

func (m *Metastore) tableFilePath(id uuid.UUID) string {
	return filepath.Join(m.tablesDir, id.String()+"."+m.fileExtension)
}

// isLive reports whether id refers to a table that exists and is not
// tombstoned. Caller must hold at least a read lock.
func (m *Metastore) isLive(id uuid.UUID) bool {
	if _, ok := m.tables[id]; !ok {
		return false
	}
	_, deleted := m.scheduledForDeletion[id]
	return !deleted
}

// ListTables returns every live table's id and name (spec §4.3).
func (m *Metastore) ListTables() []TableSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TableSummary, 0, len(m.tables))
	for id, md := range m.tables {
		if _, deleted := m.scheduledForDeletion[id]; deleted {
			continue
		}
		out = append(out, TableSummary{Id: id, Name: md.Name})
	}
	return out
}

// GetTable returns the schema of the table with the given id.
func (m *Metastore) GetTable(id uuid.UUID) ([]ColumnSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isLive(id) {
		return nil, &TableAccessError{Message: "unknown table", Context: id.String()}
	}
	return m.tables[id].Schema(), nil
}

// resolveLiveName returns the id of the live table named name.
// Caller must hold at least a read lock.
func (m *Metastore) resolveLiveName(name string) (uuid.UUID, bool) {
	id, ok := m.tablesNameID[name]
	if !ok || !m.isLive(id) {
		return uuid.UUID{}, false
	}
	return id, true
}

// CreateTable allocates a new empty table with the given name and
// column schema (spec §4.3).
func (m *Metastore) CreateTable(name string, columns []ColumnSchema) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var problems []string
	if _, live := m.resolveLiveName(name); live {
		problems = append(problems, fmt.Sprintf("a live table named %q already exists", name))
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c.Name] {
			problems = append(problems, fmt.Sprintf("duplicate column name %q", c.Name))
		}
		seen[c.Name] = true
	}
	if len(problems) > 0 {
		return uuid.UUID{}, &TableCreationError{Problems: problems}
	}

	id := uuid.New()
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		switch c.Type {
		case table.INT64:
			cols[i] = table.NewIntColumn(c.Name, nil)
		case table.STRING:
			cols[i] = table.NewStringColumn(c.Name, nil)
		case table.BOOL:
			cols[i] = table.NewBoolColumn(c.Name, nil)
		}
	}

	md := &TableMetaData{
		Id:       id,
		Name:     name,
		FilePath: m.tableFilePath(id),
		Payload:  table.Table{NumRows: 0, Columns: cols},
	}
	m.tables[id] = md
	m.tablesNameID[name] = id
	return id, nil
}

// registerTable inserts an already-built table under a fresh id,
// used by CreateTable's counterparts for the executor (result and
// snapshot tables). Catalog persistence does not use it: on load,
// tables keep their saved ids. Caller must hold the write lock.
func (m *Metastore) registerTable(name string, payload table.Table) uuid.UUID {
	id := uuid.New()
	md := &TableMetaData{
		Id:       id,
		Name:     name,
		FilePath: m.tableFilePath(id),
		Payload:  payload,
	}
	m.tables[id] = md
	m.tablesNameID[name] = id
	return id
}

// DeleteTable soft-deletes the table with the given id: it becomes
// invisible to new lookups but its physical removal is deferred to
// the access-tracking GC (spec §4.3, §9 "Soft deletion").
func (m *Metastore) DeleteTable(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isLive(id) {
		return &TableDeletionError{Message: "unknown table", Context: id.String()}
	}
	m.scheduledForDeletion[id] = struct{}{}
	m.maybeCollect(id)
	return nil
}

// maybeCollect physically removes id's catalog entry and backing
// file if it is tombstoned and has no remaining readers. Caller must
// hold the write lock.
func (m *Metastore) maybeCollect(id uuid.UUID) {
	if _, tombstoned := m.scheduledForDeletion[id]; !tombstoned {
		return
	}
	if accessors, ok := m.tableAccesses[id]; ok && len(accessors) > 0 {
		return
	}
	md, ok := m.tables[id]
	if !ok {
		return
	}
	delete(m.tables, id)
	delete(m.scheduledForDeletion, id)
	delete(m.tableAccesses, id)
	if m.tablesNameID[md.Name] == id {
		delete(m.tablesNameID, md.Name)
	}
	_ = os.Remove(md.FilePath) // best-effort; table may never have been flushed to disk
}

// Lookup returns a pointer to the live TableMetaData for id, valid
// until the next write-locked mutation of that table. Readers rely on
// COPY's snapshot protocol (see ExecuteCopy in package executor) to
// guarantee a table is never mutated out from under a registered
// accessor.
func (m *Metastore) Lookup(id uuid.UUID) (*TableMetaData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isLive(id) {
		return nil, &TableAccessError{Message: "unknown table", Context: id.String()}
	}
	return m.tables[id], nil
}

// ResolveName returns the id of the live table named name.
func (m *Metastore) ResolveName(name string) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLiveName(name)
}

// AddAccess records that query qid depends on table id (spec §3,
// table_accesses).
func (m *Metastore) AddAccess(id, qid uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAccessLocked(id, qid)
}

func (m *Metastore) addAccessLocked(id, qid uuid.UUID) {
	set, ok := m.tableAccesses[id]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		m.tableAccesses[id] = set
	}
	set[qid] = struct{}{}
}

// ReleaseAccess removes query qid's dependency on table id and
// collects the table if this was its last reader and it is
// tombstoned.
func (m *Metastore) ReleaseAccess(id, qid uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseAccessLocked(id, qid)
}

func (m *Metastore) releaseAccessLocked(id, qid uuid.UUID) {
	if set, ok := m.tableAccesses[id]; ok {
		delete(set, qid)
	}
	m.maybeCollect(id)
}

// RegisterResultTable inserts payload as a new table and immediately
// tombstones it, per spec §4.3 "GC of result tables": every result
// table starts scheduled for deletion and survives only as long as
// some query's reader set keeps it alive.
func (m *Metastore) RegisterResultTable(name string, payload table.Table) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.registerTable(name, payload)
	m.scheduledForDeletion[id] = struct{}{}
	return id
}

// WithWriteTable runs fn with the write lock held, passing both the
// Metastore (so fn may perform further bookkeeping, e.g. the COPY
// snapshot redirect) and the target table's metadata. Used by
// package executor for CopyFromCsv's snapshot protocol (spec §4.5
// point 5), which must perform several catalog mutations atomically.
func (m *Metastore) WithWriteTable(id uuid.UUID, fn func(m *Metastore, md *TableMetaData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isLive(id) {
		return &TableAccessError{Message: "unknown table", Context: id.String()}
	}
	return fn(m, m.tables[id])
}

// AccessorsOf returns the set of query ids currently depending on
// table id, excluding except. Caller must hold the write lock (called
// from within WithWriteTable).
func (m *Metastore) AccessorsOf(id uuid.UUID, except uuid.UUID) []uuid.UUID {
	set := m.tableAccesses[id]
	out := make([]uuid.UUID, 0, len(set))
	for qid := range set {
		if qid != except {
			out = append(out, qid)
		}
	}
	return out
}

// RedirectAccess moves qid's dependency from fromTable to toTable.
// Caller must hold the write lock.
func (m *Metastore) RedirectAccess(fromTable, toTable, qid uuid.UUID) {
	if set, ok := m.tableAccesses[fromTable]; ok {
		delete(set, qid)
	}
	m.addAccessLocked(toTable, qid)
}

// RegisterSnapshot inserts payload as a new tombstoned table with a
// synthesised name, for COPY's snapshot protocol. Caller must hold
// the write lock.
func (m *Metastore) RegisterSnapshot(payload table.Table) uuid.UUID {
	name := "__snapshot_" + uuid.New().String()
	tid := m.registerTable(name, payload)
	m.scheduledForDeletion[tid] = struct{}{}
	return tid
}

// QueryUnsafe returns the live *query.Query for id without locking.
// Callers must already hold m's write lock — in practice, only the
// body of a WithWriteTable callback, which needs to rewrite other
// queries' definitions and results during COPY's snapshot redirect
// (spec §4.5 point 5).
func (m *Metastore) QueryUnsafe(id uuid.UUID) (*query.Query, bool) {
	q, ok := m.queries[id]
	return q, ok
}

// GetQueryByID returns the query with the given id, for mutation by
// package planner/executor. Caller must synchronize externally;
// Query itself is not protected by the Metastore's lock since
// planning/execution own it for the duration of one task (spec §5:
// "within one query, planner phases run-to-completion before
// executor phases").
func (m *Metastore) GetQueryByID(id uuid.UUID) (*query.Query, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, &QueryAccessError{Message: "unknown query", Context: id.String()}
	}
	return q, nil
}
