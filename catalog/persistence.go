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
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/serializer"
)

// snapshot is the JSON-serialisable projection of a Metastore: every
// field of spec §3 except in-memory table payloads, which are
// persisted separately via the serializer, one file per table (spec
// §6 "Catalog persistence").
type snapshot struct {
	TablesDir     string                     `json:"tables_dir"`
	FileExtension string                     `json:"file_extension"`
	Tables        []tableMetaSnapshot        `json:"tables"`
	ScheduledFor  []uuid.UUID                `json:"scheduled_for_deletion"`
	TableAccesses map[uuid.UUID][]uuid.UUID  `json:"table_accesses"`
	Queries       map[uuid.UUID]query.Query  `json:"queries"`
}

type tableMetaSnapshot struct {
	Id       uuid.UUID      `json:"id"`
	Name     string         `json:"name"`
	FilePath string         `json:"file_path"`
	Schema   []ColumnSchema `json:"schema"`
}

// SaveMetastore writes m's metadata as JSON to metastorePath and each
// table's payload (tombstoned tables included) to its file path via s. Save errors are
// logged by the caller, not treated as fatal (spec §7).
func (m *Metastore) SaveMetastore(metastorePath string, s *serializer.Serializer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := snapshot{
		TablesDir:     m.tablesDir,
		FileExtension: m.fileExtension,
		TableAccesses: make(map[uuid.UUID][]uuid.UUID, len(m.tableAccesses)),
		Queries:       make(map[uuid.UUID]query.Query, len(m.queries)),
	}
	for id := range m.scheduledForDeletion {
		snap.ScheduledFor = append(snap.ScheduledFor, id)
	}
	for id, accessors := range m.tableAccesses {
		ids := make([]uuid.UUID, 0, len(accessors))
		for qid := range accessors {
			ids = append(ids, qid)
		}
		snap.TableAccesses[id] = ids
	}
	for id, q := range m.queries {
		snap.Queries[id] = *q
	}

	for id, md := range m.tables {
		snap.Tables = append(snap.Tables, tableMetaSnapshot{
			Id:       id,
			Name:     md.Name,
			FilePath: md.FilePath,
			Schema:   md.Schema(),
		})
		if err := s.Serialize(md.FilePath, &md.Payload); err != nil {
			return fmt.Errorf("saving table %s payload: %w", id, err)
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metastore: %w", err)
	}
	if err := os.WriteFile(metastorePath, data, 0o644); err != nil {
		return fmt.Errorf("writing metastore file: %w", err)
	}
	return nil
}

// LoadMetastore reads a Metastore previously written by SaveMetastore:
// the JSON metadata file, then each table's payload file via s. Load
// errors are fatal at startup (spec §7).
func LoadMetastore(metastorePath string, s *serializer.Serializer) (*Metastore, error) {
	data, err := os.ReadFile(metastorePath)
	if err != nil {
		return nil, fmt.Errorf("reading metastore file: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling metastore: %w", err)
	}

	m := New(snap.TablesDir, snap.FileExtension)
	for _, ts := range snap.Tables {
		payload, err := s.Deserialize(ts.FilePath)
		if err != nil {
			return nil, fmt.Errorf("loading table %s payload: %w", ts.Id, err)
		}
		md := &TableMetaData{Id: ts.Id, Name: ts.Name, FilePath: ts.FilePath, Payload: *payload}
		m.tables[ts.Id] = md
		m.tablesNameID[ts.Name] = ts.Id
	}
	for _, id := range snap.ScheduledFor {
		m.scheduledForDeletion[id] = struct{}{}
	}
	for id, accessors := range snap.TableAccesses {
		set := make(map[uuid.UUID]struct{}, len(accessors))
		for _, qid := range accessors {
			set[qid] = struct{}{}
		}
		m.tableAccesses[id] = set
	}
	for id, q := range snap.Queries {
		qCopy := q
		m.queries[id] = &qCopy
	}

	return m, nil
}
