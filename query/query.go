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

package query

import "github.com/google/uuid"

// Id identifies a Query. Rendered as text, backed by a random 128-bit
// value, matching spec §3's "TableId is a random 128-bit identifier
// rendered as text" (the same scheme applies to QueryId).
type Id = uuid.UUID

// NewId generates a fresh random query id.
func NewId() Id { return uuid.New() }

// OrderByExpression is one key of an ORDER BY clause. ColumnIndex
// refers to a position in the plan's projection list, not a source
// table column — validated by the planner (spec §4.4 point 5).
type OrderByExpression struct {
	ColumnIndex int
	Ascending   bool
}

// Definition is a tagged variant over the three submittable query
// shapes (spec §3 "QueryDefinition").
type DefinitionKind int

const (
	DefSelectAll DefinitionKind = iota
	DefSelect
	DefCopy
)

// SelectAllQuery selects every column and row of a table verbatim.
type SelectAllQuery struct {
	TableName string

	// ResolvedTableID pins the query to a specific table id, set by
	// package executor during COPY's snapshot redirect (spec §4.5 point 5)
	// so that a query already holding access to a table continues to
	// observe the pre-COPY snapshot instead of re-resolving TableName
	// to the (now mutated) live table. nil for ordinary, unredirected
	// queries.
	ResolvedTableID *uuid.UUID
}

// SelectQuery is a projection with optional filter, sort, and limit.
type SelectQuery struct {
	TableName  string
	Projection []*Expression
	Filter     *Expression // nil if no WHERE clause
	OrderBy    []OrderByExpression
	Limit      *uint64 // nil if unbounded

	// ResolvedTableID: see SelectAllQuery.ResolvedTableID.
	ResolvedTableID *uuid.UUID
}

// CopyQuery loads CSV data into an existing table.
type CopyQuery struct {
	TableName          string
	SourceFile         string
	HasHeader          bool
	DestinationColumns []string // nil for positional mapping

	// ResolvedTableID: see SelectAllQuery.ResolvedTableID.
	ResolvedTableID *uuid.UUID
}

// Definition is the tagged union of submittable query shapes.
type Definition struct {
	Kind DefinitionKind

	SelectAll SelectAllQuery
	Select    SelectQuery
	Copy      CopyQuery
}

// NewSelectAllDefinition builds a SelectAll query definition.
func NewSelectAllDefinition(tableName string) Definition {
	return Definition{Kind: DefSelectAll, SelectAll: SelectAllQuery{TableName: tableName}}
}

// NewSelectDefinition builds a Select query definition.
func NewSelectDefinition(q SelectQuery) Definition {
	return Definition{Kind: DefSelect, Select: q}
}

// NewCopyDefinition builds a Copy query definition.
func NewCopyDefinition(q CopyQuery) Definition {
	return Definition{Kind: DefCopy, Copy: q}
}

// Status is a query's lifecycle state. Transitions are monotonic:
// CREATED -> PLANNING -> RUNNING -> {COMPLETED | FAILED}; see
// spec §3 and the "Status monotonicity" testable property (§8).
type Status int

const (
	Created Status = iota
	Planning
	Running
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Planning:
		return "PLANNING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// terminal reports whether s is COMPLETED or FAILED.
func (s Status) terminal() bool { return s == Completed || s == Failed }

// CanTransitionTo reports whether moving from s to next respects the
// monotonic ordering CREATED -> PLANNING -> RUNNING -> {COMPLETED|FAILED}.
func (s Status) CanTransitionTo(next Status) bool {
	if s.terminal() {
		return false
	}
	switch s {
	case Created:
		return next == Planning || next == Failed
	case Planning:
		return next == Running || next == Failed
	case Running:
		return next == Completed || next == Failed
	default:
		return false
	}
}

// Result is a handle to a result table produced by a query (spec §3
// "QueryResult").
type Result struct {
	TableId uuid.UUID
}

// Error is a recorded planner/executor failure attached to a query.
type Error struct {
	Message string
	Context string // optional; empty if absent
}

// Query is the full lifecycle record for one submitted query (spec §3).
type Query struct {
	Id         Id
	Status     Status
	Definition Definition
	Result     []Result
	Errors     []Error
}

// New creates a query in the CREATED state.
func New(def Definition) *Query {
	return &Query{Id: NewId(), Status: Created, Definition: def}
}

// Transition moves the query to next if legal, returning false (and
// leaving status unchanged) otherwise.
func (q *Query) Transition(next Status) bool {
	if !q.Status.CanTransitionTo(next) {
		return false
	}
	q.Status = next
	return true
}

// Fail transitions the query to FAILED and records err.
func (q *Query) Fail(err Error) {
	q.Status = Failed
	q.Errors = append(q.Errors, err)
}
