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

// Package catalog implements the Metastore: the process-wide table
// and query registry described in spec §3 and §4.3.
package catalog

import "strings"

// TableAccessError is returned when a table lookup fails (unknown id,
// or the id refers to a soft-deleted table).
type TableAccessError struct {
	Message string
	Context string
}

func (e *TableAccessError) Error() string { return withContext(e.Message, e.Context) }

// TableCreationError reports every problem found with a create_table
// request; Problems is never empty when this error is returned.
type TableCreationError struct {
	Problems []string
}

func (e *TableCreationError) Error() string {
	return "table creation failed: " + strings.Join(e.Problems, "; ")
}

// TableDeletionError is returned when delete_table targets an unknown
// or already soft-deleted table.
type TableDeletionError struct {
	Message string
	Context string
}

func (e *TableDeletionError) Error() string { return withContext(e.Message, e.Context) }

// QueryAccessError is returned when a query lookup fails.
type QueryAccessError struct {
	Message string
	Context string
}

func (e *QueryAccessError) Error() string { return withContext(e.Message, e.Context) }

// QueryCreationError reports every problem found with a
// create_*_query request; Problems is never empty when returned.
type QueryCreationError struct {
	Problems []string
}

func (e *QueryCreationError) Error() string {
	return "query creation failed: " + strings.Join(e.Problems, "; ")
}

// QueryResultAccessError is returned when get_query_result(_flush) is
// called on a query with no (or not-yet-available) result.
type QueryResultAccessError struct {
	Message string
	Context string
}

func (e *QueryResultAccessError) Error() string { return withContext(e.Message, e.Context) }

// QueryErrorAccessError is returned when get_query_error is called on
// a query that has not failed.
type QueryErrorAccessError struct {
	Message string
	Context string
}

func (e *QueryErrorAccessError) Error() string { return withContext(e.Message, e.Context) }

func withContext(message, context string) string {
	if context == "" {
		return message
	}
	return message + " (" + context + ")"
}
