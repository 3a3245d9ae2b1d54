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

// Package executor runs a planner.PhysicalPlan against the catalog,
// producing query.Result handles (spec §4.5).
package executor

import "fmt"

// Error is an executor-local failure, recorded into the owning query
// and reported via its Errors field.
type Error struct {
	Message string
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Context)
}

func newErr(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}
