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

import "testing"

func TestStatusMonotonicHappyPath(t *testing.T) {
	q := New(NewSelectAllDefinition("t"))
	if q.Status != Created {
		t.Fatalf("want CREATED, got %s", q.Status)
	}
	for _, next := range []Status{Planning, Running, Completed} {
		if !q.Transition(next) {
			t.Fatalf("expected transition to %s to succeed", next)
		}
	}
	if q.Status != Completed {
		t.Fatalf("want COMPLETED, got %s", q.Status)
	}
}

func TestStatusNeverGoesBackward(t *testing.T) {
	q := New(NewSelectAllDefinition("t"))
	q.Transition(Planning)
	q.Transition(Running)
	q.Transition(Completed)

	if q.Transition(Running) {
		t.Fatal("expected terminal query to reject further transitions")
	}
	if q.Status != Completed {
		t.Fatalf("status must remain COMPLETED, got %s", q.Status)
	}
}

func TestFailIsTerminalFromAnyNonTerminalState(t *testing.T) {
	for _, start := range []Status{Created, Planning, Running} {
		q := New(NewSelectAllDefinition("t"))
		q.Status = start
		q.Fail(Error{Message: "boom"})
		if q.Status != Failed {
			t.Fatalf("from %s: want FAILED, got %s", start, q.Status)
		}
		if len(q.Errors) != 1 || q.Errors[0].Message != "boom" {
			t.Fatalf("expected recorded error, got %v", q.Errors)
		}
	}
}

func TestCommutativeOperatorsMatchSpecSet(t *testing.T) {
	commutative := map[BinOperator]bool{
		OpAdd: true, OpMul: true, OpAnd: true, OpOr: true, OpEq: true, OpNeq: true,
		OpSub: false, OpDiv: false, OpLt: false, OpLte: false, OpGt: false, OpGte: false,
	}
	for op, want := range commutative {
		if got := op.Commutative(); got != want {
			t.Fatalf("operator %s: want Commutative()=%v, got %v", op, want, got)
		}
	}
}
