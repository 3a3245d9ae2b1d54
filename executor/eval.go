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
	"strings"

	"github.com/isdb-project/isdb/planner"
	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// workingSet holds one select's evaluation state: a shared handle per
// referenced column name, and a memoization cache keyed by flat
// expression id (spec §4.5 point 2, §9 "Shared column data"). Working
// columns are never mutated in place — filtering and projection build
// fresh table.Data values — so sharing a *table.Data pointer across
// several expressions is safe without reference counting.
type workingSet struct {
	rowCount int
	nodes    []planner.FlatExpression
	columns  map[string]*table.Data
	cache    map[int]*table.Data
}

func newWorkingSet(nodes []planner.FlatExpression, columns map[string]*table.Data, rowCount int) *workingSet {
	return &workingSet{rowCount: rowCount, nodes: nodes, columns: columns, cache: make(map[int]*table.Data)}
}

// evaluate computes (and memoizes) the column produced by node id.
func (w *workingSet) evaluate(id int) (*table.Data, error) {
	if cached, ok := w.cache[id]; ok {
		return cached, nil
	}
	node := w.nodes[id]

	var result *table.Data
	var err error
	switch node.Kind {
	case query.ExprRef:
		col, ok := w.columns[node.RefName]
		if !ok {
			return nil, newErr("unresolved working column %q", node.RefName)
		}
		result = col

	case query.ExprLiteral:
		result = literalColumn(node.Literal, w.rowCount)

	case query.ExprFunction:
		result, err = w.evaluateFunction(node)

	case query.ExprBinary:
		result, err = w.evaluateBinary(node)

	case query.ExprUnary:
		result, err = w.evaluateUnary(node)

	default:
		return nil, newErr("unknown expression kind %v", node.Kind)
	}
	if err != nil {
		return nil, err
	}
	w.cache[id] = result
	return result, nil
}

func literalColumn(lit query.Literal, rowCount int) *table.Data {
	switch lit.Type {
	case table.INT64:
		vals := make([]int64, rowCount)
		for i := range vals {
			vals[i] = lit.I64
		}
		d := table.NewIntData(vals)
		return &d
	case table.STRING:
		vals := make([]string, rowCount)
		for i := range vals {
			vals[i] = lit.Str
		}
		d := table.NewStringData(vals)
		return &d
	case table.BOOL:
		vals := make([]bool, rowCount)
		for i := range vals {
			vals[i] = lit.Bool
		}
		d := table.NewBoolData(vals)
		return &d
	default:
		d := table.Data{}
		return &d
	}
}

func (w *workingSet) evaluateFunction(node planner.FlatExpression) (*table.Data, error) {
	args := make([]*table.Data, len(node.FuncArgs))
	for i, argID := range node.FuncArgs {
		arg, err := w.evaluate(argID)
		if err != nil {
			return nil, err
		}
		args[i] = arg
	}

	switch node.FuncName {
	case query.FuncStrlen:
		s := args[0].Strs
		out := make([]int64, len(s))
		for i, v := range s {
			out[i] = int64(len(v))
		}
		d := table.NewIntData(out)
		return &d, nil

	case query.FuncConcat:
		a, b := args[0].Strs, args[1].Strs
		out := make([]string, len(a))
		for i := range a {
			out[i] = a[i] + b[i]
		}
		d := table.NewStringData(out)
		return &d, nil

	case query.FuncUpper:
		s := args[0].Strs
		out := make([]string, len(s))
		for i, v := range s {
			out[i] = strings.ToUpper(v)
		}
		d := table.NewStringData(out)
		return &d, nil

	case query.FuncLower:
		s := args[0].Strs
		out := make([]string, len(s))
		for i, v := range s {
			out[i] = strings.ToLower(v)
		}
		d := table.NewStringData(out)
		return &d, nil

	default:
		return nil, newErr("unknown function %v", node.FuncName)
	}
}

func (w *workingSet) evaluateBinary(node planner.FlatExpression) (*table.Data, error) {
	left, err := w.evaluate(node.BinLeft)
	if err != nil {
		return nil, err
	}
	right, err := w.evaluate(node.BinRight)
	if err != nil {
		return nil, err
	}

	switch node.BinOp {
	case query.OpAdd, query.OpSub, query.OpMul, query.OpDiv:
		out := make([]int64, len(left.Ints))
		for i := range out {
			a, b := left.Ints[i], right.Ints[i]
			switch node.BinOp {
			case query.OpAdd:
				out[i] = a + b
			case query.OpSub:
				out[i] = a - b
			case query.OpMul:
				out[i] = a * b
			case query.OpDiv:
				if b == 0 {
					return nil, newErr("division by zero")
				}
				out[i] = a / b
			}
		}
		d := table.NewIntData(out)
		return &d, nil

	case query.OpAnd, query.OpOr:
		out := make([]bool, len(left.Bools))
		for i := range out {
			a, b := left.Bools[i], right.Bools[i]
			if node.BinOp == query.OpAnd {
				out[i] = a && b
			} else {
				out[i] = a || b
			}
		}
		d := table.NewBoolData(out)
		return &d, nil

	case query.OpEq, query.OpNeq, query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		return compareColumns(left, right, node.BinOp)

	default:
		return nil, newErr("unknown binary operator %v", node.BinOp)
	}
}

// compareColumns applies a comparison operator element-wise over two
// columns of the same (dynamic) type, returning a fresh BOOL column.
func compareColumns(left, right *table.Data, op query.BinOperator) (*table.Data, error) {
	n := left.Len()
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		rel := compareAt(left, right, i)
		out[i] = satisfies(rel, op)
	}
	d := table.NewBoolData(out)
	return &d, nil
}

// compareAt returns -1/0/1 comparing left[i] to right[i], per their
// shared dynamic type.
func compareAt(left, right *table.Data, i int) int {
	switch left.Type {
	case table.INT64:
		a, b := left.Ints[i], right.Ints[i]
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case table.STRING:
		return strings.Compare(left.Strs[i], right.Strs[i])
	case table.BOOL:
		a, b := left.Bools[i], right.Bools[i]
		if a == b {
			return 0
		}
		if !a && b {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func satisfies(rel int, op query.BinOperator) bool {
	switch op {
	case query.OpEq:
		return rel == 0
	case query.OpNeq:
		return rel != 0
	case query.OpLt:
		return rel < 0
	case query.OpLte:
		return rel <= 0
	case query.OpGt:
		return rel > 0
	case query.OpGte:
		return rel >= 0
	default:
		return false
	}
}

func (w *workingSet) evaluateUnary(node planner.FlatExpression) (*table.Data, error) {
	arg, err := w.evaluate(node.UnaryArg)
	if err != nil {
		return nil, err
	}
	switch node.UnaryOp {
	case query.OpNeg:
		out := make([]int64, len(arg.Ints))
		for i, v := range arg.Ints {
			out[i] = -v
		}
		d := table.NewIntData(out)
		return &d, nil
	case query.OpNot:
		out := make([]bool, len(arg.Bools))
		for i, v := range arg.Bools {
			out[i] = !v
		}
		d := table.NewBoolData(out)
		return &d, nil
	default:
		return nil, newErr("unknown unary operator %v", node.UnaryOp)
	}
}
