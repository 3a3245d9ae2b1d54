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

// Package planner turns a submitted query.Query into a type-checked,
// flattened PhysicalPlan (spec §4.4). It is the only package that
// inspects query.Expression trees directly; package executor
// evaluates the flattened form this package produces.
package planner

import (
	"fmt"

	"github.com/isdb-project/isdb/query"
	"github.com/isdb-project/isdb/table"
)

// FlatExpression is one node of the planner's flattened expression
// array: children are referenced by index into the same array rather
// than by pointer (spec §3 "Expression tree", §9 "Flat expression
// trees").
type FlatExpression struct {
	Kind query.ExpressionKind
	Type table.Type

	RefName string
	Literal query.Literal

	FuncName FunctionRef
	FuncArgs []int

	BinOp    query.BinOperator
	BinLeft  int
	BinRight int

	UnaryOp  query.UnaryOperator
	UnaryArg int
}

// FunctionRef is a type alias kept distinct from query.FunctionName so
// the flat-node field reads clearly at call sites; the underlying
// values are identical.
type FunctionRef = query.FunctionName

// flattener owns the hash-cons map during one planning pass.
type flattener struct {
	nodes []FlatExpression
	keyOf map[string]int
}

func newFlattener() *flattener {
	return &flattener{keyOf: make(map[string]int)}
}

// intern inserts n if no equal node (by key) exists yet, and returns
// the index of the (possibly pre-existing) node.
func (f *flattener) intern(key string, n FlatExpression) int {
	if id, ok := f.keyOf[key]; ok {
		return id
	}
	id := len(f.nodes)
	f.nodes = append(f.nodes, n)
	f.keyOf[key] = id
	return id
}

// flatten recursively lowers expr into f's node array, type-checking
// along the way, and returns the index of its root node. columnTypes
// maps a resolvable column name to its declared type; pass nil for a
// table-less select.
func (f *flattener) flatten(expr *query.Expression, columnTypes map[string]table.Type) (int, error) {
	switch expr.Kind {
	case query.ExprRef:
		typ, ok := columnTypes[expr.RefName]
		if !ok {
			return 0, fmt.Errorf("column not found: %q", expr.RefName)
		}
		key := fmt.Sprintf("ref:%s", expr.RefName)
		return f.intern(key, FlatExpression{Kind: query.ExprRef, Type: typ, RefName: expr.RefName}), nil

	case query.ExprLiteral:
		key := fmt.Sprintf("lit:%d:%v:%v:%v", expr.Literal.Type, expr.Literal.I64, expr.Literal.Str, expr.Literal.Bool)
		return f.intern(key, FlatExpression{Kind: query.ExprLiteral, Type: expr.Literal.Type, Literal: expr.Literal}), nil

	case query.ExprFunction:
		sig, ok := query.Signatures[expr.FuncName]
		if !ok {
			return 0, fmt.Errorf("unknown function: %v", expr.FuncName)
		}
		if len(expr.FuncArgs) != len(sig.ArgTypes) {
			return 0, fmt.Errorf("%s: expected %d arguments, got %d", expr.FuncName, len(sig.ArgTypes), len(expr.FuncArgs))
		}
		argIDs := make([]int, len(expr.FuncArgs))
		for i, arg := range expr.FuncArgs {
			id, err := f.flatten(arg, columnTypes)
			if err != nil {
				return 0, err
			}
			if f.nodes[id].Type != sig.ArgTypes[i] {
				return 0, fmt.Errorf("%s: argument %d has wrong type", expr.FuncName, i)
			}
			argIDs[i] = id
		}
		key := fmt.Sprintf("fn:%v:%v", expr.FuncName, argIDs)
		return f.intern(key, FlatExpression{Kind: query.ExprFunction, Type: sig.Return, FuncName: expr.FuncName, FuncArgs: argIDs}), nil

	case query.ExprBinary:
		leftID, err := f.flatten(expr.BinLeft, columnTypes)
		if err != nil {
			return 0, err
		}
		rightID, err := f.flatten(expr.BinRight, columnTypes)
		if err != nil {
			return 0, err
		}
		resultType, err := checkBinary(expr.BinOp, f.nodes[leftID].Type, f.nodes[rightID].Type)
		if err != nil {
			return 0, err
		}

		// Canonicalise commutative operators so a+b and b+a share a
		// node (spec §3, §4.4 point 4): swap so left >= right by id.
		if expr.BinOp.Commutative() && leftID < rightID {
			leftID, rightID = rightID, leftID
		}

		key := fmt.Sprintf("bin:%v:%d:%d", expr.BinOp, leftID, rightID)
		return f.intern(key, FlatExpression{
			Kind: query.ExprBinary, Type: resultType,
			BinOp: expr.BinOp, BinLeft: leftID, BinRight: rightID,
		}), nil

	case query.ExprUnary:
		argID, err := f.flatten(expr.UnaryArg, columnTypes)
		if err != nil {
			return 0, err
		}
		resultType, err := checkUnary(expr.UnaryOp, f.nodes[argID].Type)
		if err != nil {
			return 0, err
		}
		key := fmt.Sprintf("un:%v:%d", expr.UnaryOp, argID)
		return f.intern(key, FlatExpression{Kind: query.ExprUnary, Type: resultType, UnaryOp: expr.UnaryOp, UnaryArg: argID}), nil

	default:
		return 0, fmt.Errorf("unknown expression kind: %v", expr.Kind)
	}
}

// checkBinary type-checks a binary expression per spec §4.4 point 3:
// arithmetic operators require (i64, i64) -> i64; boolean connectives
// require (bool, bool) -> bool; comparisons require both sides to
// share any one type and return bool.
func checkBinary(op query.BinOperator, left, right table.Type) (table.Type, error) {
	switch op {
	case query.OpAdd, query.OpSub, query.OpMul, query.OpDiv:
		if left != table.INT64 || right != table.INT64 {
			return 0, fmt.Errorf("Wrong types of arguments in binary operation: %s requires (INT64, INT64)", op)
		}
		return table.INT64, nil
	case query.OpAnd, query.OpOr:
		if left != table.BOOL || right != table.BOOL {
			return 0, fmt.Errorf("Wrong types of arguments in binary operation: %s requires (BOOL, BOOL)", op)
		}
		return table.BOOL, nil
	case query.OpEq, query.OpNeq, query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		if left != right {
			return 0, fmt.Errorf("Wrong types of arguments in binary operation: %s requires matching operand types, got %s and %s", op, left, right)
		}
		return table.BOOL, nil
	default:
		return 0, fmt.Errorf("unknown binary operator: %v", op)
	}
}

// checkUnary type-checks a unary expression per spec §4.4 point 3.
func checkUnary(op query.UnaryOperator, operand table.Type) (table.Type, error) {
	switch op {
	case query.OpNot:
		if operand != table.BOOL {
			return 0, fmt.Errorf("NOT requires a BOOL operand, got %s", operand)
		}
		return table.BOOL, nil
	case query.OpNeg:
		if operand != table.INT64 {
			return 0, fmt.Errorf("unary - requires an INT64 operand, got %s", operand)
		}
		return table.INT64, nil
	default:
		return 0, fmt.Errorf("unknown unary operator: %v", op)
	}
}
