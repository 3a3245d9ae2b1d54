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

// Package query holds the submitted-query data model: the expression
// tree clients build, literal values, query definitions, and query
// lifecycle state. The planner (package planner) consumes these types
// and produces a flattened, type-checked plan; nothing in this
// package performs type checking itself.
package query

import "github.com/isdb-project/isdb/table"

// Literal is a constant value appearing in an expression.
type Literal struct {
	Type table.Type
	I64  int64
	Str  string
	Bool bool
}

// NewIntLiteral builds an i64 literal.
func NewIntLiteral(v int64) Literal { return Literal{Type: table.INT64, I64: v} }

// NewStringLiteral builds a string literal.
func NewStringLiteral(v string) Literal { return Literal{Type: table.STRING, Str: v} }

// NewBoolLiteral builds a bool literal.
func NewBoolLiteral(v bool) Literal { return Literal{Type: table.BOOL, Bool: v} }

// BinOperator is a binary expression operator.
type BinOperator int

const (
	OpAdd BinOperator = iota
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// Commutative reports whether swapping operands yields an equivalent
// expression, per spec §3 ("Expression tree"): +, *, AND, OR, =, ≠.
func (op BinOperator) Commutative() bool {
	switch op {
	case OpAdd, OpMul, OpAnd, OpOr, OpEq, OpNeq:
		return true
	default:
		return false
	}
}

func (op BinOperator) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpEq:
		return "="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	default:
		return "?"
	}
}

// UnaryOperator is a unary expression operator.
type UnaryOperator int

const (
	OpNot UnaryOperator = iota
	OpNeg
)

func (op UnaryOperator) String() string {
	switch op {
	case OpNot:
		return "NOT"
	case OpNeg:
		return "-"
	default:
		return "?"
	}
}

// FunctionName identifies a built-in scalar function.
type FunctionName int

const (
	FuncStrlen FunctionName = iota
	FuncConcat
	FuncUpper
	FuncLower
)

func (f FunctionName) String() string {
	switch f {
	case FuncStrlen:
		return "STRLEN"
	case FuncConcat:
		return "CONCAT"
	case FuncUpper:
		return "UPPER"
	case FuncLower:
		return "LOWER"
	default:
		return "?"
	}
}

// Signature describes a function's argument types and return type.
// Planner-facing only: the expression tree records just the name and
// argument expressions.
type Signature struct {
	ArgTypes []table.Type
	Return   table.Type
}

// Signatures maps every built-in function to its declared signature.
var Signatures = map[FunctionName]Signature{
	FuncStrlen: {ArgTypes: []table.Type{table.STRING}, Return: table.INT64},
	FuncConcat: {ArgTypes: []table.Type{table.STRING, table.STRING}, Return: table.STRING},
	FuncUpper:  {ArgTypes: []table.Type{table.STRING}, Return: table.STRING},
	FuncLower:  {ArgTypes: []table.Type{table.STRING}, Return: table.STRING},
}

// Expression is a tagged variant over the five node kinds described
// in spec §3: Ref, Literal, Function, Binary, Unary. Exactly one
// group of fields is meaningful, selected by Kind.
type ExpressionKind int

const (
	ExprRef ExpressionKind = iota
	ExprLiteral
	ExprFunction
	ExprBinary
	ExprUnary
)

// Expression is the client-submitted, unflattened expression tree.
// The planner (package planner) flattens it into FlatExpression nodes
// with hash-consing; this type is never evaluated directly.
type Expression struct {
	Kind ExpressionKind

	// ExprRef
	RefName string

	// ExprLiteral
	Literal Literal

	// ExprFunction
	FuncName FunctionName
	FuncArgs []*Expression

	// ExprBinary
	BinOp    BinOperator
	BinLeft  *Expression
	BinRight *Expression

	// ExprUnary
	UnaryOp  UnaryOperator
	UnaryArg *Expression
}

// Ref builds a column-reference expression.
func Ref(name string) *Expression { return &Expression{Kind: ExprRef, RefName: name} }

// Lit builds a literal expression.
func Lit(v Literal) *Expression { return &Expression{Kind: ExprLiteral, Literal: v} }

// Func builds a function-call expression.
func Func(name FunctionName, args ...*Expression) *Expression {
	return &Expression{Kind: ExprFunction, FuncName: name, FuncArgs: args}
}

// Bin builds a binary-operator expression.
func Bin(left *Expression, op BinOperator, right *Expression) *Expression {
	return &Expression{Kind: ExprBinary, BinOp: op, BinLeft: left, BinRight: right}
}

// Una builds a unary-operator expression.
func Una(op UnaryOperator, arg *Expression) *Expression {
	return &Expression{Kind: ExprUnary, UnaryOp: op, UnaryArg: arg}
}
