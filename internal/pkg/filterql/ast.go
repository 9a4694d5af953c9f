package filterql

import (
	"time"
)

// Node is the interface implemented by all predicate tree nodes.
type Node interface {
	node() // marker method
}

// CompareOp is a field-level comparison operator.
type CompareOp string

const (
	OpEq    CompareOp = "eq"
	OpNe    CompareOp = "ne"
	OpLt    CompareOp = "lt"
	OpLte   CompareOp = "lte"
	OpGt    CompareOp = "gt"
	OpGte   CompareOp = "gte"
	OpIn    CompareOp = "in"
	OpNin   CompareOp = "nin"
	OpRegex CompareOp = "regex"
)

// LogicalOp combines other predicates.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
	OpNot LogicalOp = "not"
)

// Comparison tests a single field against a value.
type Comparison struct {
	Field string
	Op    CompareOp
	Value Value
}

func (Comparison) node() {}

// Existence tests that a field is present.
type Existence struct {
	Field string
}

func (Existence) node() {}

// Logical joins two operands (and, or) or negates one (not).
type Logical struct {
	Op       LogicalOp
	Operands []Node
}

func (Logical) node() {}

// MatchAll is the predicate of an empty filter.
type MatchAll struct{}

func (MatchAll) node() {}

// Constructors, one per grammar production.

func NewComparison(field string, op CompareOp, v Value) Comparison {
	return Comparison{Field: field, Op: op, Value: v}
}

func NewExistence(field string) Existence {
	return Existence{Field: field}
}

func NewAnd(left, right Node) Logical {
	return Logical{Op: OpAnd, Operands: []Node{left, right}}
}

func NewOr(left, right Node) Logical {
	return Logical{Op: OpOr, Operands: []Node{left, right}}
}

func NewNot(operand Node) Logical {
	return Logical{Op: OpNot, Operands: []Node{operand}}
}

// Value is the typed right-hand side of a comparison.
type Value interface {
	// Native returns the plain Go value handed to document matching and
	// JSON rendering.
	Native() any
}

type (
	String     string
	Int        int64
	Float      float64
	Bool       bool
	Date       time.Time
	StringList []string
	NumberList []float64
)

func (v String) Native() any { return string(v) }
func (v Int) Native() any    { return int64(v) }
func (v Float) Native() any  { return float64(v) }
func (v Bool) Native() any   { return bool(v) }
func (v Date) Native() any   { return time.Time(v) }

func (v StringList) Native() any {
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

func (v NumberList) Native() any {
	out := make([]any, len(v))
	for i, n := range v {
		out[i] = n
	}
	return out
}
