package filterql

import (
	"regexp"
)

// Assoc is the associativity of a precedence level.
type Assoc int

const (
	AssocLeft Assoc = iota
	AssocRight
)

// Level is one row of the precedence table.
type Level struct {
	Assoc Assoc
	Kinds []Kind
}

// Precedence lists operator levels from highest to lowest binding strength.
var Precedence = []Level{
	{AssocLeft, []Kind{EXISTS}},
	{AssocLeft, []Kind{EQ, NE, LT, LTE, GT, GTE, IN, NIN, REGEX, CONTAINS, STARTS, ENDS}},
	{AssocLeft, []Kind{AND}},
	{AssocLeft, []Kind{OR}},
	{AssocLeft, []Kind{NOT}},
}

// opClass describes where an operator sits in the grammar.
type opClass int

const (
	classNone     opClass = iota
	classExists           // EXISTS field
	classCompare          // field OP value
	classBinary           // comp OP comp
	classNegation         // NOT comp
)

type operator struct {
	class   opClass
	prec    int
	compare CompareOp
	logical LogicalOp
	// pattern turns the legacy substring operators into a regular expression.
	pattern func(text string, raw bool) string
}

// operators is derived from Precedence once and never mutated.
var operators = buildOperators()

func buildOperators() map[Kind]operator {
	compare := map[Kind]CompareOp{
		EQ: OpEq, NE: OpNe, LT: OpLt, LTE: OpLte, GT: OpGt, GTE: OpGte,
		IN: OpIn, NIN: OpNin, REGEX: OpRegex,
		CONTAINS: OpRegex, STARTS: OpRegex, ENDS: OpRegex,
	}
	patterns := map[Kind]func(string, bool) string{
		CONTAINS: func(s string, raw bool) string { return escape(s, raw) },
		STARTS:   func(s string, raw bool) string { return "^" + escape(s, raw) },
		ENDS:     func(s string, raw bool) string { return escape(s, raw) + "$" },
	}

	ops := make(map[Kind]operator)
	for i, level := range Precedence {
		prec := len(Precedence) - i
		for _, k := range level.Kinds {
			op := operator{prec: prec}
			switch k {
			case EXISTS:
				op.class = classExists
			case AND:
				op.class, op.logical = classBinary, OpAnd
			case OR:
				op.class, op.logical = classBinary, OpOr
			case NOT:
				op.class, op.logical = classNegation, OpNot
			default:
				op.class, op.compare, op.pattern = classCompare, compare[k], patterns[k]
			}
			ops[k] = op
		}
	}
	return ops
}

func escape(s string, raw bool) string {
	if raw {
		return s
	}
	return regexp.QuoteMeta(s)
}

func lookup(k Kind) operator {
	return operators[k]
}

// kindsOf returns the operator kinds of a class in table order.
func kindsOf(class opClass) []Kind {
	var out []Kind
	for _, level := range Precedence {
		for _, k := range level.Kinds {
			if operators[k].class == class {
				out = append(out, k)
			}
		}
	}
	return out
}

// Binds reports whether operator a binds tighter than operator b.
func Binds(a, b Kind) bool {
	return operators[a].prec > operators[b].prec
}
