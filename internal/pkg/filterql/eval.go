package filterql

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Match evaluates the predicate against a document and returns true if it matches.
func Match(node Node, doc map[string]any) bool {
	if node == nil {
		return true // No filter means match all
	}

	switch n := node.(type) {
	case MatchAll:
		return true
	case Comparison:
		return evalComparison(n, doc)
	case Existence:
		_, found := Lookup(doc, n.Field)
		return found
	case Logical:
		return evalLogical(n, doc)
	default:
		return false
	}
}

func evalLogical(n Logical, doc map[string]any) bool {
	switch n.Op {
	case OpAnd:
		for _, o := range n.Operands {
			if !Match(o, doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, o := range n.Operands {
			if Match(o, doc) {
				return true
			}
		}
		return false
	case OpNot:
		return len(n.Operands) == 1 && !Match(n.Operands[0], doc)
	default:
		return false
	}
}

func evalComparison(n Comparison, doc map[string]any) bool {
	values, _ := Lookup(doc, n.Field)
	expected := n.Value.Native()

	switch n.Op {
	case OpEq:
		return anyValue(values, func(v any) bool { return Equal(v, expected) })
	case OpNe:
		return !anyValue(values, func(v any) bool { return Equal(v, expected) })
	case OpLt, OpLte, OpGt, OpGte:
		return anyValue(values, func(v any) bool { return ordered(n.Op, v, expected) })
	case OpIn:
		return anyValue(values, func(v any) bool { return member(v, expected) })
	case OpNin:
		return !anyValue(values, func(v any) bool { return member(v, expected) })
	case OpRegex:
		re := compilePattern(fmt.Sprint(expected))
		if re == nil {
			return false
		}
		return anyValue(values, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		})
	default:
		return false
	}
}

// anyValue applies fn to every candidate value. A list candidate is tested
// as a whole and element by element.
func anyValue(values []any, fn func(any) bool) bool {
	for _, v := range values {
		if fn(v) {
			return true
		}
		if list, ok := v.([]any); ok {
			for _, e := range list {
				if fn(e) {
					return true
				}
			}
		}
	}
	return false
}

func ordered(op CompareOp, actual, expected any) bool {
	cmp, ok := CompareValues(actual, expected)
	if !ok {
		return false
	}
	switch op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func member(v, set any) bool {
	list, ok := set.([]any)
	if !ok {
		return Equal(v, set)
	}
	for _, e := range list {
		if Equal(v, e) {
			return true
		}
	}
	return false
}

// Lookup resolves a dotted path. Lists met on the way fan out, so
// "items.name" collects the name of every element of items.
func Lookup(doc map[string]any, path string) ([]any, bool) {
	current := []any{doc}
	for _, seg := range strings.Split(path, ".") {
		var next []any
		for _, c := range current {
			next = append(next, step(c, seg)...)
		}
		if len(next) == 0 {
			return nil, false
		}
		current = next
	}
	return current, true
}

func step(v any, seg string) []any {
	switch t := v.(type) {
	case map[string]any:
		if child, ok := t[seg]; ok {
			return []any{child}
		}
	case []any:
		var out []any
		for _, e := range t {
			out = append(out, step(e, seg)...)
		}
		return out
	}
	return nil
}

const patternCacheSize = 1024

// patternCache holds compiled $regex patterns. Patterns come from request
// input, so the cache is bounded.
var patternCache, _ = lru.New[string, *regexp.Regexp](patternCacheSize)

// compilePattern accepts Go regexp syntax and the /body/flags form with the
// i, m and s flags. It returns nil for an invalid pattern.
func compilePattern(p string) *regexp.Regexp {
	if re, ok := patternCache.Get(p); ok {
		return re
	}

	src := p
	if len(p) >= 2 && p[0] == '/' {
		if end := strings.LastIndexByte(p, '/'); end > 0 {
			body, flags := p[1:end], p[end+1:]
			src = body
			if flags != "" && strings.Trim(flags, "ims") == "" {
				src = "(?" + flags + ")" + body
			}
		}
	}

	re, err := regexp.Compile(src)
	if err != nil {
		return nil
	}
	patternCache.Add(p, re)
	return re
}
