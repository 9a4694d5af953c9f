package filterql

import (
	"strconv"
	"strings"
	"time"
)

// Format prints a predicate tree as filter text that compiles back to an
// equal tree. Strings that contain both quote characters, one-element or
// numeric-looking string lists, and non-finite floats have no textual form
// and are printed on a best-effort basis.
func Format(n Node) string {
	var sb strings.Builder
	formatExpr(&sb, n)
	return sb.String()
}

func formatExpr(sb *strings.Builder, n Node) {
	l, ok := n.(Logical)
	if !ok {
		formatComp(sb, n)
		return
	}
	if l.Op == OpNot {
		sb.WriteString("$not ")
		formatComp(sb, l.Operands[0])
		return
	}
	formatComp(sb, l.Operands[0])
	sb.WriteString(" $" + string(l.Op) + " ")
	formatComp(sb, l.Operands[1])
}

func formatComp(sb *strings.Builder, n Node) {
	switch n := n.(type) {
	case Comparison:
		sb.WriteString(n.Field)
		sb.WriteString(" $" + string(n.Op) + " ")
		sb.WriteString(formatValue(n.Value))
	case Existence:
		sb.WriteString("$exists " + n.Field)
	case Logical:
		sb.WriteByte('(')
		formatExpr(sb, n)
		sb.WriteByte(')')
	}
}

func formatValue(v Value) string {
	switch v := v.(type) {
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Float:
		s := strconv.FormatFloat(float64(v), 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case Bool:
		return strconv.FormatBool(bool(v))
	case Date:
		t := time.Time(v)
		if t.Location() == time.UTC && t.Equal(t.Truncate(24*time.Hour)) {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339Nano)
	case StringList:
		return strings.Join(v, ",")
	case NumberList:
		parts := make([]string, len(v))
		for i, f := range v {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case String:
		return formatString(string(v))
	default:
		return ""
	}
}

// formatString keeps a string bare only when it lexes back as one WORD.
func formatString(s string) string {
	if toks, err := Tokenize(s); err == nil && len(toks) == 2 && toks[0].Kind == WORD && toks[0].Lexeme == s {
		return s
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}
