package filterql

import (
	"strconv"
	"strings"
	"time"
)

// Coerce converts a value-position token into a typed Value. The lexer has
// already checked the shape of every structured literal, so coercion cannot
// fail for tokens it produced.
func Coerce(tok Token) Value {
	switch tok.Kind {
	case ARRAY:
		return StringList(strings.Split(tok.Lexeme, ","))
	case NUM_ARRAY:
		parts := strings.Split(tok.Lexeme, ",")
		nums := make(NumberList, len(parts))
		for i, p := range parts {
			nums[i], _ = strconv.ParseFloat(p, 64)
		}
		return nums
	case DATE:
		t, _ := time.ParseInLocation(time.DateOnly, tok.Lexeme, time.UTC)
		return Date(t)
	case DATETIME:
		t, _ := time.Parse(time.RFC3339Nano, tok.Lexeme)
		return Date(t)
	case NUMBER:
		return coerceNumber(tok.Lexeme)
	case LITERAL:
		return String(tok.Lexeme[1 : len(tok.Lexeme)-1])
	case BOOLEAN:
		return Bool(strings.EqualFold(tok.Lexeme, "true"))
	default:
		return String(tok.Lexeme)
	}
}

func coerceNumber(s string) Value {
	if !strings.Contains(s, ".") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n)
		}
	}
	f, _ := strconv.ParseFloat(s, 64)
	return Float(f)
}
