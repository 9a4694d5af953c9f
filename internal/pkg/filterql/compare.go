package filterql

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CompareValues orders two document values. ok is false when the values are
// of different kinds and have no defined order.
func CompareValues(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if da, okA := toDecimal(a); okA {
		if db, okB := toDecimal(b); okB {
			return da.Cmp(db), true
		}
		return 0, false
	}

	if ta, okA := toTime(a, false); okA {
		if tb, okB := toTime(b, true); okB {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if tb, okB := toTime(b, false); okB {
		if ta, okA := toTime(a, true); okA {
			return ta.Compare(tb), true
		}
		return 0, false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

// Equal reports whether two document values are equal. Lists are equal when
// they hold equal elements in the same order.
func Equal(a, b any) bool {
	if la, ok := a.([]any); ok {
		lb, ok := b.([]any)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if _, ok := b.([]any); ok {
		return false
	}
	cmp, ok := CompareValues(a, b)
	return ok && cmp == 0
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case float32:
		if !finite(float64(n)) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(n), true
	case float64:
		if !finite(n) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toTime accepts time values, and RFC 3339 or date-only strings when
// parseStrings is set.
func toTime(v any, parseStrings bool) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if !parseStrings {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, true
		}
		if ts, err := time.ParseInLocation(time.DateOnly, t, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
