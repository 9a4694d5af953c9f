// Package orderql parses the $orderby parameter:
//
//	field [asc|desc] (, field [asc|desc])*
package orderql

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidOrder is wrapped by every parse error.
var ErrInvalidOrder = errors.New("orderql: invalid order")

// Direction is 1 for ascending and -1 for descending.
type Direction int

const (
	Asc  Direction = 1
	Desc Direction = -1
)

// SortKey is one term of an order clause.
type SortKey struct {
	Field string
	Dir   Direction
}

// Keys is an ordered list of sort keys.
type Keys []SortKey

// Map returns field -> direction, the form Mongo-style executors take.
func (k Keys) Map() map[string]int {
	out := make(map[string]int, len(k))
	for _, key := range k {
		out[key.Field] = int(key.Dir)
	}
	return out
}

var fieldRe = regexp.MustCompile(`^[^\s,()$]+$`)

// Parse percent-decodes input once and parses it. Empty input yields no keys.
func Parse(input string) (Keys, error) {
	text, err := url.PathUnescape(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var keys Keys
	for i, term := range strings.Split(text, ",") {
		parts := strings.Fields(term)
		if len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("%w: malformed term %d %q", ErrInvalidOrder, i+1, strings.TrimSpace(term))
		}
		if !fieldRe.MatchString(parts[0]) || strings.HasPrefix(parts[0], ".") || strings.HasSuffix(parts[0], ".") {
			return nil, fmt.Errorf("%w: invalid field %q", ErrInvalidOrder, parts[0])
		}

		key := SortKey{Field: parts[0], Dir: Asc}
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				key.Dir = Desc
			default:
				return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidOrder, parts[1])
			}
		}
		keys = append(keys, key)
	}
	return keys, nil
}
