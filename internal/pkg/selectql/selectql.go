// Package selectql parses the $select parameter:
//
//	field (, field)*
//
// A field ending in % selects every top-level field with that prefix.
package selectql

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidSelect is wrapped by every parse error.
var ErrInvalidSelect = errors.New("selectql: invalid select")

// Field is one selected field.
type Field struct {
	Name     string
	Wildcard bool
}

// Matches reports whether a top-level document key is selected by f.
func (f Field) Matches(key string) bool {
	if f.Wildcard {
		return strings.HasPrefix(key, f.Name)
	}
	return key == f.Name
}

// String returns the field as written.
func (f Field) String() string {
	if f.Wildcard {
		return f.Name + "%"
	}
	return f.Name
}

// Fields is an ordered selection.
type Fields []Field

// Map returns field -> 1, the inclusion projection of Mongo-style executors.
// Wildcards keep their trailing %.
func (fs Fields) Map() map[string]int {
	out := make(map[string]int, len(fs))
	for _, f := range fs {
		out[f.String()] = 1
	}
	return out
}

var fieldRe = regexp.MustCompile(`^[^\s,()$%]*%?$`)

// Parse percent-decodes input once and parses it. Empty input selects
// everything and yields no fields.
func Parse(input string) (Fields, error) {
	text, err := url.PathUnescape(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelect, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var fields Fields
	for i, term := range strings.Split(text, ",") {
		name := strings.TrimSpace(term)
		if name == "" || name == "%" || !fieldRe.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid field %d %q", ErrInvalidSelect, i+1, name)
		}
		f := Field{Name: name}
		if strings.HasSuffix(name, "%") {
			f = Field{Name: strings.TrimSuffix(name, "%"), Wildcard: true}
		}
		fields = append(fields, f)
	}
	return fields, nil
}
