package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IDField is the key every stored document carries.
const IDField = "_id"

var (
	ErrCollectionNotFound = errors.New("unknown collection")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDuplicateID        = errors.New("duplicate document id")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrSchemaViolation    = errors.New("document violates collection schema")
	ErrInvalidName        = errors.New("invalid collection name")
	ErrClosed             = errors.New("store is closed")
)

// Document is a schemaless JSON object.
type Document map[string]any

// ID returns the document id.
func (d Document) ID() (string, bool) {
	id, ok := d[IDField].(string)
	return id, ok && id != ""
}

// Clone returns a deep copy so stored documents never alias caller memory.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return cloneValue(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// NewID generates a 32 character hex document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// prepare checks the id field of an incoming document and fills it in when
// missing. The result is a private copy.
func prepare(doc Document) (Document, error) {
	if doc == nil {
		return nil, ErrInvalidDocument
	}
	out := doc.Clone()
	raw, present := out[IDField]
	if !present || raw == nil {
		out[IDField] = NewID()
		return out, nil
	}
	if id, ok := raw.(string); !ok || id == "" {
		return nil, fmt.Errorf("%w: _id must be a non-empty string", ErrInvalidDocument)
	}
	return out, nil
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidName reports whether name can be used as a collection name. Names
// double as snapshot file names.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}
