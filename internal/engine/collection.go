package engine

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/xeipuuv/gojsonschema"
)

// Collection keeps the documents of one collection in insertion order with
// an id index on top.
type Collection struct {
	name string

	mu     sync.RWMutex
	docs   []Document
	index  map[string]int // _id -> position in docs
	schema *gojsonschema.Schema

	// dirty is set by every mutation and cleared once a snapshot is written.
	dirty atomic.Bool
}

func newCollection(name string) *Collection {
	return &Collection{
		name:  name,
		docs:  make([]Document, 0, 64),
		index: make(map[string]int),
	}
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// HasSchema reports whether inserts are checked against a JSON Schema.
func (c *Collection) HasSchema() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema != nil
}

// SetSchema compiles and installs a JSON Schema. An empty string removes it.
func (c *Collection) SetSchema(schemaStr string) error {
	if strings.TrimSpace(schemaStr) == "" {
		c.mu.Lock()
		c.schema = nil
		c.mu.Unlock()
		return nil
	}

	loader := gojsonschema.NewStringLoader(schemaStr)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid json schema: %w", err)
	}

	c.mu.Lock()
	c.schema = schema
	c.mu.Unlock()
	return nil
}

// validate must be called with c.mu held.
func (c *Collection) validate(doc Document) error {
	if c.schema == nil {
		return nil
	}

	result, err := c.schema.Validate(gojsonschema.NewGoLoader(map[string]any(doc)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(errs, "; "))
	}
	return nil
}

// put inserts or overwrites a document. Callers hold c.mu.
func (c *Collection) put(doc Document) {
	id, _ := doc.ID()
	if pos, ok := c.index[id]; ok {
		c.docs[pos] = doc
	} else {
		c.index[id] = len(c.docs)
		c.docs = append(c.docs, doc)
	}
	c.dirty.Store(true)
}

// delete removes a document by id and keeps insertion order. Callers hold c.mu.
func (c *Collection) delete(id string) bool {
	return c.deleteAll([]string{id}) == 1
}

// deleteAll removes the documents with the given ids in a single compaction
// pass and returns how many were present. Callers hold c.mu.
func (c *Collection) deleteAll(ids []string) int {
	gone := make(map[string]struct{}, len(ids))
	first := len(c.docs)
	for _, id := range ids {
		if pos, ok := c.index[id]; ok {
			gone[id] = struct{}{}
			first = min(first, pos)
		}
	}
	if len(gone) == 0 {
		return 0
	}

	kept := c.docs[:first]
	for _, doc := range c.docs[first:] {
		id, _ := doc.ID()
		if _, drop := gone[id]; drop {
			delete(c.index, id)
			continue
		}
		c.index[id] = len(kept)
		kept = append(kept, doc)
	}
	clear(c.docs[len(kept):])
	c.docs = kept
	c.dirty.Store(true)
	return len(gone)
}

// get returns the stored document. Callers hold c.mu.
func (c *Collection) get(id string) (Document, bool) {
	pos, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.docs[pos], true
}

// find runs match under the read lock.
func (c *Collection) find(node filterql.Node) []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match(node, 0)
}

// match returns the stored documents matching node in insertion order,
// stopping after max matches when max > 0. Callers hold c.mu.
func (c *Collection) match(node filterql.Node, max int) []Document {
	var out []Document
	for _, doc := range c.docs {
		if filterql.Match(node, doc) {
			out = append(out, doc)
			if max > 0 && len(out) == max {
				break
			}
		}
	}
	return out
}

// load replaces the content with docs read from a snapshot.
func (c *Collection) load(docs []Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = make([]Document, 0, len(docs))
	c.index = make(map[string]int, len(docs))
	for _, d := range docs {
		if _, ok := d.ID(); !ok {
			continue
		}
		c.put(d)
	}
	c.dirty.Store(false)
}

// snapshot returns the current documents for persisting. The slice is a
// copy; the documents are shared and must not be mutated.
func (c *Collection) snapshot() []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Document, len(c.docs))
	copy(out, c.docs)
	return out
}
