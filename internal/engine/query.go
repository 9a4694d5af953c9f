package engine

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/pkg/orderql"
	"github.com/coffersTech/nanodoc/internal/pkg/selectql"
)

// Query describes a find request. A nil Filter matches everything and a
// zero Limit means no limit.
type Query struct {
	Filter     filterql.Node
	Sort       orderql.Keys
	Skip       int
	Limit      int
	Projection selectql.Fields
}

// sortDocuments orders docs by keys. Ties keep insertion order.
func sortDocuments(docs []Document, keys orderql.Keys) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			c := compareForSort(sortValue(docs[i], k.Field), sortValue(docs[j], k.Field))
			if c != 0 {
				return c*int(k.Dir) < 0
			}
		}
		return false
	})
}

func sortValue(doc Document, field string) any {
	values, ok := filterql.Lookup(doc, field)
	if !ok || len(values) == 0 {
		return missing{}
	}
	return values[0]
}

// missing marks an absent field. It sorts before everything else.
type missing struct{}

// compareForSort gives a total order over document values: missing, null,
// numbers, strings, booleans, dates, lists, objects. Values of the same
// kind use the evaluator's ordering.
func compareForSort(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if c, ok := filterql.CompareValues(a, b); ok {
		return c
	}
	if la, ok := a.([]any); ok {
		lb := b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := compareForSort(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return len(la) - len(lb)
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case missing:
		return 0
	case nil:
		return 1
	case int, int32, int64, uint32, float32, float64, json.Number:
		return 2
	case string:
		return 3
	case bool:
		return 4
	case time.Time:
		return 5
	case []any:
		return 6
	default:
		return 7
	}
}

// paginate applies skip and limit.
func paginate(docs []Document, skip, limit int) []Document {
	if skip > 0 {
		if skip >= len(docs) {
			return []Document{}
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// project returns a private copy of doc reduced to fields. _id is always kept.
func project(doc Document, fields selectql.Fields) Document {
	if len(fields) == 0 {
		return doc.Clone()
	}

	out := Document{IDField: doc[IDField]}
	for _, f := range fields {
		if !f.Wildcard && strings.Contains(f.Name, ".") {
			if v, ok := nestedValue(doc, f.Name); ok {
				setNested(out, f.Name, cloneValue(v))
			}
			continue
		}
		for key, v := range doc {
			if f.Matches(key) {
				out[key] = cloneValue(v)
			}
		}
	}
	return out
}

func nestedValue(doc Document, path string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setNested(doc Document, path string, v any) {
	segs := strings.Split(path, ".")
	m := map[string]any(doc)
	for _, seg := range segs[:len(segs)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[seg] = next
		}
		m = next
	}
	m[segs[len(segs)-1]] = v
}
