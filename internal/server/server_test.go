package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coffersTech/nanodoc/internal/controller"
	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *engine.Store {
	t.Helper()
	w, err := storage.NewSnapshotWriter()
	require.NoError(t, err)
	r, err := storage.NewSnapshotReader()
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Close()
		r.Close()
	})

	s, err := engine.Open(t.TempDir(), engine.Options{
		ReadSnapshot:  r.ReadSnapshot,
		WriteSnapshot: w.WriteSnapshot,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.AddCollection("users", ""))
	require.NoError(t, s.AddCollection("strict", `{"type":"object","required":["name"]}`))
	return s
}

func newServer(t *testing.T, opts Options) (*Server, *engine.Store) {
	t.Helper()
	store := newStore(t)
	if opts.MaxFilterLength == 0 {
		opts.MaxFilterLength = 4096
	}
	return New(store, nil, opts), store
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDocs(t *testing.T, rec *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs), rec.Body.String())
	return docs
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return doc
}

func seedUsers(t *testing.T, h http.Handler) {
	t.Helper()
	for _, body := range []string{
		`{"_id":"u1","name":"ann","age":31,"tags":["red"]}`,
		`{"_id":"u2","name":"bob","age":25,"tags":["blue"]}`,
		`{"_id":"u3","name":"cid","age":40,"addr":{"city":"Oslo"}}`,
	} {
		rec := do(t, h, http.MethodPost, "/rest/users", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestListCollections(t *testing.T) {
	srv, _ := newServer(t, Options{})

	rec := do(t, srv.Handler(), http.MethodGet, "/rest/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var out []collectionLink
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []collectionLink{
		{Name: "strict", Link: "http://example.com/rest/strict"},
		{Name: "users", Link: "http://example.com/rest/users"},
	}, out)
}

func TestInsertAndGet(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/rest/users", `{"name":"ann","big":12345678901234567890}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeDoc(t, rec)
	id, ok := created["_id"].(string)
	require.True(t, ok)
	assert.Len(t, id, 32)
	assert.Equal(t, "http://example.com/rest/users/"+id, rec.Header().Get("Location"))
	assert.Contains(t, rec.Body.String(), "12345678901234567890")

	rec = do(t, h, http.MethodGet, "/rest/users/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann", decodeDoc(t, rec)["name"])

	rec = do(t, h, http.MethodGet, "/rest/users/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/rest/users", `{"_id":"`+id+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInsert_BadBodies(t *testing.T) {
	srv, _ := newServer(t, Options{MaxBodyBytes: 64})
	h := srv.Handler()

	tests := []struct {
		name       string
		collection string
		body       string
		want       int
	}{
		{"empty", "users", "", http.StatusBadRequest},
		{"whitespace", "users", "  \n", http.StatusBadRequest},
		{"invalid json", "users", `{"name":`, http.StatusBadRequest},
		{"array", "users", `[{"a":1}]`, http.StatusBadRequest},
		{"scalar", "users", `42`, http.StatusBadRequest},
		{"numeric id", "users", `{"_id":7}`, http.StatusBadRequest},
		{"too large", "users", `{"name":"` + strings.Repeat("x", 100) + `"}`, http.StatusRequestEntityTooLarge},
		{"schema violation", "strict", `{"age":1}`, http.StatusBadRequest},
		{"unknown collection", "nope", `{"a":1}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/rest/"+tt.collection, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestFind(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	tests := []struct {
		name  string
		query string
		ids   []string
	}{
		{"all", "", []string{"u1", "u2", "u3"}},
		{"percent encoded filter", "$filter=age%20$gt%2030", []string{"u1", "u3"}},
		{"form encoded filter", "%24filter=age+%24gt+30", []string{"u1", "u3"}},
		{"string equality", "$filter=name%20$eq%20'bob'", []string{"u2"}},
		{"array membership", "$filter=tags%20$eq%20red", []string{"u1"}},
		{"nested path", "$filter=addr.city%20$eq%20Oslo", []string{"u3"}},
		{"order desc", "$orderby=age%20desc", []string{"u3", "u1", "u2"}},
		{"skip and limit", "$orderby=age&$skip=1&$limit=1", []string{"u1"}},
		{"bad paging ignored", "$skip=x&$limit=-2", []string{"u1", "u2", "u3"}},
		{"no match", "$filter=age%20$gt%20100", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/rest/users?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			docs := decodeDocs(t, rec)
			ids := make([]string, 0, len(docs))
			for _, d := range docs {
				ids = append(ids, d["_id"].(string))
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, len(tt.ids), atoi(t, rec.Header().Get("X-Total-Count")))
		})
	}
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	var n int
	require.NoError(t, json.Unmarshal([]byte(s), &n))
	return n
}

func TestFind_Select(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	rec := do(t, h, http.MethodGet, "/rest/users?$filter=_id%20$eq%20u3&$select=name,addr.city", "")
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decodeDocs(t, rec)
	require.Len(t, docs, 1)
	assert.Equal(t, map[string]any{
		"_id":  "u3",
		"name": "cid",
		"addr": map[string]any{"city": "Oslo"},
	}, docs[0])
}

func TestFind_Errors(t *testing.T) {
	srv, _ := newServer(t, Options{MaxFilterLength: 32})
	h := srv.Handler()

	tests := []struct {
		name   string
		target string
		want   int
		msg    string
	}{
		{"syntax error", "/rest/users?$filter=age%20$gt", http.StatusBadRequest, "position"},
		{"lex error", "/rest/users?$filter=age%20$zz%201", http.StatusBadRequest, "invalid filter"},
		{"too long", "/rest/users?$filter=" + strings.Repeat("a", 40), http.StatusBadRequest, "too long"},
		{"bad order", "/rest/users?$orderby=age%20sideways", http.StatusBadRequest, "invalid order"},
		{"bad select", "/rest/users?$select=a%20b", http.StatusBadRequest, "invalid select"},
		{"unknown collection", "/rest/nope", http.StatusNotFound, "unknown collection nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, rec.Code)
			body := decodeDoc(t, rec)
			assert.EqualValues(t, tt.want, body["status"])
			assert.Contains(t, body["message"], tt.msg)
		})
	}
}

func TestFind_NumberOverflow(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	rec := do(t, h, http.MethodGet, "/rest/users?$filter=age%20$gt%201"+strings.Repeat("0", 400), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeDoc(t, rec)["message"], "invalid NUMBER")

	rec = do(t, h, http.MethodPost, "/rest/users", `{"_id":"u9","age":1}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestReplace(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	rec := do(t, h, http.MethodPut, "/rest/users/u1", `{"name":"anne"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"_id": "u1", "name": "anne"}, decodeDoc(t, rec))

	rec = do(t, h, http.MethodPut, "/rest/users/u1", `{"_id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/rest/users/zz", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/rest/users/u1", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWhere(t *testing.T) {
	srv, store := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	// Only the first match in insertion order is replaced.
	rec := do(t, h, http.MethodPut, "/rest/users?$filter=age%20$gt%2030", `{"name":"older"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "u1", decodeDoc(t, rec)["_id"])

	doc, err := store.Get("users", "u3")
	require.NoError(t, err)
	assert.Equal(t, "cid", doc["name"])

	rec = do(t, h, http.MethodPut, "/rest/users?$filter=age%20$gt%20100", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/rest/users?$filter=age%20$gt", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete(t *testing.T) {
	srv, store := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	rec := do(t, h, http.MethodDelete, "/rest/users/u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/rest/users/u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/rest/users", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodDelete, "/rest/users?$filter=age%20$gt%20100", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/rest/users?$filter=age%20$lt%2050", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	n, err := store.Count("users", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPatch, "/rest/users", `{}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/rest/users/u1", `{}`).Code)
}

func TestStats(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	seedUsers(t, h)

	rec := do(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats engine.SystemStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Inserted)
	assert.Equal(t, 3, stats.Collections["users"])
	assert.True(t, stats.Schemas["strict"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()
	do(t, h, http.MethodGet, "/rest/users", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nanodoc_http_requests_total{method="GET",route="/rest/{collection}",status="200"}`)
}

func TestValidator(t *testing.T) {
	srv, _ := newServer(t, Options{})
	h := srv.Handler()

	srv.SetValidator(func(r *http.Request) error {
		if r.Method != http.MethodGet {
			return errors.New("read only")
		}
		if r.PathValue("collection") == "strict" {
			return NewError(http.StatusTeapot, "no tea")
		}
		return nil
	})

	rec := do(t, h, http.MethodPost, "/rest/users", `{"a":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "read only", decodeDoc(t, rec)["message"])
	assert.Equal(t, http.StatusTeapot, do(t, h, http.MethodGet, "/rest/strict", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/rest/users", "").Code)

	srv.SetValidator(nil)
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/rest/users", `{"a":1}`).Code)
}

func TestAuth(t *testing.T) {
	store := newStore(t)
	catalog := controller.NewCatalog(filepath.Join(t.TempDir(), "catalog.json"), make([]byte, 32))
	require.NoError(t, catalog.Load())
	srv := New(store, catalog, Options{})
	h := srv.Handler()

	// Open until the first token exists.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/rest/users", "").Code)

	readSecret, _, err := catalog.AddToken("reader", controller.TokenRead)
	require.NoError(t, err)
	writeSecret, _, err := catalog.AddToken("writer", controller.TokenWrite)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		header []string
		want   int
	}{
		{"missing", http.MethodGet, "/rest/users", nil, http.StatusUnauthorized},
		{"invalid", http.MethodGet, "/rest/users", []string{"Authorization", "Bearer nd_nope_x"}, http.StatusUnauthorized},
		{"read bearer", http.MethodGet, "/rest/users", []string{"Authorization", "Bearer " + readSecret}, http.StatusOK},
		{"read query param", http.MethodGet, "/rest/users?token=" + readSecret, nil, http.StatusOK},
		{"read cannot write", http.MethodPost, "/rest/users", []string{"Authorization", "Bearer " + readSecret}, http.StatusForbidden},
		{"write", http.MethodPost, "/rest/users", []string{"Authorization", "Bearer " + writeSecret}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, `{"a":1}`, tt.header...)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}

	// Validators see the token that authenticated the request.
	var seen controller.APIToken
	srv.SetValidator(func(r *http.Request) error {
		seen, _ = TokenFromContext(r.Context())
		return nil
	})
	do(t, h, http.MethodGet, "/rest/users", "", "Authorization", "Bearer "+writeSecret)
	assert.Equal(t, "writer", seen.Name)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newServer(t, Options{RatePerSecond: 0.001, Burst: 2})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/rest/users", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/rest/users", "").Code)
	rec := do(t, h, http.MethodGet, "/rest/users", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/rest/users", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	other := httptest.NewRecorder()
	h.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}
