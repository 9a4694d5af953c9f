package server

import (
	"net/http"
	"strconv"

	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/metrics"
	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/pkg/orderql"
	"github.com/coffersTech/nanodoc/internal/pkg/selectql"
)

type collectionLink struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// baseURL is the scheme and host the request was addressed to.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names := s.store.Collections()
	out := make([]collectionLink, len(names))
	for i, name := range names {
		out[i] = collectionLink{Name: name, Link: baseURL(r) + r.URL.Path + name}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(out)))
	writeJSON(w, http.StatusOK, out)
}

// filter compiles $filter. An absent parameter matches everything.
func (s *Server) filter(r *http.Request) (filterql.Node, error) {
	node, err := s.compiler.Compile(rawParam(r, "$filter"))
	if err != nil {
		metrics.FilterErrors.WithLabelValues("filter").Inc()
		return nil, err
	}
	return node, nil
}

func (s *Server) query(r *http.Request) (engine.Query, error) {
	var q engine.Query
	var err error

	if q.Filter, err = s.filter(r); err != nil {
		return q, err
	}
	if q.Sort, err = orderql.Parse(rawParam(r, "$orderby")); err != nil {
		metrics.FilterErrors.WithLabelValues("orderby").Inc()
		return q, err
	}
	if q.Projection, err = selectql.Parse(rawParam(r, "$select")); err != nil {
		metrics.FilterErrors.WithLabelValues("select").Inc()
		return q, err
	}

	// Non-numeric or negative paging values are ignored.
	params := r.URL.Query()
	if n, err := strconv.Atoi(params.Get("$skip")); err == nil && n > 0 {
		q.Skip = n
	}
	if n, err := strconv.Atoi(params.Get("$limit")); err == nil && n > 0 {
		q.Limit = n
	}
	return q, nil
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	q, err := s.query(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	docs, err := s.store.Find(r.PathValue("collection"), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []engine.Document{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(docs)))
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Get(r.PathValue("collection"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	if _, err := s.store.Collection(name); err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.store.Insert(name, doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := created.ID()
	w.Header().Set("Location", baseURL(r)+r.URL.Path+"/"+id)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	if _, err := s.store.Collection(name); err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.store.Replace(name, r.PathValue("id"), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleUpdateWhere replaces the first document matching $filter.
func (s *Server) handleUpdateWhere(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	if _, err := s.store.Collection(name); err != nil {
		s.writeError(w, r, err)
		return
	}

	filter, err := s.filter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.readDocument(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.store.Update(name, filter, doc, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(updated) != 1 {
		s.writeError(w, r, engine.ErrDocumentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, updated[0])
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(r.PathValue("collection"), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteWhere removes every document matching $filter. Clearing a
// whole collection through an empty filter is refused.
func (s *Server) handleDeleteWhere(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("collection")
	if _, err := s.store.Collection(name); err != nil {
		s.writeError(w, r, err)
		return
	}

	filter, err := s.filter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, all := filter.(filterql.MatchAll); all {
		methodNotAllowed(w, r)
		return
	}

	n, err := s.store.RemoveMatching(name, filter, true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if n == 0 {
		s.writeError(w, r, engine.ErrDocumentNotFound)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}
