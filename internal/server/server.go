package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanodoc/internal/controller"
	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fastjson"
)

// Validator inspects every /rest request before it is handled. A non-nil
// error rejects the request with 403, or with the status of an *Error.
type Validator func(r *http.Request) error

// Options configure the REST server.
type Options struct {
	MaxFilterLength int
	MaxBodyBytes    int64
	RatePerSecond   float64 // 0 disables rate limiting
	Burst           int
	RawPatterns     bool
	Logger          *slog.Logger
}

// Server exposes a Store over REST.
type Server struct {
	store    *engine.Store
	catalog  *controller.Catalog // nil disables authentication
	opts     Options
	compiler *filterql.Compiler
	parser   fastjson.ParserPool
	limiter  *rateLimiter
	log      *slog.Logger

	validator atomic.Pointer[Validator]
	handler   http.Handler
	srv       *http.Server
}

// New builds a server and its route table.
func New(store *engine.Store, catalog *controller.Catalog, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	compiler := filterql.NewCompiler(filterql.Options{
		MaxLength:   opts.MaxFilterLength,
		RawPatterns: opts.RawPatterns,
	})
	s := &Server{
		store:    store,
		catalog:  catalog,
		opts:     opts,
		compiler: compiler,
		log:      opts.Logger.With("component", "http"),
	}
	if opts.RatePerSecond > 0 {
		s.limiter = newRateLimiter(opts.RatePerSecond, opts.Burst)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /rest/{$}", s.validated(s.handleListCollections))
	mux.HandleFunc("GET /rest/{collection}", s.validated(s.handleFind))
	mux.HandleFunc("GET /rest/{collection}/{id}", s.validated(s.handleGet))
	mux.HandleFunc("POST /rest/{collection}", s.validated(s.handleInsert))
	mux.HandleFunc("PUT /rest/{collection}", s.validated(s.handleUpdateWhere))
	mux.HandleFunc("PUT /rest/{collection}/{id}", s.validated(s.handleReplace))
	mux.HandleFunc("DELETE /rest/{collection}", s.validated(s.handleDeleteWhere))
	mux.HandleFunc("DELETE /rest/{collection}/{id}", s.validated(s.handleDelete))
	mux.HandleFunc("PATCH /rest/{collection}", methodNotAllowed)
	mux.HandleFunc("POST /rest/{collection}/{id}", methodNotAllowed)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("GET /metrics", promhttp.Handler())

	// access log -> metrics -> rate limit -> auth -> routes
	s.handler = s.accessLog(instrument(s.rateLimit(s.AuthMiddleware(mux))))
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetValidator installs a request validator for /rest routes. nil removes it.
func (s *Server) SetValidator(v Validator) {
	if v == nil {
		s.validator.Store(nil)
		return
	}
	s.validator.Store(&v)
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
