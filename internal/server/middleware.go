package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/nanodoc/internal/controller"
	"github.com/coffersTech/nanodoc/internal/metrics"
	"golang.org/x/time/rate"
)

type ctxKey int

const tokenKey ctxKey = iota

// TokenFromContext returns the API token that authenticated the request.
func TokenFromContext(ctx context.Context) (controller.APIToken, bool) {
	tok, ok := ctx.Value(tokenKey).(controller.APIToken)
	return tok, ok
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", clientIP(r),
			"request_id", r.Header.Get("X-Request-ID"),
		)
	})
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		metrics.RequestTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses request paths to their route pattern so collection
// names and ids do not become label values.
func routeLabel(path string) string {
	rest, ok := strings.CutPrefix(path, "/rest/")
	if !ok {
		switch path {
		case "/api/stats", "/metrics":
			return path
		}
		return "other"
	}
	switch strings.Count(strings.Trim(rest, "/"), "/") {
	case 0:
		if strings.Trim(rest, "/") == "" {
			return "/rest/"
		}
		return "/rest/{collection}"
	case 1:
		return "/rest/{collection}/{id}"
	}
	return "other"
}

// limiterIdle is how long a client IP may stay silent before its bucket is
// dropped.
const limiterIdle = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter stores a token bucket per client IP.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// getLimiter returns the limiter for ip, creating one if needed. Idle
// entries are swept at most once per limiterIdle.
func (rl *rateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= limiterIdle {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= limiterIdle {
				delete(rl.visitors, key)
			}
		}
		rl.lastSweep = now
	}

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.getLimiter(clientIP(r)).Allow() {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, NewError(http.StatusTooManyRequests, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuthMiddleware validates the API token. It is a no-op until the catalog
// holds at least one token.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.catalog == nil || !s.catalog.HasTokens() {
			next.ServeHTTP(w, r)
			return
		}

		var secret string
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			secret = strings.TrimPrefix(auth, "Bearer ")
		}
		if secret == "" {
			secret = r.URL.Query().Get("token")
		}
		if secret == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanodoc"`)
			s.writeError(w, r, NewError(http.StatusUnauthorized, "Unauthorized: Missing token"))
			return
		}

		tok, ok := s.catalog.Authenticate(secret)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanodoc", error="invalid_token"`)
			s.writeError(w, r, NewError(http.StatusUnauthorized, "Unauthorized: Invalid token"))
			return
		}
		if !tok.Allows(r.Method) {
			s.writeError(w, r, NewError(http.StatusForbidden, "Forbidden: read-only token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, tok)))
	})
}

// validated runs the installed Validator before h.
func (s *Server) validated(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if v := s.validator.Load(); v != nil {
			if err := (*v)(r); err != nil {
				if statusOf(err) == http.StatusInternalServerError {
					err = &Error{Code: http.StatusForbidden, Message: err.Error()}
				}
				s.writeError(w, r, err)
				return
			}
		}
		h(w, r)
	}
}
