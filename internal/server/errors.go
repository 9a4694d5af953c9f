package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/pkg/orderql"
	"github.com/coffersTech/nanodoc/internal/pkg/selectql"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"status"`
	Message string `json:"message"`
	Err     error  `json:"-"` // Internal error for logging
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an Error with the given status.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// statusOf maps store and compiler errors to HTTP status codes.
func statusOf(err error) int {
	var apiErr *Error
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, filterql.ErrInvalidFilter),
		errors.Is(err, orderql.ErrInvalidOrder),
		errors.Is(err, selectql.ErrInvalidSelect),
		errors.Is(err, engine.ErrInvalidDocument),
		errors.Is(err, engine.ErrSchemaViolation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrCollectionNotFound),
		errors.Is(err, engine.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the status of err. Internal errors are logged
// and their detail is not sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()

	var apiErr *Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, &Error{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, NewError(http.StatusMethodNotAllowed, "Method Not Allowed"))
}
