package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/valyala/fastjson"
)

// readDocument parses the request body as a JSON object. Numbers are kept
// as json.Number so large integers survive unchanged.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (engine.Document, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, NewError(http.StatusBadRequest, "No Request Body")
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: "Invalid JSON", Err: err}
	}
	if v.Type() != fastjson.TypeObject {
		return nil, NewError(http.StatusBadRequest, "Request body must be a JSON object")
	}
	return engine.Document(toNative(v).(map[string]any)), nil
}

// toNative copies a fastjson value out of the parser's memory.
func toNative(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		m := make(map[string]any, o.Len())
		o.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = toNative(val)
		})
		return m
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toNative(item)
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return json.Number(v.MarshalTo(nil))
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

// rawParam returns a query parameter without percent-decoding its value.
// The query languages decode their input exactly once themselves; '+' is
// the form encoding of a space and is translated here.
func rawParam(r *http.Request, name string) string {
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == name {
			return strings.ReplaceAll(value, "+", "%20")
		}
	}
	return ""
}
