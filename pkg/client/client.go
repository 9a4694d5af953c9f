// Package client is a Go client for the NanoDoc REST API.
//
//	c := client.New("http://localhost:8080", client.Options{APIKey: key})
//	docs, err := c.Find(ctx, "users", client.FindOptions{
//		Filter:  "age $gt 30",
//		OrderBy: "age desc",
//		Limit:   10,
//	})
//
// Filter, OrderBy and Select take the plain query text. The client does the
// URL encoding.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound matches every *APIError with status 404.
var ErrNotFound = errors.New("nanodoc: not found")

// APIError is a non-2xx response.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nanodoc: %d %s", e.Status, e.Message)
}

// Is reports whether target is ErrNotFound and the status is 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Document is a JSON object. Numbers decode as json.Number.
type Document = map[string]any

// CollectionInfo is an entry of the collection listing.
type CollectionInfo struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

type Options struct {
	APIKey     string
	HTTPClient *http.Client // defaults to a client with a 10s timeout
}

// FindOptions narrow a Find. Zero values are omitted.
type FindOptions struct {
	Filter  string
	OrderBy string
	Select  string
	Skip    int
	Limit   int
}

func (o FindOptions) values() url.Values {
	v := url.Values{}
	if o.Filter != "" {
		v.Set("$filter", o.Filter)
	}
	if o.OrderBy != "" {
		v.Set("$orderby", o.OrderBy)
	}
	if o.Select != "" {
		v.Set("$select", o.Select)
	}
	if o.Skip > 0 {
		v.Set("$skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		v.Set("$limit", strconv.Itoa(o.Limit))
	}
	return v
}

type Client struct {
	baseURL string
	opts    Options
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		http:    hc,
	}
}

// Collections lists the collections of the server.
func (c *Client) Collections(ctx context.Context) ([]CollectionInfo, error) {
	var out []CollectionInfo
	_, err := c.do(ctx, http.MethodGet, "/rest/", nil, nil, &out)
	return out, err
}

// Find returns the documents of a collection matching opts.
func (c *Client) Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error) {
	var out []Document
	_, err := c.do(ctx, http.MethodGet, collectionPath(collection), opts.values(), nil, &out)
	return out, err
}

// Get returns one document by id.
func (c *Client) Get(ctx context.Context, collection, id string) (Document, error) {
	var out Document
	_, err := c.do(ctx, http.MethodGet, documentPath(collection, id), nil, nil, &out)
	return out, err
}

// Insert stores doc and returns it as stored, with its _id.
func (c *Client) Insert(ctx context.Context, collection string, doc any) (Document, error) {
	var out Document
	_, err := c.do(ctx, http.MethodPost, collectionPath(collection), nil, doc, &out)
	return out, err
}

// Replace swaps the document with the given id for doc.
func (c *Client) Replace(ctx context.Context, collection, id string, doc any) (Document, error) {
	var out Document
	_, err := c.do(ctx, http.MethodPut, documentPath(collection, id), nil, doc, &out)
	return out, err
}

// UpdateWhere replaces the first document matching filter.
func (c *Client) UpdateWhere(ctx context.Context, collection, filter string, doc any) (Document, error) {
	var out Document
	q := FindOptions{Filter: filter}.values()
	_, err := c.do(ctx, http.MethodPut, collectionPath(collection), q, doc, &out)
	return out, err
}

// Delete removes a document by id.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, http.MethodDelete, documentPath(collection, id), nil, nil, nil)
	return err
}

// DeleteWhere removes every document matching filter and returns how many
// were removed. The server refuses an empty filter.
func (c *Client) DeleteWhere(ctx context.Context, collection, filter string) (int, error) {
	q := FindOptions{Filter: filter}.values()
	resp, err := c.do(ctx, http.MethodDelete, collectionPath(collection), q, nil, nil)
	if err != nil {
		return 0, err
	}
	n, _ := strconv.Atoi(resp.Header.Get("X-Total-Count"))
	return n, nil
}

func collectionPath(collection string) string {
	return "/rest/" + url.PathEscape(collection)
}

func documentPath(collection, id string) string {
	return collectionPath(collection) + "/" + url.PathEscape(id)
}

// do sends one request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return resp, fmt.Errorf("nanodoc: decode response: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}
