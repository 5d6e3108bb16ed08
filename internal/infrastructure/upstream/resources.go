package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ListResult is a page of a backend collection. The backend answers either
// {"results": [...], "count": n} or a bare array; both end up here.
type ListResult struct {
	Results []json.RawMessage
	Count   int64
}

func (l *ListResult) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &l.Results); err != nil {
			return err
		}
		l.Count = int64(len(l.Results))
		return nil
	}

	var page struct {
		Results []json.RawMessage `json:"results"`
		Count   *int64            `json:"count"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	l.Results = page.Results
	if page.Count != nil {
		l.Count = *page.Count
	} else {
		l.Count = int64(len(page.Results))
	}
	return nil
}

// DecodeResults unmarshals every row of l into T
func DecodeResults[T any](l *ListResult) ([]T, error) {
	out := make([]T, 0, len(l.Results))
	for i, raw := range l.Results {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding result %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ListParams filters a collection request
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	Filters  map[string]string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	for k, v := range p.Filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

func collectionPath(resource string) string {
	return strings.Trim(resource, "/") + "/"
}

func itemPath(resource, id string) string {
	return strings.Trim(resource, "/") + "/" + url.PathEscape(id) + "/"
}

// List fetches one page of resource
func (c *Client) List(ctx context.Context, resource string, params ListParams) (*ListResult, error) {
	var out ListResult
	err := c.Do(ctx, Request{Method: http.MethodGet, Path: collectionPath(resource), Query: params.values()}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs the backend's full-text search over resource
func (c *Client) Search(ctx context.Context, resource, term string, page, pageSize int) (*ListResult, error) {
	return c.List(ctx, resource, ListParams{Page: page, PageSize: pageSize, Search: term})
}

// Get fetches a single record into out
func (c *Client) Get(ctx context.Context, resource, id string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: itemPath(resource, id)}, out)
}

// Create posts payload to resource and decodes the created record into out
func (c *Client) Create(ctx context.Context, resource string, payload, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: collectionPath(resource), Body: payload}, out)
}

// Update patches a single record
func (c *Client) Update(ctx context.Context, resource, id string, payload, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: itemPath(resource, id), Body: payload}, out)
}
