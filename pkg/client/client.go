// Package client provides an HTTP client for the keepsake API server,
// used by CLI commands that talk to a running instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/keepsake-sh/keepsake/api"
	"github.com/keepsake-sh/keepsake/pkg/memory"
)

// Client talks to a running keepsake API server.
type Client struct {
	target string
	http   *http.Client
}

// New creates a client for the given API target URL
// (e.g. "http://localhost:8090").
func New(target string) (*Client, error) {
	if _, err := url.Parse(target); err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}

	return &Client{
		target: target,
		http:   http.DefaultClient,
	}, nil
}

// FactList is the response shape of the facts and recall endpoints.
type FactList struct {
	Count int                  `json:"count"`
	Facts []*memory.FactRecord `json:"facts"`
}

// ScopeList is the response shape of the scopes endpoint.
type ScopeList struct {
	Count  int             `json:"count"`
	Scopes []*memory.Scope `json:"scopes"`
}

// ResolveScope resolves or creates a scope by identifier.
func (c *Client) ResolveScope(ctx context.Context, id string) (*memory.Scope, error) {
	var scope memory.Scope
	err := c.do(ctx, http.MethodPost, "/scopes", api.ResolveScopeRequest{ID: id}, &scope)
	if err != nil {
		return nil, err
	}
	return &scope, nil
}

// ListScopes returns all known scopes.
func (c *Client) ListScopes(ctx context.Context) (*ScopeList, error) {
	var out ScopeList
	if err := c.do(ctx, http.MethodGet, "/scopes", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest stores one fact in a scope. An empty policy selects the server
// default.
func (c *Client) Ingest(ctx context.Context, scopeID, content, policy string) (*memory.FactRecord, error) {
	var record memory.FactRecord
	path := "/scope/" + url.PathEscape(scopeID) + "/facts"
	err := c.do(ctx, http.MethodPost, path, api.IngestRequest{Content: content, Policy: policy}, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Recall returns the committed facts for a scope in stable order.
func (c *Client) Recall(ctx context.Context, scopeID string) (*FactList, error) {
	var out FactList
	path := "/scope/" + url.PathEscape(scopeID) + "/recall"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFacts returns a scope's facts, optionally filtered by state
// ("proposed", "committed", ...). An empty state returns everything.
func (c *Client) ListFacts(ctx context.Context, scopeID, state string) (*FactList, error) {
	var out FactList
	path := "/scope/" + url.PathEscape(scopeID) + "/facts"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve commits a proposed fact.
func (c *Client) Approve(ctx context.Context, factID string) (*memory.FactRecord, error) {
	var record memory.FactRecord
	path := "/fact/" + url.PathEscape(factID) + "/approve"
	if err := c.do(ctx, http.MethodPost, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Reject rejects a proposed fact.
func (c *Client) Reject(ctx context.Context, factID string) (*memory.FactRecord, error) {
	var record memory.FactRecord
	path := "/fact/" + url.PathEscape(factID) + "/reject"
	if err := c.do(ctx, http.MethodPost, path, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete physically removes a fact record.
func (c *Client) Delete(ctx context.Context, factID string) error {
	path := "/fact/" + url.PathEscape(factID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Refactor plans (and unless planOnly is set, applies) a refactor pass over
// a scope's committed facts.
func (c *Client) Refactor(ctx context.Context, scopeID, directive string, planOnly bool) (*api.RefactorResponse, error) {
	var out api.RefactorResponse
	path := "/scope/" + url.PathEscape(scopeID) + "/refactor"
	if planOnly {
		path += "?plan_only=true"
	}
	err := c.do(ctx, http.MethodPost, path, api.RefactorRequest{Directive: directive}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request against the API, encoding body as JSON when
// non-nil and decoding the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.target+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to keepsake API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
