// Package httputil provides HTTP client abstractions for testability.
package httputil

import (
	"net/http"
	"sync"
)

// HTTPClient abstracts the subset of http.Client the imagery clients need.
// Use http.DefaultClient (via NewStandardClient) in production and
// MockHTTPClient in tests.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a StandardClient wrapping the given http.Client.
// A nil client falls back to http.DefaultClient.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockHTTPClient is a canned-response HTTP client for tests. Responses are
// served in order; when they run out, DoFunc (if set) or DefaultError is used.
type MockHTTPClient struct {
	mu          sync.Mutex
	DoFunc      func(req *http.Request) (*http.Response, error)
	Responses   []*http.Response
	Requests    []*http.Request
	responseIdx int

	// DefaultError is returned when no canned response remains and DoFunc is nil.
	DefaultError error
}

// Do records the request and serves the next canned response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.responseIdx < len(m.Responses) {
		resp := m.Responses[m.responseIdx]
		m.responseIdx++
		return resp, nil
	}
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	return nil, m.DefaultError
}

// RequestCount returns the number of requests seen so far.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
