// Package httputil provides HTTP client abstractions for testability.
package httputil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient abstracts HTTP operations for testability.
// Use StandardClient for production; MockHTTPClient for testing.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a client whose every request is bounded by
// timeout. A non-positive timeout leaves requests unbounded.
func NewStandardClient(timeout time.Duration) *StandardClient {
	c := &http.Client{}
	if timeout > 0 {
		c.Timeout = timeout
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// ErrNoResponse is returned by MockHTTPClient once its script is exhausted.
var ErrNoResponse = errors.New("mock: no scripted reply")

type reply struct {
	status int
	body   string
	err    error
	hang   bool
}

// MockHTTPClient replays a script of replies, one per request, and records
// every request it receives.
type MockHTTPClient struct {
	mu       sync.Mutex
	script   []reply
	requests []*http.Request
}

// NewMockHTTPClient creates a mock with an empty script.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse appends a reply with the given status and body.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	return m.add(reply{status: statusCode, body: body})
}

// AddErrorResponse appends a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	return m.add(reply{err: err})
}

// AddHangingResponse appends a reply that never arrives: Do blocks until the
// request's context is done and returns its error.
func (m *MockHTTPClient) AddHangingResponse() *MockHTTPClient {
	return m.add(reply{hang: true})
}

func (m *MockHTTPClient) add(r reply) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, r)
	return m
}

// Do records req and plays the next scripted reply.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var next reply
	ok := len(m.script) > 0
	if ok {
		next, m.script = m.script[0], m.script[1:]
	}
	m.mu.Unlock()

	ctx := req.Context()
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case !ok:
		return nil, ErrNoResponse
	case next.hang:
		<-ctx.Done()
		return nil, ctx.Err()
	case next.err != nil:
		return nil, next.err
	}

	return &http.Response{
		StatusCode: next.status,
		Status:     http.StatusText(next.status),
		Body:       io.NopCloser(bytes.NewBufferString(next.body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns the requests received so far.
func (m *MockHTTPClient) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// GetRequest returns the nth recorded request, or nil.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	reqs := m.Requests()
	if n < 0 || n >= len(reqs) {
		return nil
	}
	return reqs[n]
}
