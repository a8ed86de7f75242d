// Package testutil provides testing utilities for the fetcher packages.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOrigin is a configurable origin server for testing. Each path can be
// scripted with a sequence of responses; the last response repeats once the
// sequence is used up. Unscripted paths answer 200 with a small HTML page.
type MockOrigin struct {
	server *httptest.Server

	mu        sync.Mutex
	sequences map[string][]MockResponse
	hits      map[string]int
	methods   map[string][]string
	requests  []time.Time
}

// NewMockOrigin creates and starts a mock origin.
func NewMockOrigin() *MockOrigin {
	m := &MockOrigin{
		sequences: make(map[string][]MockResponse),
		hits:      make(map[string]int),
		methods:   make(map[string][]string),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the origin base URL.
func (m *MockOrigin) URL() string {
	return m.server.URL
}

// URLFor returns the absolute URL for path.
func (m *MockOrigin) URLFor(path string) string {
	return m.server.URL + path
}

// Close shuts down the server.
func (m *MockOrigin) Close() {
	m.server.Close()
}

// SetSequence scripts the responses served for path, in order.
func (m *MockOrigin) SetSequence(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[path] = responses
}

// SetStatus scripts path to always answer status.
func (m *MockOrigin) SetStatus(path string, status int) {
	m.SetSequence(path, MockResponse{StatusCode: status})
}

// Hits returns how many requests reached path.
func (m *MockOrigin) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// Methods returns the HTTP methods received for path, in order.
func (m *MockOrigin) Methods(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.methods[path]...)
}

// TotalRequests returns the number of requests across all paths.
func (m *MockOrigin) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RequestTimes returns the arrival time of every request, in arrival order.
func (m *MockOrigin) RequestTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.requests...)
}

func (m *MockOrigin) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	path := r.URL.Path
	n := m.hits[path]
	m.hits[path] = n + 1
	m.methods[path] = append(m.methods[path], r.Method)
	m.requests = append(m.requests, time.Now())

	seq, scripted := m.sequences[path]
	var resp MockResponse
	if scripted && len(seq) > 0 {
		if n >= len(seq) {
			n = len(seq) - 1
		}
		resp = seq[n]
	}
	m.mu.Unlock()

	if !scripted {
		resp = NewPageResponse("<html><head><title>" + path + "</title></head><body>ok</body></html>")
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" && r.Method != http.MethodHead {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 OK HTML response.
func NewPageResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       "not found",
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       "internal server error",
	}
}

// NewTooManyRequestsResponse creates a 429 Too Many Requests response.
func NewTooManyRequestsResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers: map[string]string{
			"Retry-After": "1",
		},
	}
}
