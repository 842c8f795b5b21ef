package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

type cannedReply struct {
	status int
	body   string
	err    error
}

type recordedCall struct {
	req  *http.Request
	body []byte
}

// MockHTTPClient stands in for a sensor node. Replies queued with
// AddResponse and AddErrorResponse are handed out in order, then every
// further call gets an empty 200. DoFunc, when set, answers instead.
type MockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)

	mu      sync.Mutex
	queue   []cannedReply
	history []recordedCall
}

func NewMockHTTPClient() *MockHTTPClient { return &MockHTTPClient{} }

func (m *MockHTTPClient) enqueue(r cannedReply) *MockHTTPClient {
	m.mu.Lock()
	m.queue = append(m.queue, r)
	m.mu.Unlock()
	return m
}

func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	return m.enqueue(cannedReply{status: status, body: body})
}

func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	return m.enqueue(cannedReply{err: err})
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	call := recordedCall{req: req}
	if req.Body != nil {
		call.body, _ = io.ReadAll(req.Body)
	}

	m.mu.Lock()
	m.history = append(m.history, call)
	next := cannedReply{status: http.StatusOK}
	if m.DoFunc == nil && len(m.queue) > 0 {
		next, m.queue = m.queue[0], m.queue[1:]
	}
	m.mu.Unlock()

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	if next.err != nil {
		return nil, next.err
	}
	return &http.Response{
		StatusCode: next.status,
		Status:     http.StatusText(next.status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(next.body)),
		Request:    req,
	}, nil
}

// GetRequest returns call n and the body it carried, or nils when there
// was no such call.
func (m *MockHTTPClient) GetRequest(n int) (*http.Request, []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.history) {
		return nil, nil
	}
	return m.history[n].req, m.history[n].body
}

func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
