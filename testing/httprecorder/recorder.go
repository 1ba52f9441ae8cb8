package httprecorder

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// Request is the stored form of one recorded HTTP request.
type Request struct {
	Method string
	URL    url.URL
	Header http.Header
	Body   []byte
}

func (r *Request) StringBody() string {
	return string(r.Body)
}

// Decode unmarshals the recorded JSON body into the supplied pointer.
func (r *Request) Decode(x interface{}) error {
	return json.Unmarshal(r.Body, x)
}

// RequestRecorder accumulates requests as they arrive. It is safe for
// concurrent use, handlers under load may record from many goroutines.
type RequestRecorder struct {
	mu       sync.RWMutex
	requests []Request
}

func New() *RequestRecorder {
	return &RequestRecorder{}
}

// Record stores a copy of req. The body is read in full and replaced with a
// fresh reader, so the wrapped handler can still consume it.
func (r *RequestRecorder) Record(req *http.Request) error {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	rec := Request{
		Method: req.Method,
		URL:    *req.URL,
		Header: make(http.Header, len(req.Header)),
		Body:   body,
	}
	for k, v := range req.Header {
		rec.Header[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, rec)
	return nil
}

// Reset discards everything recorded so far.
func (r *RequestRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

// AllRequests returns a copy of every request recorded, oldest first.
func (r *RequestRecorder) AllRequests() []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(make([]Request, 0, len(r.requests)), r.requests...)
}

// LastRequest returns the most recently recorded request, or nil if nothing
// has been recorded.
func (r *RequestRecorder) LastRequest() *Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n := len(r.requests); n > 0 {
		req := r.requests[n-1]
		return &req
	}
	return nil
}

// FindRequests returns the recorded requests matching both method and URL.
func (r *RequestRecorder) FindRequests(method string, u url.URL) []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []Request
	for _, req := range r.requests {
		if req.Method == method && req.URL == u {
			found = append(found, req)
		}
	}
	return found
}
