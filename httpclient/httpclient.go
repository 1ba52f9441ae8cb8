// Package httpclient is the instrumented HTTP client used for service to
// service calls. Every call is traced and timed, 5XX responses and transport
// errors are retried with backoff inside the call budget, and a server that
// answers 429 puts the whole client into a backoff window.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/honeycombio/beeline-go/propagation"

	"github.com/spantrap/harness/httpclient/dnscache"
	"github.com/spantrap/harness/httpclient/metrics"
	"github.com/spantrap/harness/o11y"
)

const JSON = "application/json; charset=utf-8"

// ErrNoContent is the warning a call resulting in a 204 returns.
var ErrNoContent = o11y.NewWarning("no content")

// ErrServerBackoff is returned while the client is inside the backoff
// window a 429 response opened.
var ErrServerBackoff = errors.New("server requested explicit backoff")

// defaultAttemptTimeout bounds a single attempt when the Request does
// not say otherwise.
const defaultAttemptTimeout = 5 * time.Second

type Config struct {
	// Name identifies the client in spans and metrics.
	Name string
	// BaseURL is the scheme, host and optional path prefix every request
	// route is appended to.
	BaseURL string
	// AuthHeader names the header AuthToken is sent on. Leave it empty for
	// a standard bearer token authorization header.
	AuthHeader string
	// AuthToken authenticates the client when set.
	AuthToken string
	// AcceptType sets the Accept header on every request.
	AcceptType string
	// Timeout bounds each call including all its retries. Zero is not
	// defaulted, it means retry for as long as the context allows.
	Timeout time.Duration
	// MaxConnectionsPerHost sizes the connection pool, ten if unset.
	MaxConnectionsPerHost int
	// UseDNSCache resolves hosts through an in-process caching resolver,
	// which helps clients that hit the same few hosts very frequently.
	UseDNSCache bool
	// DisableHTTP2 keeps the client on HTTP/1.1 even when the server
	// offers h2.
	DisableHTTP2 bool
	// Tracer instruments the transport and individual requests with
	// connection pool and request phase metrics.
	Tracer *metrics.Metrics
}

// Client makes instrumented HTTP calls. Use New to create one and share
// it, the zero value is not usable.
type Client struct {
	name        string
	baseURL     string
	httpClient  *http.Client
	retryBudget time.Duration
	authToken   string
	authHeader  string
	acceptType  string

	mu      sync.RWMutex
	last429 time.Time

	tracer *metrics.Metrics

	now func() time.Time // swapped for a fake clock in tests
}

// dnsResolver is shared so every client using the cache shares one set of lookups.
var dnsResolver = dnscache.New(dnscache.Config{})

// New creates a client from cfg.
func New(cfg Config) *Client {
	var rt http.RoundTripper = newTransport(cfg)
	if cfg.Tracer != nil {
		rt = cfg.Tracer.Wrap(cfg.Name, rt)
	}

	return &Client{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		retryBudget: cfg.Timeout,
		authHeader:  cfg.AuthHeader,
		authToken:   cfg.AuthToken,
		acceptType:  cfg.AcceptType,
		tracer:      cfg.Tracer,
		httpClient: &http.Client{
			Transport: rt,
		},
		now: time.Now,
	}
}

func newTransport(cfg Config) *http.Transport {
	poolSize := cfg.MaxConnectionsPerHost
	if poolSize == 0 {
		poolSize = 10
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxConnsPerHost = poolSize
	t.MaxIdleConnsPerHost = poolSize
	if cfg.UseDNSCache {
		t.DialContext = dnscache.DialContext(dnsResolver, nil)
	}
	if cfg.DisableHTTP2 {
		t.TLSNextProto = map[string]func(authority string, c *tls.Conn) http.RoundTripper{}
	}
	return t
}

// CloseIdleConnections exists for tests that need to force fresh
// connections, it is not needed in normal use.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

type Decoder func(r io.Reader) error

// Request is one call the Client will make.
type Request struct {
	Method        string
	Route         string
	Body          interface{} // marshalled to JSON when set
	Decoder       Decoder     // applied to the response body when set
	Cookie        *http.Cookie
	Headers       map[string]string
	Timeout       time.Duration // bounds each individual attempt
	Query         url.Values
	NoPropagation bool

	url string
}

// NewRequest is the preferred way to build a Request. The route should be
// a low cardinality format string, with the varying parts supplied as
// routeParams, since the route appears in span and metric names. The
// returned Request can be altered before handing it to Call.
func NewRequest(method, route string, timeout time.Duration, routeParams ...interface{}) Request {
	return Request{
		Method:  method,
		Route:   route,
		Timeout: timeout,
		url:     fmt.Sprintf(route, routeParams...),
	}
}

// Call makes the request. Each attempt is traced under its own span, and
// 5XX responses are retried inside the client's call budget. A completed
// call with a non 2XX status returns an HTTPError carrying the code.
func (c *Client) Call(ctx context.Context, r Request) (err error) {
	spanName := fmt.Sprintf("httpclient: %s %s", c.name, r.Route)
	// a Request built by hand rather than NewRequest has no expanded url
	if r.url == "" {
		r.url = r.Route
	}
	u, err := url.Parse(c.baseURL + r.url)
	if err != nil {
		return err
	}
	u.RawQuery = r.Query.Encode() // "" when Query is nil

	err = c.callWithRetries(ctx, spanName, u, r)
	// strip the retry marker so error and warning semantics are back to normal
	return doneRetrying(err)
}

// buildRequest constructs the http request for one attempt. It is called
// fresh per attempt because the body reader is consumed by each send.
func (c *Client) buildRequest(r Request, u *url.URL) (*http.Request, error) {
	req, err := http.NewRequest(r.Method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.authToken != "" {
		if c.authHeader != "" {
			req.Header.Set(c.authHeader, c.authToken)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}
	}

	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	if r.Cookie != nil {
		req.AddCookie(r.Cookie)
	}

	if c.acceptType != "" {
		req.Header.Set("Accept", c.acceptType)
	}

	if r.Body != nil {
		req.Header.Set("Content-Type", JSON)
		b := &bytes.Buffer{}
		err = json.NewEncoder(b).Encode(r.Body)
		if err != nil {
			return nil, fmt.Errorf("could not json encode request: %w", err)
		}
		req.Body = io.NopCloser(b)
	}
	return req, nil
}

// callWithRetries sends the request until it succeeds, fails permanently
// or exhausts the retry budget. The decoder only ever sees a 2XX body,
// anything else is drained and discarded to keep the connection alive.
func (c *Client) callWithRetries(ctx context.Context, name string, u *url.URL, r Request) error {
	attempts := 0
	attempt := func() (err error) {
		_, span := o11y.StartSpan(ctx, name)
		defer o11y.End(span, &err)
		start := time.Now()

		attempts++

		if c.inBackoffWindow() {
			return backoff.Permanent(ErrServerBackoff)
		}

		req, err := c.buildRequest(r, u)
		if err != nil {
			return backoff.Permanent(err)
		}

		attemptTimeout := r.Timeout
		if attemptTimeout == 0 {
			attemptTimeout = defaultAttemptTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		if c.tracer != nil {
			ctx = c.tracer.WithTracer(ctx, r.Route)
		}

		req = req.WithContext(ctx)
		if !r.NoPropagation {
			req.Header.Add(propagation.TracePropagationHTTPHeader, span.SerializeHeaders())
		}

		span.AddRawField("http.client_name", c.name)
		span.AddRawField("http.route", r.Route)
		span.AddRawField("http.base_url", c.baseURL)
		spanRequestFields(span, req, attempts)

		res, err := c.httpClient.Do(req)
		if err != nil {
			// url errors repeat the method and url, which clutters metrics and logs
			e := &url.Error{}
			if errors.As(err, &e) {
				err = e.Err
			}
			return fmt.Errorf("call: %s %s failed with: %w after %d attempt(s)",
				req.Method, r.Route, err, attempts)
		}
		defer func() {
			// best efforts, an undrained body just loses us connection reuse
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}()

		if m := o11y.FromContext(ctx).MetricsProvider(); m != nil {
			tags := []string{
				"http.client_name:" + c.name,
				"http.route:" + r.Route,
				"http.method:" + r.Method,
				"http.status_code:" + strconv.Itoa(res.StatusCode),
				"http.retry:" + strconv.FormatBool(attempts > 1),
			}
			elapsedMS := float64(time.Since(start).Nanoseconds()) / 1000000.0
			_ = m.TimeInMilliseconds("httpclient", elapsedMS, tags, 1)
		}
		spanResponseFields(span, res)

		err = statusError(req, res, attempts, r.Route)
		if err != nil {
			if HasStatusCode(err, http.StatusTooManyRequests) {
				c.noteRateLimited()
			}
			return err
		}
		if r.Decoder == nil {
			return nil
		}
		err = r.Decoder(res.Body)
		if err != nil {
			// a body we cannot decode will not improve on a resend
			return backoff.Permanent(fmt.Errorf("call: %s %s decoding failed with: %w after %d attempt(s)",
				req.Method, r.Route, err, attempts))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = c.retryBudget
	return backoff.Retry(attempt, backoff.WithContext(bo, ctx))
}

func spanRequestFields(span o11y.Span, req *http.Request, attempt int) {
	for k, v := range map[string]interface{}{
		"meta.type":                   "http_client",
		"span.kind":                   "Client",
		"http.scheme":                 req.URL.Scheme,
		"http.host":                   req.URL.Host,
		"http.target":                 req.URL.Path,
		"http.method":                 req.Method,
		"http.attempt":                attempt,
		"http.retry":                  attempt > 1,
		"http.url":                    req.URL.String(),
		"http.user_agent":             req.UserAgent(),
		"http.request_content_length": req.ContentLength,
	} {
		span.AddRawField(k, v)
	}
}

func spanResponseFields(span o11y.Span, res *http.Response) {
	headerFields := []struct{ header, field string }{
		{"Content-Length", "http.response_content_length"},
		{"Content-Type", "http.response_content_type"},
		{"Content-Encoding", "http.response_content_encoding"},
	}
	for _, hf := range headerFields {
		if v := res.Header.Get(hf.header); v != "" {
			span.AddRawField(hf.field, v)
		}
	}
	span.AddRawField("http.status_code", res.StatusCode)
}

// inBackoffWindow reports whether a 429 was seen less than ten seconds ago.
func (c *Client) inBackoffWindow() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.now().Before(c.last429.Add(10 * time.Second))
}

func (c *Client) noteRateLimited() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last429 = c.now()
}

// NewJSONDecoder returns a Decoder that json decodes the response body
// into resp, which must be a pointer.
func NewJSONDecoder(resp interface{}) Decoder {
	return func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(resp); err != nil {
			return fmt.Errorf("failed to unmarshal: %w", err)
		}
		return nil
	}
}

// NewBytesDecoder returns a Decoder that captures the raw response body.
func NewBytesDecoder(resp *[]byte) Decoder {
	return func(r io.Reader) error {
		bs, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		*resp = bs
		return nil
	}
}

// NewStringDecoder returns a Decoder that captures the response body as
// a string.
func NewStringDecoder(resp *string) Decoder {
	return func(r io.Reader) error {
		var bs []byte
		err := NewBytesDecoder(&bs)(r)
		if err != nil {
			return err
		}
		*resp = string(bs)
		return nil
	}
}

// HTTPError is returned for any call that completed with a non 2XX status.
type HTTPError struct {
	method       string
	route        string
	code         int
	attempts     int
	doneRetrying bool
}

var _ error = (*HTTPError)(nil)

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s returned %d (%s) after %d attempts",
		e.method, e.route, e.code, http.StatusText(e.code), e.attempts)
}

// Code reports the status code the last attempt saw.
func (e *HTTPError) Code() int {
	return e.code
}

// Is treats an HTTPError still inside the retry loop as a warning, so a
// retried attempt does not light up the trace as an error. Once retrying
// is done only the expected auth and not found family of codes count as
// warnings.
func (e *HTTPError) Is(target error) bool {
	if o11y.IsWarningNoUnwrap(target) {
		if !e.doneRetrying {
			return true
		}
		// 401, 403 and 404 happen in normal operation (402 hardly exists)
		return e.code > 400 && e.code <= 404
	}
	return false
}

// HasStatusCode reports whether err is an HTTPError with any of the codes.
func HasStatusCode(err error, codes ...int) bool {
	e := &HTTPError{}
	if errors.As(err, &e) {
		for _, code := range codes {
			if e.code == code {
				return true
			}
		}
	}
	return false
}

// IsRequestProblem reports whether err is an HTTPError in the 4xx range,
// meaning the request itself needs fixing before a resend can help.
func IsRequestProblem(err error) bool {
	e := &HTTPError{}
	if errors.As(err, &e) {
		return e.code >= 400 && e.code < 500
	}
	return false
}

func IsNoContent(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// statusError maps a completed response to the error the retry loop needs,
// nil for 2XX.
func statusError(req *http.Request, res *http.Response, attempts int, route string) error {
	httpErr := &HTTPError{
		method:   req.Method,
		route:    route,
		code:     res.StatusCode,
		attempts: attempts,
	}
	switch {
	case res.StatusCode >= 500:
		// server troubles may clear up, leave the error retryable
		return httpErr
	case res.StatusCode >= 300:
		// anything else non 2XX is on us, do not retry
		return backoff.Permanent(httpErr)
	case res.StatusCode == http.StatusNoContent:
		return backoff.Permanent(ErrNoContent)
	}
	return nil
}

func doneRetrying(err error) error {
	e := &HTTPError{}
	if errors.As(err, &e) {
		e.doneRetrying = true
		return e
	}
	return err
}
