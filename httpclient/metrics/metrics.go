// Package metrics instruments the http client transport, producing
// connection pool gauges and per request connection timing metrics from
// httptrace callbacks.
package metrics

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spantrap/harness/o11y"
	"github.com/spantrap/harness/system"
)

type Metrics struct {
	prov o11y.MetricsProvider
	rt   http.RoundTripper
	name string

	mu            sync.Mutex
	poolAvailable int64 // estimated from checkout counting, not exact
	inFlight      int64
	inFlightMax   int64
}

// New creates a Metrics using the metrics provider found in ctx.
func New(ctx context.Context) *Metrics {
	return &Metrics{
		prov: o11y.FromContext(ctx).MetricsProvider(),
	}
}

// Wrap returns r wrapped with in flight reference counting.
func (m *Metrics) Wrap(name string, r http.RoundTripper) http.RoundTripper {
	m.name = name
	m.rt = r
	return m
}

// RoundTrip makes Metrics a http.RoundTripper, counting requests in flight.
func (m *Metrics) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.inFlightMax {
		m.inFlightMax = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	// the round trip itself must happen outside the lock
	return m.rt.RoundTrip(req)
}

func (m *Metrics) GaugeName() string {
	return "httpclient"
}

// Gauges reports the point in time pool and in flight numbers, tagged
// with the client name.
func (m *Metrics) Gauges(_ context.Context) map[string][]system.TaggedValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	tags := []string{"client:" + m.name}

	poolAvail := m.poolAvailable
	if poolAvail < 0 {
		poolAvail = 0
	}

	return map[string][]system.TaggedValue{
		"in_flight": {
			{
				Val:  float32(m.inFlight),
				Tags: append(tags, "type:instant"),
			},
			{
				Val:  float32(m.inFlightMax),
				Tags: append(tags, "type:max"),
			},
		},
		"pool_avail_estimate": {
			{
				Val:  float32(poolAvail),
				Tags: tags,
			},
		},
	}
}

// WithTracer registers the httptrace hooks for one request on ctx.
func (m *Metrics) WithTracer(ctx context.Context, route string) context.Context {
	rt := &reqTrace{
		m:   m,
		ctx: ctx,
		commonTags: []string{
			"client:" + m.name,
			"route:" + route,
		},
	}

	trace := &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			rt.conn = &conn{
				host:  hostPort,
				getAt: time.Now(),
			}
		},
		GotConn: rt.gotConn,
		PutIdleConn: func(err error) {
			if err != nil {
				return
			}
			atomic.AddInt64(&rt.m.poolAvailable, 1)
		},
		GotFirstResponseByte: rt.gotFirstByte,
		DNSStart: func(info httptrace.DNSStartInfo) {
			rt.conn.dns = &dnsInfo{
				host:    info.Host,
				startAt: time.Now(),
			}
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			if rt.conn.dns == nil {
				return
			}
			rt.conn.dns.doneAt = time.Now()

			rt.conn.dns.addrCount = len(info.Addrs)
			rt.conn.dns.coalesced = info.Coalesced
			rt.conn.dns.failed = info.Err != nil
		},
		ConnectStart: func(network, addr string) {
			rt.conn.dialStartAt = time.Now()
		},
		ConnectDone: func(network, addr string, err error) {
			rt.conn.dialDoneAt = time.Now()
		},
		TLSHandshakeStart: func() {
			rt.conn.tlsStartAt = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			rt.conn.tlsDoneAt = time.Now()
		},
		WroteRequest: rt.wroteRequest,
	}
	return httptrace.WithClientTrace(ctx, trace)
}

type reqTrace struct {
	m *Metrics
	// the per-request context
	ctx        context.Context
	commonTags []string

	conn          *conn
	connDoneAt    time.Time
	requestDoneAt time.Time
}

type dnsInfo struct {
	startAt   time.Time
	doneAt    time.Time
	host      string
	addrCount int
	coalesced bool
	failed    bool
}

type conn struct {
	host  string
	getAt time.Time

	dialStartAt time.Time
	dialDoneAt  time.Time
	tlsStartAt  time.Time
	tlsDoneAt   time.Time

	dns *dnsInfo
}

func (r *reqTrace) timing(name string, d time.Duration, tags []string) {
	_ = r.m.prov.TimeInMilliseconds(name, float64(d.Milliseconds()), tags, 1)
}

func (r *reqTrace) wroteRequest(httptrace.WroteRequestInfo) {
	r.requestDoneAt = time.Now()
	duration := r.requestDoneAt.Sub(r.connDoneAt)
	o11y.AddField(r.ctx, "req.wrote_request", duration)
	r.timing("httpclient.req.wrote", duration, r.commonTags)
}

func (r *reqTrace) gotFirstByte() {
	if r.requestDoneAt.IsZero() {
		return
	}
	duration := time.Since(r.requestDoneAt)
	r.timing("httpclient.req.first_byte", duration, r.commonTags)
	o11y.AddField(r.ctx, "req.first_byte", duration)
}

func (r *reqTrace) gotConn(info httptrace.GotConnInfo) {
	if r.conn == nil {
		panic("GotConn fired without a GetConn")
	}
	r.connDoneAt = time.Now()

	commonTags := append(r.commonTags, "host:"+r.conn.host)

	tags := map[string]string{
		"reused":  "false",
		"starved": "false",
		"idle":    "false",
		"delayed": "false",
	}

	// acquireDelay is how long getting a connection took for the client's
	// own internal reasons, the various Max limits mostly. The time spent
	// actually dialing and handshaking is subtracted out below.
	acquireDelay := time.Since(r.conn.getAt)

	if info.Reused {
		acquireDelay = r.reusedConn(info, tags)
	} else {
		r.newConn(commonTags)
		// subtract the time physically forming the connection, leaving
		// only the internal queueing delay
		acquireDelay -= r.conn.dialDoneAt.Sub(r.conn.dialStartAt)
	}

	tagList := commonTags
	for k, v := range tags {
		o11y.AddField(r.ctx, "req.con_"+k, v)
		tagList = append(tagList, k+":"+v)
	}

	o11y.AddField(r.ctx, "req.con_wait", acquireDelay)
	// delay in fully internal logic, a strong measure of client contention
	r.timing("httpclient.con.wait", acquireDelay, tagList)
}

// reusedConn accounts for a connection handed back from the pool. It
// returns the acquire delay, which for a reused connection is the full time
// since GetConn fired.
func (r *reqTrace) reusedConn(info httptrace.GotConnInfo, tags map[string]string) time.Duration {
	// keep the pool depth approximation in step
	atomic.AddInt64(&r.m.poolAvailable, -1)

	tags["reused"] = "true"

	// no new connection was formed, so any delay is down to limiting,
	// which is well worth knowing about
	delay := time.Since(r.conn.getAt)
	if delay > time.Millisecond*10 {
		tags["delayed"] = "true"
	}

	if info.WasIdle {
		tags["idle"] = "true"
		// how long the connection sat idle, low values mean the pool is
		// close to fully occupied
		r.timing("httpclient.con.idle", info.IdleTime, r.commonTags)
		o11y.AddField(r.ctx, "req.con_idle", info.IdleTime)
	} else {
		// a reused connection that was never idle went straight from one
		// request to the next, so a request was waiting on it and the
		// pool was effectively exhausted
		tags["starved"] = "true" // expected to correlate with delayed
	}
	return delay
}

// newConn accounts for a freshly established connection, splitting out the
// dns and tls portions.
func (r *reqTrace) newConn(commonTags []string) {
	// WasIdle never applies here, a new connection cannot have been idle.
	dialing := r.conn.dialDoneAt.Sub(r.conn.dialStartAt)

	// how long it took to physically form the connection including DNS and
	// TLS handshake, excluding any internal limiting delays
	r.timing("httpclient.con.new", dialing, commonTags)
	o11y.AddField(r.ctx, "req.con_new", dialing)

	// dns resolution on its own, always a portion of the dial time
	if r.conn.dns != nil {
		dur := r.conn.dns.doneAt.Sub(r.conn.dns.startAt)

		dnsTags := append(commonTags,
			fmt.Sprintf("addresses:%d", r.conn.dns.addrCount),
			fmt.Sprintf("coalesced:%t", r.conn.dns.coalesced),
			fmt.Sprintf("error:%t", r.conn.dns.failed),
		)
		r.timing("httpclient.con.dns", dur, dnsTags)
		o11y.AddField(r.ctx, "req.con_dns", dur)
	}
	if !r.conn.tlsDoneAt.IsZero() {
		dur := r.conn.tlsDoneAt.Sub(r.conn.tlsStartAt)
		r.timing("httpclient.con.tls", dur, commonTags)
		o11y.AddField(r.ctx, "req.con_tls", dur)
	}
}
