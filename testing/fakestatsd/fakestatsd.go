package fakestatsd

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

// FakeStatsd is a statsd server that records every metric sent to it, for
// asserting on what a statsd client emitted.
type FakeStatsd struct {
	conn *net.UDPConn

	mu      sync.RWMutex
	metrics []Metric
}

// New starts the server on a random local port. It stops when the test ends.
func New(t testing.TB) *FakeStatsd {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "localhost:0")
	assert.Assert(t, err)

	conn, err := net.ListenUDP("udp", addr)
	assert.Assert(t, err)

	s := &FakeStatsd{conn: conn}
	go s.listen()
	t.Cleanup(func() {
		_ = s.conn.Close()
	})

	return s
}

func (s *FakeStatsd) Addr() string {
	return s.conn.LocalAddr().String()
}

// Metric is one statsd line, with the value kept in its wire form.
type Metric struct {
	Name  string
	Value string
	Tags  []string
}

func (s *FakeStatsd) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(make([]Metric, 0, len(s.metrics)), s.metrics...)
}

func (s *FakeStatsd) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

func (s *FakeStatsd) record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *FakeStatsd) listen() {
	buf := make([]byte, 8192)
	for {
		n, err := s.conn.Read(buf)
		if errors.Is(err, net.ErrClosed) {
			return
		}

		// a datagram can carry a batch of newline separated metrics
		for _, line := range bytes.Split(buf[:n], []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				s.record(parse(string(line)))
			}
		}
	}
}

func parse(raw string) Metric {
	name, rest, _ := strings.Cut(raw, ":")
	value, rawTags, tagged := strings.Cut(rest, "#")

	var tags []string
	if tagged {
		tags = strings.Split(rawTags, ",")
	}
	return Metric{Name: name, Value: value, Tags: tags}
}
