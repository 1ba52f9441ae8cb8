package httpserver

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

type trackedListener struct {
	net.Listener
	name string

	connections int64
}

func (l *trackedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&l.connections, 1)
	return &trackedConn{Conn: conn, listener: l}, nil
}

// Port returns the port the listener is bound to, or 0 for non TCP listeners.
func (l *trackedListener) Port() int {
	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (l *trackedListener) MetricName() string {
	return "httpserver." + l.name
}

func (l *trackedListener) Gauges(context.Context) map[string]float64 {
	return map[string]float64{
		"connections": float64(atomic.LoadInt64(&l.connections)),
	}
}

type trackedConn struct {
	net.Conn
	listener *trackedListener

	closeOnce sync.Once
}

// Close decrements the connection count once, however many times the
// connection is closed.
func (c *trackedConn) Close() error {
	c.closeOnce.Do(func() {
		atomic.AddInt64(&c.listener.connections, -1)
	})
	return c.Conn.Close()
}
