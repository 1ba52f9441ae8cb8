package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestPortScanner(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		port   int
		match  bool
	}{
		{
			name:   "single write",
			writes: []string{"api: listening on port 8080\n"},
			port:   8080,
			match:  true,
		},
		{
			name:   "case insensitive",
			writes: []string{"Listening On PORT 9090\n"},
			port:   9090,
			match:  true,
		},
		{
			name:   "split across writes",
			writes: []string{"listen", "ing on po", "rt 7070", "\n"},
			port:   7070,
			match:  true,
		},
		{
			name:   "digits split across writes",
			writes: []string{"listening on port 48", "21\n"},
			port:   4821,
			match:  true,
		},
		{
			name:   "embedded in a log line",
			writes: []string{`time=x msg="kv-service: listening on port 6060 (pid 41)"` + "\n"},
			port:   6060,
			match:  true,
		},
		{
			name:   "first announcement wins",
			writes: []string{"listening on port 1111\n", "listening on port 2222\n"},
			port:   1111,
			match:  true,
		},
		{
			name:   "surrounded by noise",
			writes: []string{"starting up\n", "connected to redis\n", "listening on port 3030\nserving\n"},
			port:   3030,
			match:  true,
		},
		{
			name:   "no announcement",
			writes: []string{"hello\n", "world\n"},
			match:  false,
		},
		{
			name:   "mention without a port",
			writes: []string{"not listening on port yet\n"},
			match:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCell()
			scan := &portScanner{cell: c}
			for _, w := range tt.writes {
				n, err := scan.Write([]byte(w))
				assert.NilError(t, err)
				assert.Check(t, cmp.Equal(n, len(w)))
			}

			if !tt.match {
				assert.Check(t, !c.resolved())
				return
			}

			assert.Assert(t, c.resolved())
			port, err := c.wait(context.Background())
			assert.NilError(t, err)
			assert.Check(t, cmp.Equal(port, tt.port))
		})
	}
}

func TestPortScanner_BoundedAccumulation(t *testing.T) {
	c := newCell()
	scan := &portScanner{cell: c}

	// enough noise to trip the window trim several times over
	noise := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 64)
	for i := 0; i < 200; i++ {
		_, err := scan.Write([]byte(noise))
		assert.NilError(t, err)
	}
	assert.Check(t, len(scan.pending) <= scanWindow+len(noise))

	// still matches after all that
	_, err := scan.Write([]byte("listening on port 4821\n"))
	assert.NilError(t, err)

	port, err := c.wait(context.Background())
	assert.NilError(t, err)
	assert.Check(t, cmp.Equal(port, 4821))
}

func TestCell(t *testing.T) {
	ctx := context.Background()

	t.Run("first resolve wins", func(t *testing.T) {
		c := newCell()
		c.resolve(1, nil)
		c.resolve(2, context.Canceled)

		v, err := c.wait(ctx)
		assert.NilError(t, err)
		assert.Check(t, cmp.Equal(v, 1))
	})

	t.Run("wait respects cancellation", func(t *testing.T) {
		c := newCell()
		canceled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := c.wait(canceled)
		assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
		assert.Check(t, !c.resolved())

		// a late resolve still reaches later waiters
		c.resolve(3, nil)
		v, err := c.wait(ctx)
		assert.NilError(t, err)
		assert.Check(t, cmp.Equal(v, 3))
	})
}
