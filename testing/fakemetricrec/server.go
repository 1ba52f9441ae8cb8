// Package fakemetricrec is a stub HTTP metrics collector for testing
// services that publish their metrics with o11y/httpmetrics.
package fakemetricrec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/spantrap/harness/httpserver/ginrouter"
)

type Server struct {
	URL   string
	Close func()

	mu      sync.RWMutex
	fail    bool
	metrics []metric
}

type batch struct {
	Data       []metric `json:"metrics"`
	GlobalTags []string `json:"tags"`
}

type metric struct {
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Value     float64  `json:"value"`
	Tags      []string `json:"tags"`
	Timestamp int64    `json:"timestamp"`
}

func New(ctx context.Context) *Server {
	s := &Server{}

	r := ginrouter.Default(ctx, "fake-metric-rec")
	r.PUT("/metrics", s.putMetrics)

	server := httptest.NewServer(r)
	s.URL = server.URL
	s.Close = server.Close
	return s
}

func (s *Server) putMetrics(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		c.Status(http.StatusBadRequest)
		return
	}

	var b batch
	if err := c.BindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.metrics = append(s.metrics, b.Data...)
}

// SetFail makes the collector reject every publish until reset.
func (s *Server) SetFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Len is the number of individual metrics received so far.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

// Totals sums the received metric values by name.
func (s *Server) Totals() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]float64{}
	for _, m := range s.metrics {
		totals[m.Name] += m.Value
	}
	return totals
}
