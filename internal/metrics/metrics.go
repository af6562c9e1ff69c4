// Package metrics keeps process-wide request and query counters for the
// status surface. Prometheus instrumentation lives in internal/observability;
// this counter backs the in-process gateway.status response.
package metrics

import (
	"sync"
	"time"
)

// Counter accumulates request and query volume. Safe for concurrent use.
type Counter struct {
	mu            sync.Mutex
	totalRequests int64
	totalQueries  int64
	queryCount    int64
	cumulative    time.Duration
}

// Stats is a point-in-time snapshot of the counter.
type Stats struct {
	TotalRequests    int64   `json:"total_requests"`
	TotalQueries     int64   `json:"total_queries"`
	AverageQueryTime float64 `json:"average_query_time"`
}

// NewCounter creates a zeroed counter.
func NewCounter() *Counter {
	return &Counter{}
}

// RecordRequest counts one inbound request.
func (c *Counter) RecordRequest() {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()
}

// RecordQueryStart counts one submitted query.
func (c *Counter) RecordQueryStart() {
	c.mu.Lock()
	c.totalQueries++
	c.mu.Unlock()
}

// RecordQueryLatency folds one completed query's execution time into the
// running average.
func (c *Counter) RecordQueryLatency(d time.Duration) {
	c.mu.Lock()
	c.queryCount++
	c.cumulative += d
	c.mu.Unlock()
}

// Snapshot returns the current totals. The average is 0 until at least one
// query has completed.
func (c *Counter) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	avg := 0.0
	if c.queryCount > 0 {
		avg = c.cumulative.Seconds() / float64(c.queryCount)
	}

	return Stats{
		TotalRequests:    c.totalRequests,
		TotalQueries:     c.totalQueries,
		AverageQueryTime: avg,
	}
}
