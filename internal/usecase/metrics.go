package usecase

import (
	"sync"
	"time"

	"storefront-agent/internal/domain"
)

// Request outcomes reported to a MetricsRecorder.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeCached   = "cached"
)

// MetricsRecorder exports agent activity to an external metrics backend.
type MetricsRecorder interface {
	ObserveRequest(agent, outcome string, d time.Duration)
	CacheHit(agent string)
	FallbackParse(agent string)
	Retry(agent string)
	ToolExecution(agent, tool, status string)
	CircuitState(agent, state string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, time.Duration) {}
func (nopRecorder) CacheHit(string)                              {}
func (nopRecorder) FallbackParse(string)                         {}
func (nopRecorder) Retry(string)                                 {}
func (nopRecorder) ToolExecution(string, string, string)         {}
func (nopRecorder) CircuitState(string, string)                  {}

// agentMetrics holds the in-process counters of one agent.
type agentMetrics struct {
	mu          sync.Mutex
	requests    int64
	successes   int64
	errors      int64
	cacheHits   int64
	fallbacks   int64
	totalTime   time.Duration
	lastError   string
	lastErrorAt time.Time
}

func (m *agentMetrics) recordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.successes++
	m.totalTime += d
}

func (m *agentMetrics) recordError(msg string, d time.Duration, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.errors++
	m.totalTime += d
	m.lastError = msg
	m.lastErrorAt = at
}

func (m *agentMetrics) recordCacheHit(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.successes++
	m.cacheHits++
	m.totalTime += d
}

func (m *agentMetrics) recordFallback() {
	m.mu.Lock()
	m.fallbacks++
	m.mu.Unlock()
}

func (m *agentMetrics) snapshot() domain.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := domain.MetricsSnapshot{
		Requests:       m.requests,
		Successes:      m.successes,
		Errors:         m.errors,
		CacheHits:      m.cacheHits,
		FallbackParses: m.fallbacks,
		LastError:      m.lastError,
		LastErrorAt:    m.lastErrorAt,
	}
	if m.requests > 0 {
		s.AvgResponseTime = m.totalTime / time.Duration(m.requests)
	}
	return s
}
