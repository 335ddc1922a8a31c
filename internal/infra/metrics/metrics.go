// Package metrics exports agent and routing activity as Prometheus collectors.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront_agent"

// Circuit state gauge values.
const (
	stateClosed   = 0
	stateHalfOpen = 1
	stateOpen     = 2
)

// Metrics holds the Prometheus collectors for agents and the router.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	fallbackParses  *prometheus.CounterVec
	retries         *prometheus.CounterVec
	toolExecutions  *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	routing         *prometheus.CounterVec
}

// MustNew constructs Metrics and registers its collectors with reg. A nil
// reg uses the default registerer. Collectors already registered under the
// same name are reused, so several instances can share one registry.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests processed per agent by outcome.",
		}, []string{"agent", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end processing time per agent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Requests answered from the response cache.",
		}, []string{"agent"}),
		fallbackParses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_parses_total",
			Help:      "Reasoning replies that needed the fallback parser.",
		}, []string{"agent"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Reasoning-service retry attempts.",
		}, []string{"agent"}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and status.",
		}, []string{"agent", "tool", "status"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per agent (0 closed, 1 half-open, 2 open).",
		}, []string{"agent"}),
		routing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by selected agent and whether the request was delegated.",
		}, []string{"agent", "delegated"}),
	}

	m.requests = register(reg, m.requests)
	m.requestDuration = register(reg, m.requestDuration)
	m.cacheHits = register(reg, m.cacheHits)
	m.fallbackParses = register(reg, m.fallbackParses)
	m.retries = register(reg, m.retries)
	m.toolExecutions = register(reg, m.toolExecutions)
	m.circuitState = register(reg, m.circuitState)
	m.routing = register(reg, m.routing)
	return m
}

// register adds c to reg, returning the existing collector when an
// identical one is already registered. Any other error panics.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRequest records one processed request.
func (m *Metrics) ObserveRequest(agent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(agent, outcome).Inc()
	m.requestDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// CacheHit counts a cached response.
func (m *Metrics) CacheHit(agent string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(agent).Inc()
}

// FallbackParse counts a reply recovered by the fallback parser.
func (m *Metrics) FallbackParse(agent string) {
	if m == nil {
		return
	}
	m.fallbackParses.WithLabelValues(agent).Inc()
}

// Retry counts one retried reasoning call.
func (m *Metrics) Retry(agent string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(agent).Inc()
}

// ToolExecution counts one tool run.
func (m *Metrics) ToolExecution(agent, tool, status string) {
	if m == nil {
		return
	}
	m.toolExecutions.WithLabelValues(agent, tool, status).Inc()
}

// CircuitState sets the breaker gauge of agent. Unknown states are ignored.
func (m *Metrics) CircuitState(agent, state string) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case "closed":
		v = stateClosed
	case "half-open":
		v = stateHalfOpen
	case "open":
		v = stateOpen
	default:
		return
	}
	m.circuitState.WithLabelValues(agent).Set(v)
}

// RoutingDecision counts one router decision.
func (m *Metrics) RoutingDecision(agent string, delegated bool) {
	if m == nil {
		return
	}
	m.routing.WithLabelValues(agent, strconv.FormatBool(delegated)).Inc()
}
