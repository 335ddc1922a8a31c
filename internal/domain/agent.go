package domain

import (
	"context"
	"time"
)

// Tier is a reasoning-service tier chosen per request.
type Tier string

const (
	TierFast     Tier = "fast"
	TierThorough Tier = "thorough"
)

// Prompt kinds select the system-prompt strategy of an agent.
const (
	PromptGeneral  = "general"
	PromptPayments = "payments"
	PromptContent  = "content"
	PromptCatalog  = "catalog"
)

// AgentConfig holds the immutable settings of one agent instance.
type AgentConfig struct {
	Name             string        `json:"name"              yaml:"name"`
	Specialization   string        `json:"specialization"    yaml:"specialization"`
	Keywords         []string      `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Patterns         []string      `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Priority         int           `json:"priority"          yaml:"priority"`
	PromptKind       string        `json:"prompt_kind"       yaml:"prompt_kind"`
	MaxRetries       int           `json:"max_retries"       yaml:"max_retries"`
	AttemptTimeout   time.Duration `json:"attempt_timeout"   yaml:"attempt_timeout"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	Cooldown         time.Duration `json:"cooldown"          yaml:"cooldown"`
	CacheTTL         time.Duration `json:"cache_ttl"         yaml:"cache_ttl"`
	CacheCapacity    int           `json:"cache_capacity"    yaml:"cache_capacity"`
}

// Agent is a processing unit addressable by the router.
type Agent interface {
	Name() string
	Config() AgentConfig
	Process(ctx context.Context, request string, reqCtx map[string]any) ProcessingResult
	HealthCheck(ctx context.Context) Health
}

// RoutingDecision is produced fresh for every routing call and never persisted.
type RoutingDecision struct {
	Agent      string             `json:"agent"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	Rationale  string             `json:"rationale"`
	// Delegate is false when confidence fell below the routing threshold and
	// the request should be handled directly instead.
	Delegate bool `json:"delegate"`
}

// MetricsSnapshot is a point-in-time copy of an agent's counters.
type MetricsSnapshot struct {
	Requests        int64         `json:"requests"`
	Successes       int64         `json:"successes"`
	Errors          int64         `json:"errors"`
	CacheHits       int64         `json:"cache_hits"`
	FallbackParses  int64         `json:"fallback_parses"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastError       string        `json:"last_error,omitempty"`
	LastErrorAt     time.Time     `json:"last_error_at,omitzero"`
}

// Health status values.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// BreakerSnapshot describes circuit-breaker state for diagnostics.
type BreakerSnapshot struct {
	State       string    `json:"state"`
	Failures    uint32    `json:"failures"`
	Threshold   int       `json:"threshold"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// Health is the diagnostics view of one agent.
type Health struct {
	Agent                     string          `json:"agent"`
	Status                    string          `json:"status"`
	Metrics                   MetricsSnapshot `json:"metrics"`
	CircuitBreaker            BreakerSnapshot `json:"circuit_breaker"`
	ReasoningServiceReachable bool            `json:"reasoning_service_reachable"`
}
