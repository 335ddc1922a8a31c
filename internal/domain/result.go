package domain

import "time"

// Decision is the structured output expected from the reasoning service.
type Decision struct {
	Analysis     string         `json:"analysis"`
	Action       string         `json:"action"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning,omitempty"`
	HumanMessage string         `json:"humanMessage"`

	Fallback   bool   `json:"fallback,omitempty"`
	ParseError string `json:"parseError,omitempty"`
}

// ProcessingResult is the unit returned to callers of Agent.Process.
// Every code path yields one; it is not mutated after being returned.
type ProcessingResult struct {
	Success     bool             `json:"success"`
	Agent       string           `json:"agent"`
	RequestID   string           `json:"request_id,omitempty"`
	Analysis    string           `json:"analysis,omitempty"`
	Action      string           `json:"action,omitempty"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
	Confidence  float64          `json:"confidence"`
	Reasoning   string           `json:"reasoning,omitempty"`
	Message     string           `json:"message"`
	ToolOutcome *ToolOutcome     `json:"tool_outcome,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorCode   ErrorCode        `json:"error_code,omitempty"`
	Tier        Tier             `json:"tier,omitempty"`
	Cached      bool             `json:"cached"`
	Fallback    bool             `json:"fallback"`
	ParseError  string           `json:"parse_error,omitempty"`
	Routing     *RoutingDecision `json:"routing,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ToolResult returns the tool's return value, or nil when no tool ran successfully.
func (r ProcessingResult) ToolResult() *ToolResult {
	if r.ToolOutcome == nil {
		return nil
	}
	return r.ToolOutcome.Result
}

// Duration is the wall-clock processing time.
func (r ProcessingResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
