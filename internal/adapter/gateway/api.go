package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"storefront-agent/internal/domain"
)

const maxBodyBytes = 1 << 20

// ProcessRequest is the body of POST /api/v1/process and the agent.process payload.
type ProcessRequest struct {
	Request string         `json:"request"`
	Agent   string         `json:"agent,omitempty"` // empty = route by score
	Context map[string]any `json:"context,omitempty"`
}

// RouteRequest is the body of POST /api/v1/route and the agent.route payload.
type RouteRequest struct {
	Request string         `json:"request"`
	Context map[string]any `json:"context,omitempty"`
}

// HealthReport aggregates the health of every agent.
type HealthReport struct {
	Status string          `json:"status"`
	Uptime string          `json:"uptime"`
	Agents []domain.Health `json:"agents"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) registerRPCMethods() {
	s.RegisterHandler("agent.process", func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req ProcessRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return s.process(ctx, req)
	})
	s.RegisterHandler("agent.route", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		var req RouteRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		if err := requireRequest(req.Request); err != nil {
			return nil, err
		}
		return s.svc.SelectBestAgent(req.Request, req.Context), nil
	})
	s.RegisterHandler("agent.list", func(context.Context, *ClientInfo, json.RawMessage) (any, error) {
		return s.agentConfigs(), nil
	})
	s.RegisterHandler("agent.health", func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (any, error) {
		return s.health(ctx), nil
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.process(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := requireRequest(req.Request); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.SelectBestAgent(req.Request, req.Context))
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agentConfigs())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health(r.Context())
	status := http.StatusOK
	if report.Status == domain.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) process(ctx context.Context, req ProcessRequest) (domain.ProcessingResult, error) {
	if err := requireRequest(req.Request); err != nil {
		return domain.ProcessingResult{}, err
	}
	if req.Agent != "" {
		return s.svc.ProcessWith(ctx, req.Agent, req.Request, req.Context)
	}
	return s.svc.Route(ctx, req.Request, req.Context), nil
}

func (s *Server) agentConfigs() []domain.AgentConfig {
	agents := s.svc.Agents()
	out := make([]domain.AgentConfig, len(agents))
	for i, a := range agents {
		out[i] = a.Config()
	}
	return out
}

// health checks every agent concurrently. The overall status is unhealthy
// only when no agent is healthy or degraded.
func (s *Server) health(ctx context.Context) HealthReport {
	agents := s.svc.Agents()
	reports := make([]domain.Health, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = a.HealthCheck(ctx)
		}()
	}
	wg.Wait()

	healthy, unhealthy := 0, 0
	for _, h := range reports {
		switch h.Status {
		case domain.HealthHealthy:
			healthy++
		case domain.HealthUnhealthy:
			unhealthy++
		}
	}
	status := domain.HealthDegraded
	switch {
	case healthy == len(reports):
		status = domain.HealthHealthy
	case unhealthy == len(reports):
		status = domain.HealthUnhealthy
	}
	return HealthReport{
		Status: status,
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
		Agents: reports,
	}
}

func requireRequest(request string) error {
	if strings.TrimSpace(request) == "" {
		return domain.NewDomainError("gateway", domain.ErrInvalidInput, "request must not be empty")
	}
	return nil
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, "empty body")
		}
		return domain.NewDomainError("gateway.decode", domain.ErrInvalidInput, err.Error())
	}
	return nil
}

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAgentNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Code: string(domain.ErrorCodeOf(err))})
}
