// Package multiagent composes several specialized agents behind one
// keyword-scoring router.
package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"storefront-agent/internal/domain"
	applog "storefront-agent/internal/infra/logger"
	"storefront-agent/internal/infra/tracer"
)

// Scoring weights.
const (
	exactKeywordPoints   = 10.0
	partialKeywordPoints = 4.0
	continuityPoints     = 15.0
	priorityPoints       = 6.0
	patternPoints        = 20.0
	confidenceDenom      = 40.0

	// DefaultThreshold is the confidence below which requests are handled
	// directly by the default agent.
	DefaultThreshold = 0.6

	minPartialLen = 3
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// RouterConfig configures an AgentRouter.
type RouterConfig struct {
	// DefaultAgent handles low-confidence requests. Empty selects the agent
	// with the best priority.
	DefaultAgent string
	Threshold    float64
	// Events receives an agent.routed event per Route call. Optional.
	Events domain.EventBus
}

// RoutingRecorder exports routing decisions to a metrics backend.
type RoutingRecorder interface {
	RoutingDecision(agent string, delegated bool)
}

type keyword struct {
	word  string
	exact *regexp.Regexp
}

type profile struct {
	name     string
	priority int
	keywords []keyword
	patterns []*regexp.Regexp
}

// AgentRouter scores registered agents against a request and delegates to
// the best match.
type AgentRouter struct {
	agents       map[string]domain.Agent
	profiles     []profile // sorted by name
	defaultAgent string
	threshold    float64
	logger       *slog.Logger
	recorder     RoutingRecorder
	events       domain.EventBus
}

// NewAgentRouter compiles the routing profiles of agents. recorder may be nil.
func NewAgentRouter(agents map[string]domain.Agent, cfg RouterConfig, logger *slog.Logger, recorder RoutingRecorder) (*AgentRouter, error) {
	if len(agents) == 0 {
		return nil, domain.NewDomainError("NewAgentRouter", domain.ErrInvalidInput, "no agents registered")
	}
	if logger == nil {
		logger = applog.Discard()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	profiles := make([]profile, 0, len(agents))
	for name, agent := range agents {
		p, err := compileProfile(name, agent.Config())
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].name < profiles[j].name })

	defaultAgent := cfg.DefaultAgent
	if defaultAgent == "" {
		best := profiles[0]
		for _, p := range profiles[1:] {
			if priorityRank(p.priority) < priorityRank(best.priority) {
				best = p
			}
		}
		defaultAgent = best.name
	}
	if _, ok := agents[defaultAgent]; !ok {
		return nil, domain.NewDomainError("NewAgentRouter", domain.ErrAgentNotFound, defaultAgent)
	}

	return &AgentRouter{
		agents:       agents,
		profiles:     profiles,
		defaultAgent: defaultAgent,
		threshold:    threshold,
		logger:       logger,
		recorder:     recorder,
		events:       cfg.Events,
	}, nil
}

func compileProfile(name string, cfg domain.AgentConfig) (profile, error) {
	p := profile{name: name, priority: cfg.Priority}
	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		p.keywords = append(p.keywords, keyword{
			word:  kw,
			exact: regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	for _, pat := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return profile{}, domain.NewDomainError("NewAgentRouter", domain.ErrInvalidInput,
				fmt.Sprintf("agent %q pattern %q: %v", name, pat, err))
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// priorityRank orders priorities; 1 is the highest, unset sorts last.
func priorityRank(p int) int {
	if p <= 0 {
		return int(^uint(0) >> 1)
	}
	return p
}

// DefaultAgent returns the name of the agent that handles requests directly.
func (r *AgentRouter) DefaultAgent() string { return r.defaultAgent }

// Agent returns the named agent or ErrAgentNotFound.
func (r *AgentRouter) Agent(name string) (domain.Agent, error) {
	agent, ok := r.agents[name]
	if !ok {
		return nil, domain.NewDomainError("AgentRouter.Agent", domain.ErrAgentNotFound, name)
	}
	return agent, nil
}

// Agents returns all agents sorted by name.
func (r *AgentRouter) Agents() []domain.Agent {
	out := make([]domain.Agent, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, r.agents[p.name])
	}
	return out
}

// SelectBestAgent scores every agent against request. A leading "@name"
// naming a registered agent selects it outright.
func (r *AgentRouter) SelectBestAgent(request string, reqCtx map[string]any) domain.RoutingDecision {
	if name, _, ok := r.explicitTarget(request); ok {
		r.logger.Debug("prefix matched agent", "agent", name)
		return domain.RoutingDecision{
			Agent:      name,
			Confidence: 1,
			Scores:     map[string]float64{name: confidenceDenom},
			Rationale:  "explicit @" + name + " prefix",
			Delegate:   true,
		}
	}

	lower := strings.ToLower(request)
	tokens := tokenRe.FindAllString(lower, -1)
	previous := domain.StringValue(reqCtx, domain.CtxPreviousAgent)

	scores := make(map[string]float64, len(r.profiles))
	reasons := make(map[string][]string, len(r.profiles))
	best := -1
	var bestScore float64
	for i, p := range r.profiles {
		score, why := p.score(lower, tokens, previous)
		scores[p.name] = score
		reasons[p.name] = why
		if best < 0 || score > bestScore ||
			(score == bestScore && priorityRank(p.priority) < priorityRank(r.profiles[best].priority)) {
			best, bestScore = i, score
		}
	}

	winner := r.profiles[best].name
	confidence := min(max(bestScore/confidenceDenom, 0), 1)
	decision := domain.RoutingDecision{
		Agent:      winner,
		Confidence: confidence,
		Scores:     scores,
		Rationale:  strings.Join(reasons[winner], "; "),
		Delegate:   confidence >= r.threshold,
	}
	if decision.Rationale == "" {
		decision.Rationale = "no routing signals"
	}
	if !decision.Delegate {
		decision.Rationale += fmt.Sprintf("; confidence %.2f below %.2f, handled directly", confidence, r.threshold)
	}
	return decision
}

func (p profile) score(lower string, tokens []string, previous string) (float64, []string) {
	var score float64
	var why []string

	var exact, partial []string
	for _, kw := range p.keywords {
		switch {
		case kw.exact.MatchString(lower):
			score += exactKeywordPoints
			exact = append(exact, kw.word)
		case partialMatch(kw.word, tokens):
			score += partialKeywordPoints
			partial = append(partial, kw.word)
		}
	}
	if len(exact) > 0 {
		why = append(why, "keywords: "+strings.Join(exact, ", "))
	}
	if len(partial) > 0 {
		why = append(why, "partial keywords: "+strings.Join(partial, ", "))
	}

	if previous != "" && previous == p.name {
		score += continuityPoints
		why = append(why, "continues previous conversation")
	}
	if p.priority > 0 {
		score += priorityPoints / float64(p.priority)
	}
	for _, re := range p.patterns {
		if re.MatchString(lower) {
			score += patternPoints
			why = append(why, "pattern: "+re.String()[len("(?i)"):])
			break
		}
	}
	return score, why
}

// partialMatch reports whether a request token and a single-word keyword
// share a prefix, as in "refunds" for "refund" or "pay" for "payment".
func partialMatch(word string, tokens []string) bool {
	if strings.ContainsRune(word, ' ') {
		return false
	}
	for _, tok := range tokens {
		if len(tok) < minPartialLen || tok == word {
			continue
		}
		if strings.HasPrefix(tok, word) || strings.HasPrefix(word, tok) {
			return true
		}
	}
	return false
}

// explicitTarget parses an "@name" prefix naming a registered agent. The
// name matches case-insensitively and is returned as registered.
func (r *AgentRouter) explicitTarget(request string) (name, rest string, ok bool) {
	content := strings.TrimSpace(request)
	if !strings.HasPrefix(content, "@") {
		return "", request, false
	}
	name, rest, _ = strings.Cut(content[1:], " ")
	if _, known := r.agents[name]; known {
		return name, strings.TrimSpace(rest), true
	}
	for _, p := range r.profiles {
		if strings.EqualFold(p.name, name) {
			return p.name, strings.TrimSpace(rest), true
		}
	}
	return "", request, false
}

// Route selects an agent for request and processes it there, or with the
// default agent when routing confidence is too low. The decision is attached
// to the result.
func (r *AgentRouter) Route(ctx context.Context, request string, reqCtx map[string]any) domain.ProcessingResult {
	ctx, span := tracer.StartSpan(ctx, "router.select")
	decision := r.SelectBestAgent(request, reqCtx)
	span.SetAttributes(
		tracer.StringAttr("router.agent", decision.Agent),
		tracer.Float64Attr("router.confidence", decision.Confidence),
		tracer.BoolAttr("router.delegate", decision.Delegate),
	)
	span.End()

	if _, rest, ok := r.explicitTarget(request); ok {
		request = rest
	}

	target := decision.Agent
	if !decision.Delegate {
		target = r.defaultAgent
	}
	r.logger.Info("request routed",
		"agent", target,
		"best_match", decision.Agent,
		"confidence", decision.Confidence,
		"delegated", decision.Delegate,
	)
	if r.recorder != nil {
		r.recorder.RoutingDecision(target, decision.Delegate)
	}
	if r.events != nil {
		r.events.Publish(ctx, domain.NewEvent(domain.EventRequestRouted, target, domain.RequestIDFromContext(ctx),
			domain.RoutedPayload{BestMatch: decision.Agent, Confidence: decision.Confidence, Delegated: decision.Delegate}))
	}

	result := r.agents[target].Process(ctx, request, reqCtx)
	result.Routing = &decision
	return result
}

// ProcessWith bypasses scoring and processes request on the named agent.
func (r *AgentRouter) ProcessWith(ctx context.Context, name, request string, reqCtx map[string]any) (domain.ProcessingResult, error) {
	agent, err := r.Agent(name)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	ctx, span := tracer.StartSpan(ctx, "router.direct", trace.WithAttributes(tracer.StringAttr("router.agent", name)))
	defer span.End()
	return agent.Process(ctx, request, reqCtx), nil
}
