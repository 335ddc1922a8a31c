package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/usecase/eventbus"
)

func storefrontAgents() map[string]domain.Agent {
	return map[string]domain.Agent{
		"payments": &fakeAgent{cfg: domain.AgentConfig{
			Name:     "payments",
			Keywords: []string{"payment", "refund", "charge", "invoice"},
			Patterns: []string{`refund (order|payment) #?\d+`},
			Priority: 1,
		}},
		"content": &fakeAgent{cfg: domain.AgentConfig{
			Name:     "content",
			Keywords: []string{"page", "blog", "publish", "seo"},
			Priority: 2,
		}},
		"catalog": &fakeAgent{cfg: domain.AgentConfig{
			Name:     "catalog",
			Keywords: []string{"product", "inventory", "stock", "price"},
			Patterns: []string{`\bsku[- ]?\w+`},
			Priority: 2,
		}},
	}
}

func newTestRouter(t *testing.T, agents map[string]domain.Agent, cfg RouterConfig) *AgentRouter {
	t.Helper()
	r, err := NewAgentRouter(agents, cfg, testLogger(), nil)
	require.NoError(t, err)
	return r
}

func TestSelectKeywordMatchWins(t *testing.T) {
	agents := map[string]domain.Agent{
		"a": &fakeAgent{cfg: domain.AgentConfig{Name: "a", Keywords: []string{"refund"}}},
		"b": &fakeAgent{cfg: domain.AgentConfig{Name: "b", Keywords: []string{"blog"}}},
	}
	r := newTestRouter(t, agents, RouterConfig{})

	d := r.SelectBestAgent("please refund this order", nil)
	assert.Equal(t, "a", d.Agent)
	assert.Greater(t, d.Confidence, 0.0)
	assert.Greater(t, d.Scores["a"], d.Scores["b"])
}

func TestSelectScoring(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})

	d := r.SelectBestAgent("refund payment 1234 for the invoice", nil)
	// refund + payment + invoice exact, pattern, priority 1.
	assert.Equal(t, "payments", d.Agent)
	assert.InDelta(t, 3*exactKeywordPoints+patternPoints+priorityPoints, d.Scores["payments"], 1e-9)
	assert.Equal(t, 1.0, d.Confidence)
	assert.True(t, d.Delegate)
	assert.Contains(t, d.Rationale, "keywords: payment, refund, invoice")
	assert.Contains(t, d.Rationale, "pattern")
}

func TestSelectPartialMatch(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})

	d := r.SelectBestAgent("show all products", nil)
	assert.Equal(t, "catalog", d.Agent)
	assert.InDelta(t, partialKeywordPoints+priorityPoints/2, d.Scores["catalog"], 1e-9)
	assert.Contains(t, d.Rationale, "partial keywords: product")
}

func TestSelectContinuityBonus(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})

	without := r.SelectBestAgent("update the price", nil)
	with := r.SelectBestAgent("update the price", map[string]any{domain.CtxPreviousAgent: "catalog"})

	assert.Equal(t, "catalog", with.Agent)
	assert.InDelta(t, continuityPoints, with.Scores["catalog"]-without.Scores["catalog"], 1e-9)
	assert.Greater(t, with.Confidence, without.Confidence)
}

func TestSelectLowConfidenceHandledDirectly(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{DefaultAgent: "catalog"})

	d := r.SelectBestAgent("hello there", nil)
	assert.False(t, d.Delegate)
	assert.Less(t, d.Confidence, DefaultThreshold)
	assert.Contains(t, d.Rationale, "handled directly")
}

func TestSelectTieBrokenByPriorityThenName(t *testing.T) {
	agents := map[string]domain.Agent{
		"zeta":  &fakeAgent{cfg: domain.AgentConfig{Name: "zeta", Keywords: []string{"order"}}},
		"alpha": &fakeAgent{cfg: domain.AgentConfig{Name: "alpha", Keywords: []string{"order"}}},
	}
	r := newTestRouter(t, agents, RouterConfig{})
	assert.Equal(t, "alpha", r.SelectBestAgent("where is my order", nil).Agent)
}

func TestSelectExplicitPrefix(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})

	d := r.SelectBestAgent("@content refund payment 12", nil)
	assert.Equal(t, "content", d.Agent)
	assert.Equal(t, 1.0, d.Confidence)
	assert.True(t, d.Delegate)

	// Unknown prefixes are scored normally.
	d = r.SelectBestAgent("@nobody refund payment 12", nil)
	assert.Equal(t, "payments", d.Agent)
}

func TestSelectExplicitPrefixIgnoresCase(t *testing.T) {
	agents := map[string]domain.Agent{
		"PaymentsEU": &fakeAgent{cfg: domain.AgentConfig{Name: "PaymentsEU", Keywords: []string{"refund"}}},
		"catalog":    &fakeAgent{cfg: domain.AgentConfig{Name: "catalog", Keywords: []string{"product"}}},
	}
	r := newTestRouter(t, agents, RouterConfig{DefaultAgent: "catalog"})

	for _, prefix := range []string{"@PaymentsEU", "@paymentseu", "@PAYMENTSEU"} {
		d := r.SelectBestAgent(prefix+" list products", nil)
		assert.Equal(t, "PaymentsEU", d.Agent, prefix)
		assert.Equal(t, 1.0, d.Confidence, prefix)
	}

	res := r.Route(context.Background(), "@CATALOG show product 9", nil)
	assert.Equal(t, "catalog", res.Agent)
	assert.Equal(t, []string{"show product 9"}, agents["catalog"].(*fakeAgent).Requests())
}

func TestSelectIsDeterministic(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})
	first := r.SelectBestAgent("publish the new blog page", nil)
	for range 20 {
		assert.Equal(t, first, r.SelectBestAgent("publish the new blog page", nil))
	}
}

func TestRouteDelegatesAndAttachesDecision(t *testing.T) {
	agents := storefrontAgents()
	r := newTestRouter(t, agents, RouterConfig{DefaultAgent: "catalog"})

	res := r.Route(context.Background(), "refund payment 77 please", nil)
	require.NotNil(t, res.Routing)
	assert.Equal(t, "payments", res.Agent)
	assert.Equal(t, "payments", res.Routing.Agent)
	assert.Equal(t, []string{"refund payment 77 please"}, agents["payments"].(*fakeAgent).Requests())
}

func TestRouteLowConfidenceUsesDefault(t *testing.T) {
	agents := storefrontAgents()
	r := newTestRouter(t, agents, RouterConfig{DefaultAgent: "catalog"})

	res := r.Route(context.Background(), "good morning", nil)
	require.NotNil(t, res.Routing)
	assert.False(t, res.Routing.Delegate)
	assert.Equal(t, "catalog", res.Agent)
}

func TestRouteStripsExplicitPrefix(t *testing.T) {
	agents := storefrontAgents()
	r := newTestRouter(t, agents, RouterConfig{})

	res := r.Route(context.Background(), "@content publish the about page", nil)
	assert.Equal(t, "content", res.Agent)
	assert.Equal(t, []string{"publish the about page"}, agents["content"].(*fakeAgent).Requests())
}

type recordingRouting struct {
	mu        sync.Mutex
	decisions []string
}

func (r *recordingRouting) RoutingDecision(agent string, delegated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if delegated {
		r.decisions = append(r.decisions, agent+":delegated")
	} else {
		r.decisions = append(r.decisions, agent+":direct")
	}
}

func TestRouteRecordsDecision(t *testing.T) {
	rec := &recordingRouting{}
	r, err := NewAgentRouter(storefrontAgents(), RouterConfig{DefaultAgent: "catalog"}, nil, rec)
	require.NoError(t, err)

	r.Route(context.Background(), "refund payment 5", nil)
	r.Route(context.Background(), "hi", nil)
	assert.Equal(t, []string{"payments:delegated", "catalog:direct"}, rec.decisions)
}

func TestRoutePublishesEvent(t *testing.T) {
	bus := eventbus.New(nil)
	var mu sync.Mutex
	var events []domain.Event
	bus.Subscribe(domain.EventRequestRouted, func(_ context.Context, e domain.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	r := newTestRouter(t, storefrontAgents(), RouterConfig{DefaultAgent: "catalog", Events: bus})
	ctx := domain.ContextWithRequestID(context.Background(), "req-7")
	r.Route(ctx, "refund payment 5", nil)
	bus.Close()

	require.Len(t, events, 1)
	assert.Equal(t, "payments", events[0].Agent)
	assert.Equal(t, "req-7", events[0].RequestID)
	var p domain.RoutedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &p))
	assert.Equal(t, "payments", p.BestMatch)
	assert.True(t, p.Delegated)
}

func TestProcessWith(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})

	res, err := r.ProcessWith(context.Background(), "content", "refund payment 5", nil)
	require.NoError(t, err)
	assert.Equal(t, "content", res.Agent)
	assert.Nil(t, res.Routing)

	_, err = r.ProcessWith(context.Background(), "shipping", "x", nil)
	assert.True(t, errors.Is(err, domain.ErrAgentNotFound))
}

func TestNewAgentRouterErrors(t *testing.T) {
	_, err := NewAgentRouter(nil, RouterConfig{}, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = NewAgentRouter(storefrontAgents(), RouterConfig{DefaultAgent: "shipping"}, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrAgentNotFound))

	bad := map[string]domain.Agent{
		"x": &fakeAgent{cfg: domain.AgentConfig{Name: "x", Patterns: []string{"("}}},
	}
	_, err = NewAgentRouter(bad, RouterConfig{}, nil, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestDefaultAgentByPriority(t *testing.T) {
	r := newTestRouter(t, storefrontAgents(), RouterConfig{})
	assert.Equal(t, "payments", r.DefaultAgent())

	names := make([]string, 0, 3)
	for _, a := range r.Agents() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"catalog", "content", "payments"}, names)
}
