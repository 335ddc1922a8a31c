package usecase

import (
	"math"
	"regexp"

	"storefront-agent/internal/domain"
)

// SelectorConfig holds the tunable weights of the model selector.
// The numbers are heuristics; only their relative ordering matters.
type SelectorConfig struct {
	BaseScore         float64 `yaml:"base_score"`
	PatternIncrement  float64 `yaml:"pattern_increment"`
	RichContextKeys   int     `yaml:"rich_context_keys"`
	RichContextBonus  float64 `yaml:"rich_context_bonus"`
	MultiSystemBonus  float64 `yaml:"multi_system_bonus"`
	CriticalBonus     float64 `yaml:"critical_bonus"`
	ThoroughThreshold float64 `yaml:"thorough_threshold"`
	// UrgentOverride forces the thorough tier for urgent requests whose
	// complexity is strictly above it.
	UrgentOverride float64 `yaml:"urgent_override"`
}

// DefaultSelectorConfig returns the default weights.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		BaseScore:         0.2,
		PatternIncrement:  0.15,
		RichContextKeys:   5,
		RichContextBonus:  0.1,
		MultiSystemBonus:  0.15,
		CriticalBonus:     0.15,
		ThoroughThreshold: 0.5,
		UrgentOverride:    0.8,
	}
}

type complexityFamily struct {
	name string
	re   *regexp.Regexp
}

var complexityFamilies = []complexityFamily{
	{"multi_step", regexp.MustCompile(`(?i)\b(then|after that|followed by|step[- ]by[- ]step|and also|multiple|batch|bulk|each|all of)\b`)},
	{"cross_system", regexp.MustCompile(`(?i)\b(across|between|sync(hroni[sz]e)?|integrat\w*|migrat\w*|reconcil\w*|cross[- ]\w+)\b`)},
	{"strategic", regexp.MustCompile(`(?i)\b(strateg\w*|forecast\w*|predict\w*|optimi[sz]\w*|plan(ning)?|roadmap|projection|trend\w*)\b`)},
	{"troubleshooting", regexp.MustCompile(`(?i)\b(why|debug\w*|troubleshoot\w*|diagnos\w*|investigat\w*|broken|fail(ed|ing|ure)?|error\w*|not working)\b`)},
	{"analytical", regexp.MustCompile(`(?i)\b(analy[sz]\w*|compar\w*|evaluat\w*|assess\w*|breakdown|insight\w*|correlat\w*)\b`)},
}

var urgencyPattern = regexp.MustCompile(`(?i)\b(urgent\w*|asap|now|immediately|right away|quick(ly)?|emergency)\b`)

// Assessment explains a selector decision.
type Assessment struct {
	Complexity float64     `json:"complexity"`
	Urgent     bool        `json:"urgent"`
	Signals    []string    `json:"signals,omitempty"`
	Tier       domain.Tier `json:"tier"`
}

// ModelSelector chooses a reasoning tier from request text and context.
// It is a pure function of its inputs.
type ModelSelector struct {
	cfg SelectorConfig
}

// NewModelSelector creates a selector; zero-valued configs use the defaults.
func NewModelSelector(cfg SelectorConfig) *ModelSelector {
	if cfg == (SelectorConfig{}) {
		cfg = DefaultSelectorConfig()
	}
	return &ModelSelector{cfg: cfg}
}

// Select returns the tier for the request.
func (s *ModelSelector) Select(request string, reqCtx map[string]any) domain.Tier {
	return s.Assess(request, reqCtx).Tier
}

// Assess scores complexity and urgency and picks the tier.
func (s *ModelSelector) Assess(request string, reqCtx map[string]any) Assessment {
	score := s.cfg.BaseScore
	var signals []string

	for _, fam := range complexityFamilies {
		if fam.re.MatchString(request) {
			score += s.cfg.PatternIncrement
			signals = append(signals, fam.name)
		}
	}
	if len(reqCtx) > s.cfg.RichContextKeys {
		score += s.cfg.RichContextBonus
		signals = append(signals, "rich_context")
	}
	if domain.BoolFlag(reqCtx, domain.CtxMultiSystem) {
		score += s.cfg.MultiSystemBonus
		signals = append(signals, "multi_system")
	}
	if domain.BoolFlag(reqCtx, domain.CtxCriticalOperation) {
		score += s.cfg.CriticalBonus
		signals = append(signals, "critical")
	}
	// Rounded so threshold comparisons are not at the mercy of float drift.
	score = min(math.Round(score*100)/100, 1)

	a := Assessment{
		Complexity: score,
		Urgent:     urgencyPattern.MatchString(request),
		Signals:    signals,
		Tier:       domain.TierFast,
	}
	switch {
	case score > s.cfg.UrgentOverride:
		a.Tier = domain.TierThorough
	case a.Urgent:
		a.Tier = domain.TierFast
	case score >= s.cfg.ThoroughThreshold:
		a.Tier = domain.TierThorough
	}
	return a
}
