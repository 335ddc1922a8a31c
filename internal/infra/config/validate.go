package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"storefront-agent/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match ErrConfigLoad.
func (v *ValidationError) Unwrap() error { return domain.ErrConfigLoad }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateLLM(cfg, ve)
	validateResilience(cfg, ve)
	validateCache(cfg, ve)
	validateRouter(cfg, ve)
	validateAgents(cfg, ve)
	validateStore(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "text" && f != "json" {
		ve.Add("logger.format %q is invalid (want: text, json)", f)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	if cfg.Tracer.Exporter != "stdout" && cfg.Tracer.Exporter != "noop" {
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
}

var validTiers = map[string]bool{
	string(domain.TierFast):     true,
	string(domain.TierThorough): true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must configure at least one provider")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, anthropic, ollama)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via STOREFRONT_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envName(p.Name))
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
		if p.ConnTimeout < 0 || p.RespTimeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeouts must be >= 0", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	for tier, name := range cfg.LLM.Tiers {
		if !validTiers[tier] {
			ve.Add("llm.tiers: unknown tier %q (want: fast, thorough)", tier)
		}
		if !seen[name] {
			ve.Add("llm.tiers.%s: provider %q is not configured", tier, name)
		}
	}
	if cfg.LLM.Failover.Enabled {
		if len(cfg.LLM.Failover.Fallbacks) == 0 {
			ve.Add("llm.failover.fallbacks must not be empty when failover is enabled")
		}
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: provider %q is not configured", name)
			}
		}
	}
}

func validateResilience(cfg *Config, ve *ValidationError) {
	r := cfg.Resilience
	if r.MaxAttempts <= 0 {
		ve.Add("resilience.max_attempts must be > 0")
	}
	if r.BaseDelay <= 0 {
		ve.Add("resilience.base_delay must be > 0")
	}
	if r.MaxDelay < r.BaseDelay {
		ve.Add("resilience.max_delay must be >= base_delay")
	}
	if r.Jitter < 0 {
		ve.Add("resilience.jitter must be >= 0")
	}
	if r.AttemptTimeout <= 0 {
		ve.Add("resilience.attempt_timeout must be > 0")
	}
	if r.FailureThreshold <= 0 {
		ve.Add("resilience.failure_threshold must be > 0")
	}
	if r.Cooldown <= 0 {
		ve.Add("resilience.cooldown must be > 0")
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	if cfg.Cache.Capacity <= 0 {
		ve.Add("cache.capacity must be > 0")
	}
	if cfg.Cache.TTL <= 0 {
		ve.Add("cache.ttl must be > 0")
	}
}

func validateRouter(cfg *Config, ve *ValidationError) {
	if cfg.Router.Threshold < 0 || cfg.Router.Threshold > 1 {
		ve.Add("router.threshold must be between 0 and 1")
	}
}

var validPromptKinds = map[string]bool{
	"":                    true,
	domain.PromptGeneral:  true,
	domain.PromptPayments: true,
	domain.PromptContent:  true,
	domain.PromptCatalog:  true,
}

// ValidToolsets lists the toolset names an agent instance may reference.
var ValidToolsets = map[string]bool{
	"catalog":  true,
	"payments": true,
	"content":  true,
	"data":     true,
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if len(cfg.Agents.Instances) == 0 {
		ve.Add("agents.instances must define at least one agent")
		return
	}

	seen := make(map[string]bool)
	for i, inst := range cfg.Agents.Instances {
		if inst.Name == "" {
			ve.Add("agents.instances[%d].name must not be empty", i)
			continue
		}
		if seen[inst.Name] {
			ve.Add("agents.instances[%d]: duplicate agent name %q", i, inst.Name)
		}
		seen[inst.Name] = true

		if !validPromptKinds[inst.PromptKind] {
			ve.Add("agents.instances[%d] (%s): prompt_kind %q is invalid", i, inst.Name, inst.PromptKind)
		}
		for _, pat := range inst.Patterns {
			if _, err := regexp.Compile(pat); err != nil {
				ve.Add("agents.instances[%d] (%s): pattern %q: %v", i, inst.Name, pat, err)
			}
		}
		for _, ts := range inst.Tools {
			if !ValidToolsets[ts] {
				ve.Add("agents.instances[%d] (%s): unknown toolset %q", i, inst.Name, ts)
			}
		}
		if inst.MaxRetries < 0 || inst.FailureThreshold < 0 || inst.CacheCapacity < 0 {
			ve.Add("agents.instances[%d] (%s): overrides must be >= 0", i, inst.Name)
		}
	}

	if cfg.Router.DefaultAgent != "" && !seen[cfg.Router.DefaultAgent] {
		ve.Add("router.default_agent %q does not match any agent instance", cfg.Router.DefaultAgent)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		ve.Add("gateway.rate_limit values must be >= 0")
	}
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d] (%s): token must not be empty", i, tok.Name)
		}
	}
}
