package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"storefront-agent/internal/adapter/llm"
	"storefront-agent/internal/adapter/store"
	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
	"storefront-agent/internal/infra/logger"
)

const doctorTimeout = 10 * time.Second

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}

// runDoctor executes all health checks and reports results.
func runDoctor(opts cliOptions, out io.Writer) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(opts.configPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(opts.configPath, cfgErr)},
		{Name: "LLM API keys", Fn: checkLLMAPIKeys},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "Store", Fn: checkStore},
		{Name: "Agents", Fn: checkAgents},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Fprintln(out, "storefront-agent doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded cleanly.
// A missing file is a warning because the defaults still apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the STOREFRONT_* environment variables",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkLLMAPIKeys verifies hosted providers have an API key.
func checkLLMAPIKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var missing, local []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.Type == "ollama":
			local = append(local, p.Name)
		case p.APIKey == "":
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("missing API keys for: %s", strings.Join(missing, ", ")),
			Fix:     "Set STOREFRONT_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	msg := "API keys configured for all hosted providers"
	if len(local) == len(cfg.LLM.Providers) {
		msg = "only local providers configured: " + strings.Join(local, ", ")
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

// checkLLMConnectivity pings every provider that supports it.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	var reachable, unreachable, skipped []string
	for _, pc := range cfg.LLM.Providers {
		p, err := llm.NewProvider(pc, logger.Discard())
		if err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%v)", pc.Name, err))
			continue
		}
		pinger, ok := p.(domain.Pinger)
		if !ok {
			skipped = append(skipped, pc.Name)
			continue
		}
		start := time.Now()
		if err := pinger.Ping(ctx); err != nil {
			unreachable = append(unreachable, fmt.Sprintf("%s (%v)", pc.Name, err))
			continue
		}
		reachable = append(reachable, fmt.Sprintf("%s %dms", pc.Name, time.Since(start).Milliseconds()))
	}

	switch {
	case len(unreachable) > 0 && len(reachable) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: "unreachable: " + strings.Join(unreachable, "; "),
			Fix:     "Check base_url, network access and that the model is pulled",
		}
	case len(unreachable) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("reachable: %s; unreachable: %s", strings.Join(reachable, ", "), strings.Join(unreachable, "; ")),
		}
	case len(reachable) == 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: "no provider supports a connectivity check: " + strings.Join(skipped, ", "),
		}
	}
	return CheckResult{Status: StatusPass, Message: "reachable: " + strings.Join(reachable, ", ")}
}

// checkStore opens the store and reports its contents.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.Store.Path, err),
			Fix:     "Check store.path and directory permissions",
		}
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	stats, err := st.Stats(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("query store: %v", err)}
	}
	return CheckResult{
		Status: StatusPass,
		Message: fmt.Sprintf("%s: %d products, %d payments, %d pages",
			cfg.Store.Path, stats.Products, stats.Payments, stats.Pages),
	}
}

// checkAgents builds every agent and runs its health check.
func checkAgents(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger.Discard())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	defer a.Close()

	var impaired []string
	statuses := make([]string, 0)
	for _, ag := range a.router.Agents() {
		h := ag.HealthCheck(ctx)
		statuses = append(statuses, fmt.Sprintf("%s=%s", h.Agent, h.Status))
		if h.Status != domain.HealthHealthy {
			impaired = append(impaired, h.Agent)
		}
	}
	msg := strings.Join(statuses, ", ")

	if len(impaired) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: msg,
			Fix:     "Degraded agents cannot reach their reasoning service; see LLM connectivity",
		}
	}
	return CheckResult{Status: StatusPass, Message: msg}
}

// checkGatewayAddr verifies the gateway can bind its address.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		var opErr *net.OpError
		msg := err.Error()
		if errors.As(err, &opErr) {
			msg = opErr.Err.Error()
		}
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s is not available: %s", cfg.Gateway.Addr, msg),
			Fix:     "Stop the process using the port or change gateway.addr",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is free", cfg.Gateway.Addr)}
}
