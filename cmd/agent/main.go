package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storefront-agent/internal/adapter/gateway"
	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
	"storefront-agent/internal/infra/logger"
	"storefront-agent/internal/infra/middleware"
	"storefront-agent/internal/infra/tracer"
)

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nRun 'storefront-agent --help' for usage information.\n", err)
		os.Exit(2)
	}

	switch opts.command {
	case "help":
		showUsage(os.Stdout)
		return
	case "doctor":
		err = runDoctor(opts, os.Stdout)
	case "ask":
		err = runAsk(opts, os.Stdout)
	case "route":
		err = runRoute(opts, os.Stdout)
	default:
		err = runServe(opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", opts.command, err)
		os.Exit(1)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `storefront-agent - resilient agent routing for an e-commerce storefront

USAGE:
    storefront-agent [COMMAND] [FLAGS] [TEXT]

COMMANDS:
    serve       Run the HTTP gateway (default)
    ask TEXT    Route TEXT to the best agent, process it and print the result
    route TEXT  Print the routing decision for TEXT without processing it
    doctor      Run health checks on config, store and agents

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)
    --agent NAME     Process with NAME instead of routing (ask only)
    --no-cache       Bypass the response cache (ask only)

CONFIGURATION:
    Environment: STOREFRONT_* variables override config
    Secrets:     enc: values are decrypted with STOREFRONT_CONFIG_KEY

EXAMPLES:
    storefront-agent
    storefront-agent ask "refund payment ORD-1002"
    storefront-agent ask --agent content "draft a page about returns"
    storefront-agent route "which products are low on stock?"`)
}

// cliOptions holds the parsed command line.
type cliOptions struct {
	command    string
	configPath string
	agent      string
	noCache    bool
	text       string
}

// parseArgs extracts the command, flags and free text from args.
func parseArgs(args []string) (cliOptions, error) {
	opts := cliOptions{command: "serve", configPath: configPathFromEnv()}
	var words []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-h" || arg == "--help" || arg == "help":
			opts.command = "help"
			return opts, nil
		case arg == "--config" || arg == "--agent":
			if i+1 >= len(args) {
				return opts, fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			if arg == "--config" {
				opts.configPath = args[i]
			} else {
				opts.agent = args[i]
			}
		case strings.HasPrefix(arg, "--config="):
			opts.configPath = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "--agent="):
			opts.agent = strings.TrimPrefix(arg, "--agent=")
		case arg == "--no-cache":
			opts.noCache = true
		case strings.HasPrefix(arg, "-"):
			return opts, fmt.Errorf("unknown flag: %s", arg)
		default:
			words = append(words, arg)
		}
	}

	if len(words) > 0 {
		switch words[0] {
		case "serve", "doctor", "ask", "route":
			opts.command = words[0]
			words = words[1:]
		default:
			return opts, fmt.Errorf("unknown command: %s", words[0])
		}
	}
	opts.text = strings.TrimSpace(strings.Join(words, " "))

	if (opts.command == "ask" || opts.command == "route") && opts.text == "" {
		return opts, fmt.Errorf("%s requires request text", opts.command)
	}
	return opts, nil
}

func configPathFromEnv() string {
	if p := os.Getenv("STOREFRONT_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// bootstrap loads config and builds the logger and the wired app.
// The returned cleanup closes everything in reverse order.
func bootstrap(ctx context.Context, opts cliOptions) (*app, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		tracerShutdown(ctx)
		logCloser()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Error("close store", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerShutdown(shutdownCtx)
		logCloser()
	}
	return a, cleanup, nil
}

func runServe(opts cliOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.cfg.Gateway.Enabled {
		return errors.New("gateway is disabled; enable gateway.enabled or use the ask command")
	}

	deps := gateway.Deps{
		Service: a.router,
		Events:  a.events,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.Gateway.RateLimit.RequestsPerSecond,
			Burst:             a.cfg.Gateway.RateLimit.Burst,
		},
		Logger: a.log,
	}
	if len(a.cfg.Gateway.Auth.Tokens) > 0 {
		deps.Auth = gateway.NewStaticTokenAuth(a.cfg.Gateway.Auth.Tokens)
	}
	if a.cfg.Metrics.Enabled {
		deps.Gatherer = a.registry
		deps.MetricsPath = a.cfg.Metrics.Path
	}

	names := make([]string, 0)
	for _, ag := range a.router.Agents() {
		names = append(names, ag.Name())
	}
	a.log.Info("storefront-agent starting",
		"provider", a.cfg.LLM.DefaultProvider,
		"agents", strings.Join(names, ","),
		"default_agent", a.router.DefaultAgent(),
		"auth", deps.Auth != nil,
		"store", a.cfg.Store.Path,
	)

	srv := gateway.NewServer(a.cfg.Gateway.Addr, deps)
	return srv.Start(ctx)
}

func runAsk(opts cliOptions, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, cleanup, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := ask(ctx, a, opts)
	if err != nil {
		return err
	}
	if err := printJSON(out, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("request failed: %s", result.Error)
	}
	return nil
}

func ask(ctx context.Context, a *app, opts cliOptions) (domain.ProcessingResult, error) {
	var reqCtx map[string]any
	if opts.noCache {
		reqCtx = map[string]any{domain.CtxNoCache: true}
	}
	if opts.agent != "" {
		return a.router.ProcessWith(ctx, opts.agent, opts.text, reqCtx)
	}
	return a.router.Route(ctx, opts.text, reqCtx), nil
}

func runRoute(opts cliOptions, out io.Writer) error {
	a, cleanup, err := bootstrap(context.Background(), opts)
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(out, a.router.SelectBestAgent(opts.text, nil))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
