package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"storefront-agent/internal/domain"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.yaml"

// Config is the root configuration of the storefront agent service.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LLM        LLMConfig        `yaml:"llm"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Cache      CacheConfig      `yaml:"cache"`
	Selector   SelectorConfig   `yaml:"selector"`
	Router     RouterConfig     `yaml:"router"`
	Agents     AgentsConfig     `yaml:"agents"`
	Store      StoreConfig      `yaml:"store"`
	Gateway    GatewayConfig    `yaml:"gateway"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// FailoverConfig holds reasoning-service failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds reasoning-service provider settings.
type LLMConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	Providers       []ProviderConfig `yaml:"providers"`
	Failover        FailoverConfig   `yaml:"failover"`
	// Tiers maps a tier ("fast", "thorough") to a provider name. Unmapped
	// tiers use the default provider.
	Tiers map[string]string `yaml:"tiers,omitempty"`
}

// PoolConfig holds HTTP connection pool settings for providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single reasoning-service provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// ResilienceConfig holds the retry and breaker defaults applied to agents
// that do not override them.
type ResilienceConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Jitter           time.Duration `yaml:"jitter"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// CacheConfig holds response cache defaults.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// SelectorConfig holds the model selector weights.
type SelectorConfig struct {
	BaseScore         float64 `yaml:"base_score"`
	PatternIncrement  float64 `yaml:"pattern_increment"`
	RichContextKeys   int     `yaml:"rich_context_keys"`
	RichContextBonus  float64 `yaml:"rich_context_bonus"`
	MultiSystemBonus  float64 `yaml:"multi_system_bonus"`
	CriticalBonus     float64 `yaml:"critical_bonus"`
	ThoroughThreshold float64 `yaml:"thorough_threshold"`
	UrgentOverride    float64 `yaml:"urgent_override"`
}

// RouterConfig holds agent routing settings.
type RouterConfig struct {
	DefaultAgent string  `yaml:"default_agent"`
	Threshold    float64 `yaml:"threshold"`
}

// AgentsConfig lists the agent instances to build.
type AgentsConfig struct {
	Instances []AgentInstanceConfig `yaml:"instances"`
}

// AgentInstanceConfig defines a single agent instance. Zero-valued
// resilience and cache fields inherit the global defaults.
type AgentInstanceConfig struct {
	domain.AgentConfig `yaml:",inline"`
	// Tools names the toolsets the agent may use: catalog, payments,
	// content, data.
	Tools []string `yaml:"tools,omitempty"`
}

// StoreConfig holds storefront data store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
	Seed bool   `yaml:"seed"`
}

// GatewayConfig holds HTTP API settings.
type GatewayConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
}

// RateLimitConfig configures the per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig holds gateway authentication settings. An empty token list
// disables authentication.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway bearer token.
type TokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// defaultDataDir returns the persistent data directory under $HOME/.storefront-agent.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".storefront-agent")
}

// Defaults returns a Config with sensible defaults: a local Ollama provider
// and the three storefront agents.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "stdout",
			ServiceName: "storefront-agent",
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		LLM: LLMConfig{
			DefaultProvider: "ollama",
			Providers: []ProviderConfig{{
				Name:        "ollama",
				Type:        "ollama",
				BaseURL:     "http://localhost:11434",
				Model:       "llama3.2",
				ConnTimeout: 10 * time.Second,
				RespTimeout: 60 * time.Second,
			}},
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      3,
			BaseDelay:        time.Second,
			MaxDelay:         10 * time.Second,
			Jitter:           time.Second,
			AttemptTimeout:   30 * time.Second,
			FailureThreshold: 5,
			Cooldown:         60 * time.Second,
		},
		Cache: CacheConfig{
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Selector: SelectorConfig{
			BaseScore:         0.2,
			PatternIncrement:  0.15,
			RichContextKeys:   5,
			RichContextBonus:  0.1,
			MultiSystemBonus:  0.15,
			CriticalBonus:     0.15,
			ThoroughThreshold: 0.5,
			UrgentOverride:    0.8,
		},
		Router: RouterConfig{
			DefaultAgent: "catalog",
			Threshold:    0.6,
		},
		Agents: AgentsConfig{
			Instances: defaultAgents(),
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "storefront.db"),
			Seed: true,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
	}
}

func defaultAgents() []AgentInstanceConfig {
	return []AgentInstanceConfig{
		{
			AgentConfig: domain.AgentConfig{
				Name:           "catalog",
				Specialization: "product catalog and inventory management",
				Keywords:       []string{"product", "catalog", "inventory", "stock", "price", "sku", "variant"},
				Patterns:       []string{`\bsku[- ]?\w+`, `(add|update|remove) (a |the )?product`},
				Priority:       2,
				PromptKind:     domain.PromptCatalog,
			},
			Tools: []string{"catalog", "data"},
		},
		{
			AgentConfig: domain.AgentConfig{
				Name:           "payments",
				Specialization: "payments, refunds and billing",
				Keywords:       []string{"payment", "refund", "charge", "invoice", "billing", "transaction"},
				Patterns:       []string{`refund (order|payment) #?\w+`},
				Priority:       1,
				PromptKind:     domain.PromptPayments,
			},
			Tools: []string{"payments", "data"},
		},
		{
			AgentConfig: domain.AgentConfig{
				Name:           "content",
				Specialization: "storefront pages, blog posts and SEO content",
				Keywords:       []string{"page", "blog", "post", "content", "publish", "seo", "banner"},
				Patterns:       []string{`(write|draft|publish) (a |the )?(page|post|article)`},
				Priority:       3,
				PromptKind:     domain.PromptContent,
			},
			Tools: []string{"content", "data"},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, domain.WrapOp("config.Load", fmt.Errorf("%w: read config: %v", domain.ErrConfigLoad, err))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.WrapOp("config.Load", fmt.Errorf("%w: parse config: %v", domain.ErrConfigLoad, err))
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("STOREFRONT_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps STOREFRONT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOREFRONT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("STOREFRONT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("STOREFRONT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("STOREFRONT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("STOREFRONT_TRACER_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Tracer.SampleRatio = f
		}
	}
	if v := os.Getenv("STOREFRONT_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}

	if v := os.Getenv("STOREFRONT_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("STOREFRONT_LLM_FAILOVER_FALLBACKS"); v != "" {
		cfg.LLM.Failover.Enabled = true
		cfg.LLM.Failover.Fallbacks = splitAndTrim(v, ",")
	}
	// Per-provider overrides: STOREFRONT_LLM_PROVIDER_<NAME>_{API_KEY,MODEL,BASE_URL}
	for i := range cfg.LLM.Providers {
		prefix := "STOREFRONT_LLM_PROVIDER_" + envName(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
		if v := os.Getenv(prefix + "_MODEL"); v != "" {
			cfg.LLM.Providers[i].Model = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			cfg.LLM.Providers[i].BaseURL = v
		}
	}

	if v := os.Getenv("STOREFRONT_RESILIENCE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Resilience.MaxAttempts = n
		}
	}
	if v := os.Getenv("STOREFRONT_RESILIENCE_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Resilience.AttemptTimeout = d
		}
	}
	if v := os.Getenv("STOREFRONT_RESILIENCE_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Resilience.FailureThreshold = n
		}
	}
	if v := os.Getenv("STOREFRONT_RESILIENCE_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Resilience.Cooldown = d
		}
	}

	if v := os.Getenv("STOREFRONT_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("STOREFRONT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("STOREFRONT_ROUTER_DEFAULT_AGENT"); v != "" {
		cfg.Router.DefaultAgent = v
	}
	if v := os.Getenv("STOREFRONT_ROUTER_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Router.Threshold = f
		}
	}

	if v := os.Getenv("STOREFRONT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	if v := os.Getenv("STOREFRONT_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("STOREFRONT_GATEWAY_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Gateway.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("STOREFRONT_GATEWAY_AUTH_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Name: "env", Token: v})
	}
}

// envName upper-cases a provider name for use in an env var key.
func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in provider API keys and gateway
// tokens and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrDecryption, err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
