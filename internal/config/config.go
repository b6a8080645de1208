// Package config defines all configuration for the platform. Config is
// loaded from a YAML file (default: configs/config.yaml) with overrides
// via KALSHI_* environment variables; credentials additionally honor the
// bare variable names KEY_ID, PRIVATE_KEY_PATH, PRIVATE_KEY_B64,
// RESEARCH_API_KEY, SYNTHESIZER_BACKEND, and ENVIRONMENT so the platform
// can run with no config file at all.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// API base URLs selected by Environment.
const (
	demoBaseURL = "https://demo-api.kalshi.co"
	prodBaseURL = "https://api.elections.kalshi.com"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure. Loaded once at startup and immutable afterwards.
type Config struct {
	Environment string            `mapstructure:"environment"` // demo | prod
	DBPath      string            `mapstructure:"db_path"`
	Tier        string            `mapstructure:"tier"` // rate-limit tier
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Research    ResearchConfig    `mapstructure:"research"`
	Synth       SynthConfig       `mapstructure:"synth"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CredentialsConfig holds the API access key and the RSA private key used
// for request signing. Exactly one of PrivateKeyPath or PrivateKeyB64 is
// needed; leaving all fields empty yields a public-data-only client.
type CredentialsConfig struct {
	KeyID          string `mapstructure:"key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	PrivateKeyB64  string `mapstructure:"private_key_b64"`
}

// Configured reports whether authenticated access is possible.
func (c CredentialsConfig) Configured() bool {
	return c.KeyID != "" && (c.PrivateKeyPath != "" || c.PrivateKeyB64 != "")
}

// IngestConfig tunes the periodic collection scheduler.
type IngestConfig struct {
	Period                 time.Duration `mapstructure:"period"`
	Stages                 []string      `mapstructure:"stages"` // empty = all stages
	MaxPages               int           `mapstructure:"max_pages"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

// AgentConfig tunes the research orchestrator.
//
//   - BudgetUSD: hard per-run dollar cap; steps that would exceed it never start.
//   - Mode: requested research depth (fast | standard | deep), downshifted
//     when the budget cannot cover it.
//   - TopK: page contents fetched in standard mode.
type AgentConfig struct {
	BudgetUSD    float64       `mapstructure:"budget_usd"`
	Mode         string        `mapstructure:"mode"`
	TopK         int           `mapstructure:"top_k"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollDeadline time.Duration `mapstructure:"poll_deadline"`
}

// ResearchConfig holds the research provider credential and response cache.
type ResearchConfig struct {
	APIKey   string `mapstructure:"api_key"`
	CacheDir string `mapstructure:"cache_dir"`
}

// SynthConfig selects the synthesizer backend.
// Backend mock needs no credentials; provider-a, provider-b, and local are
// HTTP structured-output endpoints.
type SynthConfig struct {
	Backend     string  `mapstructure:"backend"`
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	CostPerCall float64 `mapstructure:"cost_per_call"`
}

// AlertsConfig tunes the alert monitor loop.
type AlertsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BaseURL returns the API root for the configured environment.
func (c *Config) BaseURL() string {
	if c.Environment == "prod" {
		return prodBaseURL
	}
	return demoBaseURL
}

// Load reads config from a YAML file with env var overrides. A missing
// file is not an error; defaults plus environment variables suffice.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("KALSHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive and environment-selection fields from the bare
	// variable names.
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Environment = env
	}
	if id := os.Getenv("KEY_ID"); id != "" {
		cfg.Credentials.KeyID = id
	}
	if p := os.Getenv("PRIVATE_KEY_PATH"); p != "" {
		cfg.Credentials.PrivateKeyPath = p
	}
	if b := os.Getenv("PRIVATE_KEY_B64"); b != "" {
		cfg.Credentials.PrivateKeyB64 = b
	}
	if k := os.Getenv("RESEARCH_API_KEY"); k != "" {
		cfg.Research.APIKey = k
	}
	if b := os.Getenv("SYNTHESIZER_BACKEND"); b != "" {
		cfg.Synth.Backend = b
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "demo")
	v.SetDefault("db_path", "kalshi-edge.db")
	v.SetDefault("tier", "basic")
	v.SetDefault("ingest.period", "5m")
	v.SetDefault("ingest.max_consecutive_failures", 5)
	v.SetDefault("agent.budget_usd", 0.25)
	v.SetDefault("agent.mode", "standard")
	v.SetDefault("agent.top_k", 3)
	v.SetDefault("agent.poll_interval", "5s")
	v.SetDefault("agent.poll_deadline", "5m")
	v.SetDefault("research.cache_dir", ".cache/research")
	v.SetDefault("synth.backend", "mock")
	v.SetDefault("alerts.poll_interval", "1m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.Environment {
	case "demo", "prod":
	default:
		return fmt.Errorf("environment must be demo or prod, got %q", c.Environment)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.Tier {
	case "basic", "advanced", "premier", "prime":
	default:
		return fmt.Errorf("tier must be one of: basic, advanced, premier, prime")
	}
	if c.Credentials.PrivateKeyPath != "" && c.Credentials.PrivateKeyB64 != "" {
		return fmt.Errorf("credentials: set private_key_path or private_key_b64, not both")
	}
	anyCred := c.Credentials.KeyID != "" || c.Credentials.PrivateKeyPath != "" || c.Credentials.PrivateKeyB64 != ""
	if anyCred && !c.Credentials.Configured() {
		return fmt.Errorf("credentials: key_id and a private key must be set together")
	}
	if c.Ingest.Period <= 0 {
		return fmt.Errorf("ingest.period must be > 0")
	}
	if c.Ingest.MaxPages < 0 {
		return fmt.Errorf("ingest.max_pages must be >= 0")
	}
	if c.Agent.BudgetUSD < 0 {
		return fmt.Errorf("agent.budget_usd must be >= 0")
	}
	switch c.Agent.Mode {
	case "fast", "standard", "deep":
	default:
		return fmt.Errorf("agent.mode must be one of: fast, standard, deep")
	}
	if c.Agent.TopK <= 0 {
		return fmt.Errorf("agent.top_k must be > 0")
	}
	switch c.Synth.Backend {
	case "mock", "provider-a", "provider-b", "local":
	default:
		return fmt.Errorf("synth.backend must be one of: mock, provider-a, provider-b, local")
	}
	if c.Synth.Backend != "mock" && c.Synth.Backend != "local" && c.Synth.APIKey == "" {
		return fmt.Errorf("synth.api_key is required for backend %q", c.Synth.Backend)
	}
	return nil
}
