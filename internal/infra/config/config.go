package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Poller     PollerConfig     `yaml:"poller"`
	Automation AutomationConfig `yaml:"automation"`
	Store      StoreConfig      `yaml:"store"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// BackendConfig holds backend transport settings.
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PollerConfig holds poll loop limits. Zero values fall back to the
// fixed defaults compiled into the poller.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Inactivity  time.Duration `yaml:"inactivity"`
}

// KindPolicyConfig holds the automation policy for one action kind.
type KindPolicyConfig struct {
	Enabled       bool     `yaml:"enabled"`
	AllowAnything bool     `yaml:"allow_anything"`
	AllowList     []string `yaml:"allow_list"`
	DenyList      []string `yaml:"deny_list"`
}

// AutomationConfig holds per-kind automation policies.
type AutomationConfig struct {
	Edit     KindPolicyConfig `yaml:"edit"`
	Console  KindPolicyConfig `yaml:"console"`
	Terminal KindPolicyConfig `yaml:"terminal"`
	FileRun  KindPolicyConfig `yaml:"file_run"`
}

// StoreConfig holds persistent state store settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// GatewayConfig holds UI gateway settings.
type GatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.conduit. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".conduit")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		Automation: AutomationConfig{
			// Everything requires confirmation until the user opts in.
			Edit:     KindPolicyConfig{},
			Console:  KindPolicyConfig{},
			Terminal: KindPolicyConfig{},
			FileRun:  KindPolicyConfig{},
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "state.db"),
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    ":8090",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is
// not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides lets secrets come from the environment rather than
// the config file.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONDUIT_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("CONDUIT_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("CONDUIT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}
