// Package config defines the typed application configuration and its viper
// wiring. Values resolve with the usual precedence: defaults, then config
// file, then WEBPILOT_* environment variables, then CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root of the application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Runner  RunnerConfig  `mapstructure:"runner" yaml:"runner"`
	Service ServiceConfig `mapstructure:"service" yaml:"service"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the browser process is launched and attached.
type BrowserConfig struct {
	// ExecPath overrides browser binary discovery. Empty means search the
	// usual install locations for the configured kind.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	// StartPort is the first remote-debugging port to try; each failed
	// launch attempt increments it.
	StartPort         int      `mapstructure:"start_port" yaml:"start_port"`
	MaxLaunchAttempts int      `mapstructure:"max_launch_attempts" yaml:"max_launch_attempts"`
	ExtraArgs         []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// NetworkConfig tunes the protocol-level timing behavior.
type NetworkConfig struct {
	// CommandTimeout bounds a single protocol command round trip.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// NavigationTimeout bounds the wait for the page load event.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// SettleDelay is applied after navigation and after clicks so that
	// script-rendered content can populate.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// DiscoveryTimeout bounds the poll of the /json/list endpoint during a
	// single launch attempt.
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout" yaml:"discovery_timeout"`
	// WaitPollInterval is the visibility polling cadence of wait_for.
	WaitPollInterval time.Duration `mapstructure:"wait_poll_interval" yaml:"wait_poll_interval"`
	// TypeCharDelay is the inter-character delay while typing.
	TypeCharDelay time.Duration `mapstructure:"type_char_delay" yaml:"type_char_delay"`
}

// ProviderGemini is the only model provider currently wired in.
const ProviderGemini = "gemini"

// LLMConfig configures the planner's model client.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute rate limits plan calls; zero disables the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// RunnerConfig bounds the step loop.
type RunnerConfig struct {
	// MaxSteps is the hard ceiling on planner iterations per run.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// MaxAttempts is the per-step retry budget.
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	// HTMLBudget truncates the cleaned snapshot handed to the planner.
	HTMLBudget int `mapstructure:"html_budget" yaml:"html_budget"`
}

// ServiceConfig configures the HTTP front end.
type ServiceConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.start_port", 9222)
	v.SetDefault("browser.max_launch_attempts", 5)

	// -- Network --
	v.SetDefault("network.command_timeout", "10s")
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.settle_delay", "2500ms")
	v.SetDefault("network.discovery_timeout", "10s")
	v.SetDefault("network.wait_poll_interval", "500ms")
	v.SetDefault("network.type_char_delay", "50ms")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 30.0)

	// -- Runner --
	v.SetDefault("runner.max_steps", 25)
	v.SetDefault("runner.max_attempts", 3)
	v.SetDefault("runner.retry_backoff", "1s")
	v.SetDefault("runner.html_budget", 15000)

	// -- Service --
	v.SetDefault("service.addr", ":8980")
	v.SetDefault("service.shutdown_timeout", "15s")
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewFromViper(v)
	if err != nil {
		// Defaults must always validate.
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// NewFromViper unmarshals and validates a configuration from viper.
func NewFromViper(v *viper.Viper) (*Config, error) {
	v.BindEnv("llm.api_key", "WEBPILOT_LLM_API_KEY", "GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Browser.StartPort <= 0 || c.Browser.StartPort > 65535 {
		return fmt.Errorf("browser.start_port must be a valid TCP port")
	}
	if c.Browser.MaxLaunchAttempts <= 0 {
		return fmt.Errorf("browser.max_launch_attempts must be positive")
	}
	if c.Network.CommandTimeout <= 0 {
		return fmt.Errorf("network.command_timeout must be a positive duration")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.Runner.MaxSteps <= 0 {
		return fmt.Errorf("runner.max_steps must be positive")
	}
	if c.Runner.MaxAttempts <= 0 {
		return fmt.Errorf("runner.max_attempts must be positive")
	}
	return nil
}
