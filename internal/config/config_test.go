package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 9222, cfg.Browser.StartPort)
	assert.Equal(t, 5, cfg.Browser.MaxLaunchAttempts)
	assert.Equal(t, 10*time.Second, cfg.Network.CommandTimeout)
	assert.Equal(t, 30*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Network.SettleDelay)
	assert.Equal(t, 25, cfg.Runner.MaxSteps)
	assert.Equal(t, 3, cfg.Runner.MaxAttempts)
}

func TestNewDefaultConfig_Deterministic(t *testing.T) {
	a := NewDefaultConfig()
	b := NewDefaultConfig()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("default configs differ (-a +b):\n%s", diff)
	}
}

func TestNewFromViper_Overrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.start_port", 9333)
	v.Set("network.navigation_timeout", "45s")
	v.Set("runner.max_steps", 10)

	cfg, err := NewFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9333, cfg.Browser.StartPort)
	assert.Equal(t, 45*time.Second, cfg.Network.NavigationTimeout)
	assert.Equal(t, 10, cfg.Runner.MaxSteps)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad start port", func(c *Config) { c.Browser.StartPort = 0 }},
		{"no launch attempts", func(c *Config) { c.Browser.MaxLaunchAttempts = 0 }},
		{"zero command timeout", func(c *Config) { c.Network.CommandTimeout = 0 }},
		{"zero nav timeout", func(c *Config) { c.Network.NavigationTimeout = 0 }},
		{"zero step budget", func(c *Config) { c.Runner.MaxSteps = 0 }},
		{"zero attempts", func(c *Config) { c.Runner.MaxAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
