package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/knrv/webpilot/internal/config"
)

func TestInitializeConfig_DefaultsResolve(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig(rootCmd))

	cfg, err := config.NewFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 9222, cfg.Browser.StartPort)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 25, cfg.Runner.MaxSteps)
	assert.Equal(t, ":8980", cfg.Service.Addr)
}

func TestInitializeConfig_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("WEBPILOT_RUNNER_MAX_STEPS", "7")

	require.NoError(t, initializeConfig(rootCmd))

	cfg, err := config.NewFromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Runner.MaxSteps)
}

func TestRunCommand_RequiresInstruction(t *testing.T) {
	cmd := newRunCmd()
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestBuildDriver_RequiresAPIKey(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.LLM.APIKey = ""

	_, _, err := buildDriver(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestBuildDriver_Succeeds(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.LLM.APIKey = "test-key"

	driver, cleanup, err := buildDriver(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, driver)
	cleanup()
}
