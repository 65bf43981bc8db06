package observability

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/knrv/webpilot/internal/config"
)

// memorySink collects log output for assertions.
type memorySink struct {
	strings.Builder
}

func (s *memorySink) Sync() error { return nil }

func TestInitialize_JSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "json",
		ServiceName: "webpilot-test",
	}, zapcore.Lock(zapcore.AddSync(sink)))

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("hello", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	out := sink.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"k":"v"`)
	assert.Contains(t, out, "webpilot-test")
}

func TestInitialize_RunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memorySink{}
	second := &memorySink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.Lock(zapcore.AddSync(first)))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.Lock(zapcore.AddSync(second)))

	GetLogger().Info("only once")
	require.NoError(t, GetLogger().Sync())

	assert.Contains(t, first.String(), "only once")
	assert.Empty(t, second.String())
}

func TestGetLogger_FallbackBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	// The fallback must be usable without panicking.
	logger.Debug("fallback logger works")
}

func TestLevelParsing_BadLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(config.LoggerConfig{Level: "nonsense", Format: "json"}, zapcore.Lock(zapcore.AddSync(sink)))

	GetLogger().Debug("should be filtered")
	GetLogger().Info("should appear")
	require.NoError(t, GetLogger().Sync())

	assert.NotContains(t, sink.String(), "should be filtered")
	assert.Contains(t, sink.String(), "should appear")
}

func TestZaptestCompatibility(t *testing.T) {
	// Components take *zap.Logger directly; zaptest loggers must satisfy
	// that without touching the global.
	logger := zaptest.NewLogger(t)
	logger.Info("component-scoped logger")
}
