package llmclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/knrv/webpilot/api/schemas"
)

type stubClient struct {
	name   string
	got    []schemas.GenerationRequest
	closed int
	err    error
}

func (s *stubClient) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.got = append(s.got, req)
	return s.name, s.err
}

func (s *stubClient) Close() error {
	s.closed++
	return nil
}

func TestRouter_DispatchesByTier(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewRouter(zaptest.NewLogger(t), fast, powerful)
	require.NoError(t, err)

	out, err := router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierPowerful})
	require.NoError(t, err)
	assert.Equal(t, "powerful", out)

	out, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", out)
}

func TestRouter_DefaultsToFastTier(t *testing.T) {
	fast := &stubClient{name: "fast"}
	powerful := &stubClient{name: "powerful"}
	router, err := NewRouter(zaptest.NewLogger(t), fast, powerful)
	require.NoError(t, err)

	out, err := router.Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fast", out)
}

func TestRouter_UnknownTier(t *testing.T) {
	router, err := NewRouter(zaptest.NewLogger(t), &stubClient{}, &stubClient{})
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: "telepathic"})
	require.Error(t, err)
}

func TestRouter_RequiresBothClients(t *testing.T) {
	_, err := NewRouter(zaptest.NewLogger(t), nil, &stubClient{})
	require.Error(t, err)
}

func TestRouter_CloseClosesSharedClientOnce(t *testing.T) {
	shared := &stubClient{name: "shared"}
	router, err := NewRouter(zaptest.NewLogger(t), shared, shared)
	require.NoError(t, err)

	require.NoError(t, router.Close())
	assert.Equal(t, 1, shared.closed)
}

func TestRouter_PropagatesClientError(t *testing.T) {
	boom := errors.New("quota exhausted")
	router, err := NewRouter(zaptest.NewLogger(t), &stubClient{err: boom}, &stubClient{})
	require.NoError(t, err)

	_, err = router.Generate(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	assert.ErrorIs(t, err, boom)
}
