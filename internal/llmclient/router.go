package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
)

// Router satisfies schemas.LLMClient and dispatches each request to the
// client registered for its tier. Both tiers may share one client when
// only a single model is configured.
type Router struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// NewRouter creates a router with a client per tier.
func NewRouter(logger *zap.Logger, fast, powerful schemas.LLMClient) (*Router, error) {
	if fast == nil || powerful == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}
	return &Router{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fast,
			schemas.TierPowerful: powerful,
		},
	}, nil
}

// Generate routes by the request's tier, defaulting to the fast tier:
// per-step planning is latency bound, not capability bound.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierFast
	}
	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier %q", tier)
	}
	r.logger.Debug("Routing model request.", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}

// Close closes every distinct underlying client.
func (r *Router) Close() error {
	closed := map[schemas.LLMClient]bool{}
	var firstErr error
	for _, c := range r.clients {
		if closed[c] {
			continue
		}
		closed[c] = true
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
