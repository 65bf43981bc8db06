package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/internal/config"
	"github.com/knrv/webpilot/internal/htmlclean"
	"github.com/knrv/webpilot/internal/llmclient"
	"github.com/knrv/webpilot/internal/planner"
	"github.com/knrv/webpilot/internal/runner"
)

// buildDriver assembles the full stack for executing instructions. The
// returned cleanup closes the model client.
func buildDriver(cfg *config.Config, logger *zap.Logger) (*runner.Driver, func(), error) {
	client, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing LLM client: %w", err)
	}

	// A single configured model serves both tiers.
	router, err := llmclient.NewRouter(logger, client, client)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	p := planner.New(router, cfg.LLM, cfg.Runner.HTMLBudget, logger)
	r := runner.New(p, htmlclean.New(), cfg.Runner, logger)
	driver := runner.NewDriver(cfg, r, logger)

	cleanup := func() {
		if err := router.Close(); err != nil {
			logger.Warn("LLM client close failed.", zap.Error(err))
		}
	}
	return driver, cleanup, nil
}
