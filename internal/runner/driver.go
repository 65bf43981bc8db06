package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/browser/cdp"
	"github.com/knrv/webpilot/internal/browser/launcher"
	"github.com/knrv/webpilot/internal/browser/session"
	"github.com/knrv/webpilot/internal/config"
)

// Driver owns the whole lifecycle of a run: launch a browser, attach to
// its first page target, drive the step loop, tear everything down.
// Each Execute call gets a fresh browser so runs never share state.
type Driver struct {
	cfg    *config.Config
	runner *Runner
	logger *zap.Logger
}

func NewDriver(cfg *config.Config, runner *Runner, logger *zap.Logger) *Driver {
	return &Driver{cfg: cfg, runner: runner, logger: logger.Named("driver")}
}

// Execute runs one instruction end to end. Infrastructure failures
// before the step loop are reported as an error-status result so
// callers get a uniform shape either way.
func (d *Driver) Execute(ctx context.Context, instruction string) schemas.RunResult {
	l := launcher.New(d.cfg.Browser, d.cfg.Network, d.logger)
	browser, err := l.Launch(ctx, schemas.BrowserChrome)
	if err != nil {
		return errorResult(fmt.Errorf("launching browser: %w", err))
	}
	defer browser.Kill()

	wsURL, err := browser.FirstPageTarget()
	if err != nil {
		return errorResult(fmt.Errorf("selecting page target: %w", err))
	}

	conn, err := cdp.Dial(ctx, wsURL, d.cfg.Network.CommandTimeout, d.logger)
	if err != nil {
		return errorResult(fmt.Errorf("connecting to target: %w", err))
	}

	sess, err := session.Attach(ctx, conn, d.cfg.Network, d.logger)
	if err != nil {
		conn.Close()
		return errorResult(fmt.Errorf("attaching session: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			d.logger.Debug("Session close failed.", zap.Error(err))
		}
	}()

	return d.runner.Run(ctx, sess, instruction)
}

func errorResult(err error) schemas.RunResult {
	return schemas.RunResult{
		Status:  schemas.StatusError,
		Message: err.Error(),
	}
}
