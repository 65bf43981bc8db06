// Package runner executes planner steps against a live page until the
// instruction completes, fails, or the step budget runs out.
package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
)

// defaultWaitTimeout bounds a wait step whose value carries no usable
// seconds count.
const defaultWaitTimeout = 10 * time.Second

// Page is the per-run surface the runner drives. *session.Session
// satisfies it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	CurrentURL() string
	Click(ctx context.Context, target schemas.ElementTarget) error
	Type(ctx context.Context, target schemas.ElementTarget, text string) error
	PressEnter(ctx context.Context, target schemas.ElementTarget) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	ExtractText(ctx context.Context, target schemas.ElementTarget) (string, error)
}

// Runner is the step loop. It owns no browser state; every run receives
// its page explicitly.
type Runner struct {
	planner schemas.Planner
	cleaner schemas.Cleaner
	cfg     config.RunnerConfig
	logger  *zap.Logger

	// sleep covers retry backoff and timed wait steps; tests swap it
	// out to avoid real pauses.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(planner schemas.Planner, cleaner schemas.Cleaner, cfg config.RunnerConfig, logger *zap.Logger) *Runner {
	return &Runner{
		planner: planner,
		cleaner: cleaner,
		cfg:     cfg,
		logger:  logger.Named("runner"),
		sleep:   sleepCtx,
	}
}

// Run drives page until the planner reports completion or a terminal
// condition is hit. It always returns a result; errors are folded into
// the result's status and message.
func (r *Runner) Run(ctx context.Context, page Page, instruction string) schemas.RunResult {
	result := schemas.RunResult{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", result.RunID))
	logger.Info("Starting run.", zap.String("instruction", instruction))

	remaining := instruction
	anyFailed := false

	for stepNum := 0; ; stepNum++ {
		if err := ctx.Err(); err != nil {
			result.Status = schemas.StatusError
			result.Message = fmt.Sprintf("run canceled: %v", err)
			return result
		}
		if stepNum >= r.cfg.MaxSteps {
			result.Status = schemas.StatusStepBudgetExceeded
			result.Message = fmt.Sprintf("step budget of %d exhausted before completion", r.cfg.MaxSteps)
			logger.Warn("Step budget exhausted.", zap.Int("max_steps", r.cfg.MaxSteps))
			return result
		}

		step, err := r.planner.Plan(ctx, schemas.PlanRequest{
			HTMLSnapshot:         r.snapshot(ctx, page, logger),
			RemainingInstruction: remaining,
			History:              result.History,
		})
		if err != nil {
			result.Status = schemas.StatusError
			result.Message = fmt.Sprintf("planning failed: %v", err)
			logger.Error("Planning failed, aborting run.", zap.Error(err))
			return result
		}

		if step.Completed || step.Action == schemas.ActionComplete {
			if anyFailed {
				result.Status = schemas.StatusPartial
				result.Message = "instruction completed with failed steps"
			} else {
				result.Status = schemas.StatusSuccess
				result.Message = "instruction completed"
			}
			logger.Info("Run complete.", zap.String("status", string(result.Status)),
				zap.Int("steps", len(result.History)))
			return result
		}

		record := r.executeStep(ctx, page, step, logger)
		result.History = append(result.History, record)
		if record.Outcome == schemas.OutcomeFailed {
			anyFailed = true
		}
		if step.RemainingCommand != "" {
			remaining = step.RemainingCommand
		}
	}
}

// snapshot captures the cleaned page HTML, empty before first
// navigation or when capture fails. Planning still proceeds; the
// planner's first step is usually a navigate anyway.
func (r *Runner) snapshot(ctx context.Context, page Page, logger *zap.Logger) string {
	if page.CurrentURL() == "" {
		return ""
	}
	raw, err := page.HTML(ctx)
	if err != nil {
		logger.Warn("Snapshot capture failed.", zap.Error(err))
		return ""
	}
	return r.cleaner.Clean(raw)
}

// executeStep retries a failing step with a fixed backoff. A step that
// exhausts its attempts is recorded as failed and the run moves on; the
// planner sees the failure in the history and adapts.
func (r *Runner) executeStep(ctx context.Context, page Page, step schemas.Step, logger *zap.Logger) schemas.StepRecord {
	record := schemas.StepRecord{Step: step}
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		record.Attempts = attempt
		extracted, err := r.apply(ctx, page, step)
		if err == nil {
			record.Outcome = schemas.OutcomeSuccess
			record.Extracted = extracted
			record.Duration = time.Since(start)
			logger.Info("Step succeeded.",
				zap.String("action", string(step.Action)),
				zap.String("target", step.Target),
				zap.Int("attempt", attempt))
			return record
		}
		lastErr = err
		logger.Warn("Step attempt failed.",
			zap.String("action", string(step.Action)),
			zap.String("target", step.Target),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < r.cfg.MaxAttempts {
			if err := r.sleep(ctx, r.cfg.RetryBackoff); err != nil {
				break
			}
		}
	}

	record.Outcome = schemas.OutcomeFailed
	record.Error = lastErr.Error()
	record.Duration = time.Since(start)
	return record
}

func (r *Runner) apply(ctx context.Context, page Page, step schemas.Step) (string, error) {
	switch step.Action {
	case schemas.ActionNavigate:
		return "", page.Navigate(ctx, step.Target)
	case schemas.ActionClick:
		return "", page.Click(ctx, schemas.NewElementTarget(step.Target, schemas.RoleClick))
	case schemas.ActionType:
		return "", page.Type(ctx, schemas.NewElementTarget(step.Target, schemas.RoleType), step.Value)
	case schemas.ActionPressEnter:
		target := schemas.ElementTarget{}
		if step.Target != "" {
			target = schemas.NewElementTarget(step.Target, schemas.RoleType)
		}
		return "", page.PressEnter(ctx, target)
	case schemas.ActionWait:
		if step.Target == "" {
			return "", r.sleep(ctx, waitTimeout(step.Value))
		}
		return "", page.WaitVisible(ctx, step.Target, waitTimeout(step.Value))
	case schemas.ActionExtract:
		return page.ExtractText(ctx, schemas.NewElementTarget(step.Target, extractRole(step)))
	default:
		return "", fmt.Errorf("runner: unexecutable action %q", step.Action)
	}
}

// waitTimeout interprets a wait step's value as seconds.
func waitTimeout(value string) time.Duration {
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil || secs <= 0 {
		return defaultWaitTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

// extractRole infers the resolver role from what the planner says it is
// extracting.
func extractRole(step schemas.Step) schemas.TargetRole {
	hint := strings.ToLower(step.Target + " " + step.Description)
	switch {
	case strings.Contains(hint, "headline"), strings.Contains(hint, "title"):
		return schemas.RoleHeadline
	case strings.Contains(hint, "price"), strings.Contains(hint, "cost"):
		return schemas.RolePrice
	default:
		return schemas.RoleGeneric
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
