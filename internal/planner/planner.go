// Package planner asks the configured language model for the next
// browser step given the current page and run history.
package planner

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
	"github.com/knrv/webpilot/internal/llmutil"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// historyWindow caps how many trailing step records enter the prompt.
const historyWindow = 10

// PlanningError wraps any failure to obtain a usable step. The runner
// treats it as fatal: without a plan there is nothing to execute.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planner: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// Planner implements schemas.Planner on top of an LLMClient. A rate
// limiter keeps plan calls under the provider's request quota.
type Planner struct {
	client     schemas.LLMClient
	limiter    *rate.Limiter
	logger     *zap.Logger
	htmlBudget int
	temp       float64
}

// New wires a planner. htmlBudget bounds the snapshot bytes placed in
// the prompt; zero means no truncation.
func New(client schemas.LLMClient, cfg config.LLMConfig, htmlBudget int, logger *zap.Logger) *Planner {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return &Planner{
		client:     client,
		limiter:    limiter,
		logger:     logger.Named("planner"),
		htmlBudget: htmlBudget,
		temp:       cfg.Temperature,
	}
}

// Plan requests exactly one next step and validates it before handing
// it to the runner.
func (p *Planner) Plan(ctx context.Context, req schemas.PlanRequest) (schemas.Step, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return schemas.Step{}, &PlanningError{Err: err}
	}

	response, err := p.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   p.buildUserPrompt(req),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     p.temp,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.Step{}, &PlanningError{Err: fmt.Errorf("generation failed: %w", err)}
	}

	step, err := llmutil.ParseJSONResponse[schemas.Step](response)
	if err != nil {
		return schemas.Step{}, &PlanningError{Err: err}
	}
	if err := validateStep(*step); err != nil {
		return schemas.Step{}, &PlanningError{Err: err}
	}

	p.logger.Debug("Planned next step.",
		zap.String("action", string(step.Action)),
		zap.String("target", step.Target),
		zap.Bool("completed", step.Completed))
	return *step, nil
}

const systemPrompt = `You are a browser automation planner. Given the current page HTML, the user's remaining instruction and the step history, respond with the single next step as a JSON object:

{
  "action": "navigate" | "click" | "type" | "press_enter" | "wait" | "extract" | "complete",
  "description": "short human-readable summary",
  "target": "URL for navigate; CSS selector candidates (comma separated, most specific first) for element actions; a label for extract",
  "value": "text to type, or seconds to wait",
  "remaining_command": "what is still left of the user's instruction after this step",
  "completed": false
}

Rules:
- Plan exactly one step per response. Never return an array.
- Prefer selectors with stable ids or name attributes over positional ones.
- Use "type" to fill a field and a separate "press_enter" step to submit it.
- Use "wait" with only a "value" of seconds to pause, or with a "target" selector to wait until it is visible.
- When a previous step failed, choose a different approach, do not repeat it verbatim.
- Set "action" to "complete" and "completed" to true only when the instruction is fully satisfied.
- Respond with raw JSON only, no markdown fences, no commentary.`

func (p *Planner) buildUserPrompt(req schemas.PlanRequest) string {
	var b strings.Builder

	b.WriteString("REMAINING INSTRUCTION:\n")
	b.WriteString(req.RemainingInstruction)
	b.WriteString("\n\nSTEP HISTORY (oldest first):\n")
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) == 0 {
		b.WriteString("(none, this is the first step)\n")
	} else {
		raw, err := jsonAPI.Marshal(history)
		if err != nil {
			raw = []byte("[]")
		}
		b.Write(raw)
		b.WriteString("\n")
	}

	b.WriteString("\nCURRENT PAGE:\n")
	snapshot := req.HTMLSnapshot
	if p.htmlBudget > 0 && len(snapshot) > p.htmlBudget {
		snapshot = snapshot[:p.htmlBudget] + "\n[truncated]"
	}
	if snapshot == "" {
		snapshot = "(no page loaded yet)"
	}
	b.WriteString(snapshot)
	return b.String()
}

func validateStep(step schemas.Step) error {
	switch step.Action {
	case schemas.ActionNavigate:
		if step.Target == "" {
			return fmt.Errorf("navigate step has no target URL")
		}
	case schemas.ActionClick, schemas.ActionType, schemas.ActionExtract:
		if step.Target == "" {
			return fmt.Errorf("%s step has no target selector", step.Action)
		}
		if step.Action == schemas.ActionType && step.Value == "" {
			return fmt.Errorf("type step has no value")
		}
	case schemas.ActionWait:
		// A wait is either a timed pause (value only) or a wait for a
		// selector to turn visible (target, optional timeout value).
		if step.Target == "" && step.Value == "" {
			return fmt.Errorf("wait step has neither target nor value")
		}
	case schemas.ActionPressEnter, schemas.ActionComplete:
	case "":
		return fmt.Errorf("step has no action")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}
