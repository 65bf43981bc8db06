package schemas

import (
	"context"
)

// PlanRequest carries everything the planner needs to decide the next step:
// the cleaned snapshot of the current page, what is left of the user's
// instruction, and the records of the steps executed so far.
type PlanRequest struct {
	HTMLSnapshot         string
	RemainingInstruction string
	History              []StepRecord
}

// Planner turns a page snapshot plus the remaining instruction into the
// next discrete step. Any failure is fatal for the run - there is no step
// to execute without a plan.
//
//go:generate mockery --name Planner --output ../../internal/mocks --outpkg mocks
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Step, error)
}

// Cleaner reduces a raw HTML document to the content-bearing subset handed
// to the planner. Implementations must be pure: no side effects,
// deterministic for a given input.
type Cleaner interface {
	Clean(raw string) string
}

// ModelTier selects a large language model by a speed/capability
// preference rather than by name.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes a single LLM generation call.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates one request to the LLM: persona, user
// content, tier and options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the underlying model provider.
type LLMClient interface {
	// Generate produces a text completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}
