// Package schemas defines the data types and interfaces shared across the
// webpilot components: the planner's step language, run results, and the
// contracts between the step runner and its collaborators.
package schemas

import (
	"strings"
	"time"
)

// StepAction enumerates the discrete actions the planner may request.
type StepAction string

const (
	ActionNavigate   StepAction = "navigate"
	ActionClick      StepAction = "click"
	ActionType       StepAction = "type"
	ActionPressEnter StepAction = "press_enter"
	ActionWait       StepAction = "wait"
	ActionExtract    StepAction = "extract"
	ActionComplete   StepAction = "complete"
)

// Step is one unit of the planner's output. It is immutable once produced;
// the runner appends it to the history verbatim, and only the planner reads
// history entries on subsequent calls.
type Step struct {
	// Action names the interaction primitive to execute.
	Action StepAction `json:"action"`
	// Description is the planner's human-readable summary of the step.
	Description string `json:"description"`
	// Target is a URL for navigate, a CSS selector (or comma-separated
	// candidates) for element actions, or a data name for extract.
	Target string `json:"target"`
	// Value is the text to type, or seconds to wait.
	Value string `json:"value"`
	// RemainingCommand is the planner's updated view of what is left of the
	// user instruction after this step.
	RemainingCommand string `json:"remaining_command"`
	// Completed signals that the original instruction is fulfilled and the
	// run should stop without executing further actions.
	Completed bool `json:"completed"`
}

// StepOutcome describes how the execution of a single step ended.
type StepOutcome string

const (
	OutcomeSuccess StepOutcome = "success"
	OutcomeFailed  StepOutcome = "failed"
)

// StepRecord pairs a planned step with the result of executing it. Failed
// steps are recorded too; the run advances and the planner is trusted to
// react to the failure on the next iteration.
type StepRecord struct {
	Step      Step          `json:"step"`
	Outcome   StepOutcome   `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Error     string        `json:"error,omitempty"`
	Extracted string        `json:"extracted,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunStatus is the overall verdict of an automation run.
type RunStatus string

const (
	// StatusSuccess - every executed step succeeded and the planner
	// signalled completion.
	StatusSuccess RunStatus = "success"
	// StatusPartial - the planner signalled completion but at least one
	// step failed along the way.
	StatusPartial RunStatus = "partial"
	// StatusError - the run aborted before completion (launch, connection
	// or planning failure).
	StatusError RunStatus = "error"
	// StatusStepBudgetExceeded - the configured step ceiling was reached
	// before the planner signalled completion.
	StatusStepBudgetExceeded RunStatus = "step_budget_exceeded"
)

// RunResult is the public outcome of Runner.Run: the overall status, the
// full per-step history for diagnosis, and a terminal message.
type RunResult struct {
	RunID   string       `json:"run_id"`
	Status  RunStatus    `json:"status"`
	History []StepRecord `json:"history"`
	Message string       `json:"message"`
}

// BrowserKind selects the browser family to drive. Only Chromium-style
// remote-debugging endpoints are supported.
type BrowserKind string

const (
	BrowserChrome BrowserKind = "chrome"
)

// TargetRole tells the resolver's heuristic tier what kind of element a
// vague target most likely refers to.
type TargetRole string

const (
	RoleType     TargetRole = "type"
	RoleClick    TargetRole = "click"
	RoleHeadline TargetRole = "headline"
	RolePrice    TargetRole = "price"
	RoleGeneric  TargetRole = "generic"
)

// ElementTarget describes what to locate on the page: an ordered list of
// CSS selector candidates plus the role used by the fallback heuristic.
// Resolution is never cached; page state can change between interactions.
type ElementTarget struct {
	Selectors []string
	Role      TargetRole
}

// NewElementTarget splits a possibly comma-separated selector string from
// the planner into an ordered candidate list.
func NewElementTarget(selector string, role TargetRole) ElementTarget {
	var candidates []string
	start := 0
	depth := 0
	for i := 0; i < len(selector); i++ {
		switch selector[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			// Selector-list commas only count at bracket depth zero, so
			// attribute selectors like [name="a,b"] survive intact.
			if depth == 0 {
				candidates = append(candidates, strings.TrimSpace(selector[start:i]))
				start = i + 1
			}
		}
	}
	candidates = append(candidates, strings.TrimSpace(selector[start:]))

	out := candidates[:0]
	for _, c := range candidates {
		if c != "" {
			out = append(out, c)
		}
	}
	return ElementTarget{Selectors: out, Role: role}
}
