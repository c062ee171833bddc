package refactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keepsake-sh/keepsake/pkg/llm"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
)

const planPromptTemplate = `You are a memory bank curator. Reorganize the user's committed memory facts according to their instruction.

CURRENT COMMITTED FACTS (JSON):
%s

USER INSTRUCTION:
"%s"

RULES:
1. Return ONLY a JSON object of the form {"actions": [{"action": "keep"|"delete"|"replace", "id": "...", "content": "..."}]}. No markdown, no explanations.
2. Emit exactly one action per fact id from the list above. Never invent ids.
3. Use "delete" for facts the instruction removes, "replace" (with new "content") for facts it rewrites, "keep" for everything else.
4. Be literal about scope: only touch facts the instruction actually covers.`

// planFact is the slice of a fact record shown to the planning model.
type planFact struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Processor plans and applies refactors against a scope's committed set.
type Processor struct {
	store  store.Driver
	call   llm.CallFunc
	logger *slog.Logger
}

// Option configures a Processor created with NewProcessor.
type Option func(*Processor)

// WithLogger sets the processor's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a refactor processor. The call function backs
// planning only; Apply never touches a model.
func NewProcessor(driver store.Driver, call llm.CallFunc, opts ...Option) *Processor {
	p := &Processor{
		store:  driver,
		call:   call,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Plan interprets a natural-language directive against the scope's
// committed facts and returns a proposed action sequence. Malformed or
// empty model output degrades to a no-op plan with a Reason, never an
// error - only store and transport failures surface as errors.
func (p *Processor) Plan(ctx context.Context, scopeID, directive string) (*Plan, error) {
	committed, err := p.store.List(ctx, scopeID, memory.StateCommitted)
	if err != nil {
		return nil, err
	}

	if len(committed) == 0 {
		return &Plan{Reason: "no committed facts in scope"}, nil
	}

	facts := make([]planFact, len(committed))
	byID := make(map[string]bool, len(committed))
	for i, record := range committed {
		facts[i] = planFact{ID: record.ID, Content: record.Content}
		byID[record.ID] = true
	}

	factsJSON, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal committed facts: %w", err)
	}

	prompt := fmt.Sprintf(planPromptTemplate, string(factsJSON), directive)

	response, err := p.call(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan call: %w", err)
	}

	plan, reason := parsePlanResponse(response, byID)
	if reason != "" {
		p.logger.Warn("refactor plan degraded to no-op",
			"scope_id", scopeID,
			"reason", reason,
		)
		return &Plan{Reason: reason}, nil
	}

	return plan, nil
}

// parsePlanResponse parses the model output into a plan, validating every
// action against the committed id set. Any violation voids the whole plan:
// a partially trusted plan is not worth applying.
func parsePlanResponse(response string, committed map[string]bool) (*Plan, string) {
	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	var plan Plan
	if err := json.Unmarshal([]byte(jsonStr), &plan); err != nil {
		return nil, "model output was not a valid action list"
	}

	if len(plan.Actions) == 0 {
		return nil, "model proposed no actions"
	}

	seen := make(map[string]bool, len(plan.Actions))
	for _, action := range plan.Actions {
		switch action.Kind {
		case ActionKeep, ActionDelete, ActionReplace:
		default:
			return nil, "model proposed an unknown action kind: " + string(action.Kind)
		}
		if !committed[action.FactID] {
			return nil, "model referenced an unknown fact id: " + action.FactID
		}
		if seen[action.FactID] {
			return nil, "model proposed conflicting actions for fact: " + action.FactID
		}
		seen[action.FactID] = true
		if action.Kind == ActionReplace && strings.TrimSpace(action.NewContent) == "" {
			return nil, "model proposed a replacement without content"
		}
	}

	return &plan, ""
}

// Apply executes an action sequence atomically. Keeps are recorded as
// outcomes without store mutations; deletes and replaces run as one
// all-or-nothing batch. On any failure the store is left byte-for-byte
// identical to before the call and the error wraps PartialFailureError.
func (p *Processor) Apply(ctx context.Context, scopeID string, actions []Action) (*Result, error) {
	var (
		ops []store.BatchOp

		// opToAction maps batch op index back to action index for
		// failure reporting.
		opToAction []int
	)

	for i, action := range actions {
		switch action.Kind {
		case ActionKeep:
			// No store mutation.

		case ActionDelete:
			ops = append(ops, store.BatchOp{Kind: store.BatchDelete, FactID: action.FactID})
			opToAction = append(opToAction, i)

		case ActionReplace:
			ops = append(ops, store.BatchOp{
				Kind:        store.BatchSupersede,
				FactID:      action.FactID,
				Replacement: action.NewContent,
			})
			opToAction = append(opToAction, i)

		default:
			idx := i
			return &Result{FailedAt: &idx}, PartialFailureError{
				Index: i,
				Err:   fmt.Errorf("unknown action kind: %s", action.Kind),
			}
		}
	}

	appended, err := p.store.ApplyBatch(ctx, scopeID, ops)
	if err != nil {
		var batchErr store.BatchError
		if errors.As(err, &batchErr) {
			idx := opToAction[batchErr.Index]
			return &Result{FailedAt: &idx}, PartialFailureError{Index: idx, Err: batchErr.Err}
		}
		return nil, err
	}

	result := &Result{Applied: make([]Outcome, 0, len(actions))}
	replacement := 0
	for _, action := range actions {
		outcome := Outcome{Action: action}
		if action.Kind == ActionReplace {
			outcome.ReplacementID = appended[replacement].ID
			replacement++
		}
		result.Applied = append(result.Applied, outcome)
	}

	p.logger.Info("refactor applied",
		"scope_id", scopeID,
		"actions", len(actions),
		"mutations", len(ops),
	)

	return result, nil
}
