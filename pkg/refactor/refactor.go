// Package refactor implements natural-language-directed batch edits to a
// scope's committed fact set.
//
// Planning and application are deliberately split. Plan asks an LLM to
// interpret a directive against the committed set and returns a proposed
// action list - an untrusted plan, not a guaranteed-correct
// transformation. Apply validates the plan and executes it atomically
// through the store: either every action lands or none do. A half-applied
// refactor is strictly worse than a refused one, which is the defense
// against hallucinated corrections.
package refactor

import (
	"fmt"
)

// ActionKind discriminates refactor actions.
type ActionKind string

const (
	// ActionKeep leaves the fact untouched.
	ActionKeep ActionKind = "keep"

	// ActionDelete removes the fact from the store entirely.
	ActionDelete ActionKind = "delete"

	// ActionReplace supersedes the fact with a new committed record.
	ActionReplace ActionKind = "replace"
)

// Action is one proposed edit against a committed fact.
type Action struct {
	Kind   ActionKind `json:"action"`
	FactID string     `json:"id"`

	// NewContent is the replacement text for ActionReplace.
	NewContent string `json:"content,omitempty"`
}

// Plan is the outcome of interpreting a directive. An empty action list
// with a Reason is a reported no-op, never an error.
type Plan struct {
	Actions []Action `json:"actions"`

	// Reason explains an empty plan (e.g. malformed model output, nothing
	// matched the directive).
	Reason string `json:"reason,omitempty"`
}

// NoOp reports whether the plan proposes no mutations.
func (p *Plan) NoOp() bool {
	for _, action := range p.Actions {
		if action.Kind != ActionKeep {
			return false
		}
	}
	return true
}

// Outcome records one applied action.
type Outcome struct {
	Action Action `json:"action"`

	// ReplacementID is the id of the appended record for ActionReplace.
	ReplacementID string `json:"replacement_id,omitempty"`
}

// Result reports an Apply call. FailedAt is nil on success; on failure it
// carries the index of the offending action and Applied is empty because
// the whole batch was rolled back.
type Result struct {
	Applied  []Outcome `json:"applied"`
	FailedAt *int      `json:"failed_at,omitempty"`
}

// PartialFailureError is returned when one action in a batch failed. The
// entire batch was rolled back; nothing was applied.
type PartialFailureError struct {
	Index int
	Err   error
}

func (e PartialFailureError) Error() string {
	return fmt.Sprintf("refactor action %d failed, batch rolled back: %v", e.Index, e.Err)
}

func (e PartialFailureError) Unwrap() error {
	return e.Err
}
