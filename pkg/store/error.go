package store

import (
	"fmt"

	"github.com/keepsake-sh/keepsake/pkg/memory"
)

// NotFoundError is returned when a fact record doesn't exist in the store.
type NotFoundError struct {
	FactID string
}

func (e NotFoundError) Error() string {
	if e.FactID == "" {
		return "fact not found"
	}

	return "fact not found: " + e.FactID
}

// ScopeNotFoundError is returned when a scope identifier was never
// registered.
type ScopeNotFoundError struct {
	ScopeID string
}

func (e ScopeNotFoundError) Error() string {
	if e.ScopeID == "" {
		return "scope not found"
	}

	return "scope not found: " + e.ScopeID
}

// InvalidScopeError is returned by store mutations referencing an
// unregistered scope. Indicates a caller bug rather than user error.
type InvalidScopeError struct {
	ScopeID string
}

func (e InvalidScopeError) Error() string {
	return "invalid scope: " + e.ScopeID
}

// InvalidTransitionError is returned when a requested state change is not
// legal from the record's current state.
type InvalidTransitionError struct {
	FactID string
	From   memory.State
	To     memory.State
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for fact %s: %s -> %s", e.FactID, e.From, e.To)
}

// BatchError is returned by ApplyBatch when one operation in a batch
// fails. The entire batch is rolled back; Index identifies the offending
// operation.
type BatchError struct {
	Index int
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch operation %d failed: %v", e.Index, e.Err)
}

func (e BatchError) Unwrap() error {
	return e.Err
}
