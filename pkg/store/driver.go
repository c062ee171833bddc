// Package store defines the fact record store contract.
//
// The Driver is the persistence boundary for the lifecycle engine: the
// engine requires only these operations plus scope-qualified listing with
// filtering and stable ordering. Any storage technology satisfying the
// contract is interchangeable - backends live in subpackages (inmemory,
// sqlite, postgres).
package store

import (
	"context"

	"github.com/keepsake-sh/keepsake/pkg/memory"
)

// Driver persists scopes and fact records.
//
// Individual mutations (Append, UpdateState, Delete) are atomic.
// ApplyBatch is atomic across all of its operations: either every
// operation succeeds or the store is left untouched. Listings always
// reflect all mutations whose calls have already returned.
type Driver interface {
	// CreateScope persists a scope. Inserting an already-registered
	// identifier is a no-op, so concurrent resolve-or-create races
	// collapse to a single scope.
	CreateScope(ctx context.Context, scope *memory.Scope) error

	// GetScope retrieves a scope by identifier. Returns ScopeNotFoundError
	// if the identifier was never registered.
	GetScope(ctx context.Context, scopeID string) (*memory.Scope, error)

	// ListScopes returns all registered scopes ordered by creation time.
	ListScopes(ctx context.Context) ([]*memory.Scope, error)

	// Append creates and persists a new fact record with a freshly
	// generated id and the next sequence number. Returns
	// InvalidScopeError if the scope is unknown.
	Append(ctx context.Context, scopeID, content string, state memory.State, policy memory.Policy) (*memory.FactRecord, error)

	// Get retrieves a fact record by id. Returns NotFoundError if absent.
	Get(ctx context.Context, factID string) (*memory.FactRecord, error)

	// List returns the records for a scope ordered by creation time
	// ascending (sequence number breaks ties). An empty states filter
	// returns every record; otherwise only records whose state is in the
	// filter.
	List(ctx context.Context, scopeID string, states ...memory.State) ([]*memory.FactRecord, error)

	// UpdateState transitions a record to next, enforcing the lifecycle
	// transition table. supersededBy, when non-nil, records the
	// replacement id on a committed -> superseded transition. Returns
	// InvalidTransitionError if the transition is not legal from the
	// record's current state.
	UpdateState(ctx context.Context, factID string, next memory.State, supersededBy *string) (*memory.FactRecord, error)

	// Delete removes a record entirely. Not idempotent: a second call
	// returns NotFoundError.
	Delete(ctx context.Context, factID string) error

	// ApplyBatch applies ops in order, all-or-nothing. On failure the
	// returned error wraps a BatchError carrying the index of the
	// offending operation and no operation is applied.
	ApplyBatch(ctx context.Context, scopeID string, ops []BatchOp) ([]*memory.FactRecord, error)

	// Close releases any resources held by the driver.
	Close() error
}

// BatchOpKind discriminates batch operations.
type BatchOpKind string

const (
	// BatchDelete removes the record entirely.
	BatchDelete BatchOpKind = "delete"

	// BatchSupersede appends a committed replacement record and
	// transitions the original to superseded with a back-reference.
	BatchSupersede BatchOpKind = "supersede"
)

// BatchOp is one mutation inside an atomic batch.
type BatchOp struct {
	Kind   BatchOpKind
	FactID string

	// Replacement is the content of the record appended by a
	// BatchSupersede op. Ignored for BatchDelete.
	Replacement string
}
