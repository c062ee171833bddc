// Package scope manages isolated memory contexts.
//
// A scope is the unit of isolation for fact records (e.g., one trip). The
// Registry resolves incoming identifiers to scopes, creating them on first
// use, and tracks the process's active scope for callers that operate on
// "the current context" rather than naming a scope explicitly.
package scope

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
)

// Registry creates and looks up scopes backed by a store driver.
type Registry struct {
	store store.Driver

	mu     sync.Mutex
	active *memory.Scope
}

// NewRegistry creates a registry over the given store driver.
func NewRegistry(driver store.Driver) *Registry {
	return &Registry{store: driver}
}

// ResolveOrCreate returns the scope registered under identifier, creating
// it with the current timestamp if it does not exist. Idempotent and safe
// under concurrent calls with the same identifier: the store's create is a
// no-op for an already-registered identifier, so at most one scope exists
// per identifier.
func (r *Registry) ResolveOrCreate(ctx context.Context, identifier string) (*memory.Scope, error) {
	if identifier == "" {
		return nil, errors.New("scope identifier must not be empty")
	}

	existing, err := r.store.GetScope(ctx, identifier)
	if err == nil {
		return existing, nil
	}

	var notFound store.ScopeNotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	scope := &memory.Scope{
		ID:        identifier,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateScope(ctx, scope); err != nil {
		return nil, err
	}

	// Re-read so a concurrent creator and this call both observe the
	// single stored scope, whichever call won the insert.
	return r.store.GetScope(ctx, identifier)
}

// Current returns the process's active scope, or nil if unset.
func (r *Registry) Current() *memory.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive switches the active scope. Returns ScopeNotFoundError if the
// identifier was never resolved.
func (r *Registry) SetActive(ctx context.Context, identifier string) error {
	scope, err := r.store.GetScope(ctx, identifier)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.active = scope
	r.mu.Unlock()

	return nil
}

// List returns all registered scopes ordered by creation time.
func (r *Registry) List(ctx context.Context) ([]*memory.Scope, error) {
	return r.store.ListScopes(ctx)
}
