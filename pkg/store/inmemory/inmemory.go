// Package inmemory provides an in-process implementation of store.Driver.
//
// Used for unit tests and local development. All state lives behind a
// single RWMutex, which also gives ApplyBatch its all-or-nothing guarantee:
// operations are validated against current state before any of them is
// applied.
package inmemory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
)

// Driver implements store.Driver using in-memory maps.
type Driver struct {
	mu sync.RWMutex

	scopes map[string]*memory.Scope

	// facts maps record id -> record.
	facts map[string]*memory.FactRecord

	// seq is the monotonic sequence counter shared by all scopes.
	seq int64
}

// NewDriver creates a new in-memory store driver.
func NewDriver() *Driver {
	return &Driver{
		scopes: make(map[string]*memory.Scope),
		facts:  make(map[string]*memory.FactRecord),
	}
}

// CreateScope registers a scope. Re-registering an existing identifier is
// a no-op.
func (d *Driver) CreateScope(_ context.Context, scope *memory.Scope) error {
	if scope == nil || scope.ID == "" {
		return errors.New("cannot create scope without an identifier")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.scopes[scope.ID]; ok {
		return nil
	}

	s := *scope
	d.scopes[scope.ID] = &s
	return nil
}

// GetScope retrieves a scope by identifier.
func (d *Driver) GetScope(_ context.Context, scopeID string) (*memory.Scope, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scope, ok := d.scopes[scopeID]
	if !ok {
		return nil, store.ScopeNotFoundError{ScopeID: scopeID}
	}

	s := *scope
	return &s, nil
}

// ListScopes returns all scopes ordered by creation time, identifier as
// tie-break.
func (d *Driver) ListScopes(_ context.Context) ([]*memory.Scope, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scopes := make([]*memory.Scope, 0, len(d.scopes))
	for _, scope := range d.scopes {
		s := *scope
		scopes = append(scopes, &s)
	}

	sort.Slice(scopes, func(i, j int) bool {
		if !scopes[i].CreatedAt.Equal(scopes[j].CreatedAt) {
			return scopes[i].CreatedAt.Before(scopes[j].CreatedAt)
		}
		return scopes[i].ID < scopes[j].ID
	})

	return scopes, nil
}

// Append creates and stores a new fact record.
func (d *Driver) Append(_ context.Context, scopeID, content string, state memory.State, policy memory.Policy) (*memory.FactRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.appendLocked(scopeID, content, state, policy)
}

// appendLocked creates a record. Callers must hold d.mu.
func (d *Driver) appendLocked(scopeID, content string, state memory.State, policy memory.Policy) (*memory.FactRecord, error) {
	if _, ok := d.scopes[scopeID]; !ok {
		return nil, store.InvalidScopeError{ScopeID: scopeID}
	}

	d.seq++
	record := &memory.FactRecord{
		ID:        uuid.NewString(),
		ScopeID:   scopeID,
		Content:   content,
		State:     state,
		Policy:    policy,
		Seq:       d.seq,
		CreatedAt: time.Now().UTC(),
	}

	d.facts[record.ID] = record
	return record.Clone(), nil
}

// Get retrieves a fact record by id.
func (d *Driver) Get(_ context.Context, factID string) (*memory.FactRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	record, ok := d.facts[factID]
	if !ok {
		return nil, store.NotFoundError{FactID: factID}
	}

	return record.Clone(), nil
}

// List returns a scope's records ordered by creation time ascending,
// optionally filtered by state.
func (d *Driver) List(_ context.Context, scopeID string, states ...memory.State) ([]*memory.FactRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.scopes[scopeID]; !ok {
		return nil, store.InvalidScopeError{ScopeID: scopeID}
	}

	filter := make(map[memory.State]bool, len(states))
	for _, s := range states {
		filter[s] = true
	}

	var records []*memory.FactRecord
	for _, record := range d.facts {
		if record.ScopeID != scopeID {
			continue
		}
		if len(filter) > 0 && !filter[record.State] {
			continue
		}
		records = append(records, record.Clone())
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Seq < records[j].Seq
	})

	return records, nil
}

// UpdateState transitions a record, enforcing the lifecycle table.
func (d *Driver) UpdateState(_ context.Context, factID string, next memory.State, supersededBy *string) (*memory.FactRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.updateStateLocked(factID, next, supersededBy)
}

// updateStateLocked performs the transition. Callers must hold d.mu.
func (d *Driver) updateStateLocked(factID string, next memory.State, supersededBy *string) (*memory.FactRecord, error) {
	record, ok := d.facts[factID]
	if !ok {
		return nil, store.NotFoundError{FactID: factID}
	}

	if !record.State.CanTransition(next) {
		return nil, store.InvalidTransitionError{FactID: factID, From: record.State, To: next}
	}

	now := time.Now().UTC()
	record.State = next
	record.UpdatedAt = &now
	if supersededBy != nil {
		s := *supersededBy
		record.SupersededBy = &s
	}

	return record.Clone(), nil
}

// Delete removes a record entirely. A second call returns NotFoundError.
func (d *Driver) Delete(_ context.Context, factID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.facts[factID]; !ok {
		return store.NotFoundError{FactID: factID}
	}

	delete(d.facts, factID)
	return nil
}

// ApplyBatch applies ops in order, all-or-nothing. Every op is validated
// against the store's current state before the first mutation, so a failed
// batch leaves the store untouched.
func (d *Driver) ApplyBatch(_ context.Context, scopeID string, ops []store.BatchOp) ([]*memory.FactRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.scopes[scopeID]; !ok {
		return nil, store.InvalidScopeError{ScopeID: scopeID}
	}

	// Validation pass. Nothing is mutated until every op checks out.
	seen := make(map[string]bool, len(ops))
	for i, op := range ops {
		if seen[op.FactID] {
			return nil, store.BatchError{Index: i, Err: errors.New("duplicate fact in batch: " + op.FactID)}
		}
		seen[op.FactID] = true

		record, ok := d.facts[op.FactID]
		if !ok {
			return nil, store.BatchError{Index: i, Err: store.NotFoundError{FactID: op.FactID}}
		}
		if record.ScopeID != scopeID {
			return nil, store.BatchError{Index: i, Err: store.InvalidScopeError{ScopeID: scopeID}}
		}

		switch op.Kind {
		case store.BatchDelete:
			// Any record can be physically removed.
		case store.BatchSupersede:
			if !record.State.CanTransition(memory.StateSuperseded) {
				return nil, store.BatchError{
					Index: i,
					Err:   store.InvalidTransitionError{FactID: op.FactID, From: record.State, To: memory.StateSuperseded},
				}
			}
		default:
			return nil, store.BatchError{Index: i, Err: errors.New("unknown batch op kind: " + string(op.Kind))}
		}
	}

	// Apply pass. All ops are known-good under the held lock.
	var appended []*memory.FactRecord
	for _, op := range ops {
		switch op.Kind {
		case store.BatchDelete:
			delete(d.facts, op.FactID)

		case store.BatchSupersede:
			original := d.facts[op.FactID]
			replacement, err := d.appendLocked(scopeID, op.Replacement, memory.StateCommitted, original.Policy)
			if err != nil {
				return nil, err
			}
			if _, err := d.updateStateLocked(op.FactID, memory.StateSuperseded, &replacement.ID); err != nil {
				return nil, err
			}
			appended = append(appended, replacement)
		}
	}

	return appended, nil
}

// Count returns the number of fact records across all scopes.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.facts)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
