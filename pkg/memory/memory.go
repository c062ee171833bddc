// Package memory defines the core data model for the keepsake system:
// scopes, fact records, lifecycle states, and ingestion policies.
//
// A fact record is a single atomic piece of remembered information. Records
// belong to exactly one scope and never migrate between scopes. The
// lifecycle state machine is deliberately small:
//
//	proposed  -> committed | rejected
//	committed -> superseded
//
// Rejected and superseded are terminal. Physical deletion is a store
// operation, not a state - it removes the record entirely, while superseded
// records are retained for audit.
package memory

import "time"

// State is the lifecycle state of a fact record.
type State string

const (
	// StateProposed marks a fact awaiting review. Proposed facts are never
	// visible to recall consumers.
	StateProposed State = "proposed"

	// StateCommitted marks a fact visible to recall consumers.
	StateCommitted State = "committed"

	// StateRejected marks a reviewed-and-refused fact. Terminal.
	StateRejected State = "rejected"

	// StateSuperseded marks a committed fact replaced by a newer record
	// during a refactor. Terminal; retained for audit.
	StateSuperseded State = "superseded"
)

// transitions is the authoritative state transition table.
var transitions = map[State]map[State]bool{
	StateProposed: {
		StateCommitted: true,
		StateRejected:  true,
	},
	StateCommitted: {
		StateSuperseded: true,
	},
}

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateProposed, StateCommitted, StateRejected, StateSuperseded:
		return true
	}
	return false
}

// CanTransition reports whether the transition s -> next is legal.
func (s State) CanTransition(next State) bool {
	return transitions[s][next]
}

// Policy identifies which ingestion mode created a fact record. Policies
// differ only in how a fact reaches or leaves the committed state, not in
// what "recallable" means.
type Policy string

const (
	// PolicyOpaque commits facts immediately with no review path. Models
	// the failure mode of invisible, unreviewable memory.
	PolicyOpaque Policy = "opaque"

	// PolicyControlled stages facts as proposed until an explicit approve.
	PolicyControlled Policy = "controlled"

	// PolicyHybrid commits facts immediately but keeps the committed set
	// editable after the fact via natural-language refactors.
	PolicyHybrid Policy = "hybrid"
)

// Valid reports whether p is a known ingestion policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyOpaque, PolicyControlled, PolicyHybrid:
		return true
	}
	return false
}

// IngestState returns the state a fact enters the store with under policy p.
func (p Policy) IngestState() State {
	if p == PolicyControlled {
		return StateProposed
	}
	return StateCommitted
}

// Scope is an isolated memory context (e.g., one trip). Facts never cross
// scopes.
type Scope struct {
	// ID is a human-readable slug, e.g. "tokyo_2026".
	ID string `json:"id"`

	CreatedAt time.Time `json:"created_at"`
}

// FactRecord is a single remembered fact with its lifecycle metadata.
type FactRecord struct {
	ID      string `json:"id"`
	ScopeID string `json:"scope_id"`
	Content string `json:"content"`
	State   State  `json:"state"`

	// Policy is the ingestion mode that created the record.
	Policy Policy `json:"policy"`

	// Seq is a store-assigned monotonic sequence number. It breaks
	// creation-time ties so listings stay stable and deterministic.
	Seq int64 `json:"seq"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// SupersededBy holds the id of the replacement record when a refactor
	// replaced this fact. Weak reference: id only, no ownership.
	SupersededBy *string `json:"superseded_by,omitempty"`
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers cannot mutate internal state.
func (f *FactRecord) Clone() *FactRecord {
	if f == nil {
		return nil
	}
	out := *f
	if f.UpdatedAt != nil {
		t := *f.UpdatedAt
		out.UpdatedAt = &t
	}
	if f.SupersededBy != nil {
		s := *f.SupersededBy
		out.SupersededBy = &s
	}
	return &out
}
