// Package eventstream defines transport-neutral lifecycle events emitted
// by the memory engine, and the Publisher interface backends implement.
// Events let external consumers (dashboards, audit pipelines) follow fact
// state changes without polling the store. Backends live in subpackages
// (nop, kafka).
package eventstream

import (
	"time"

	"github.com/keepsake-sh/keepsake/pkg/memory"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeScopeCreated is emitted when a scope is first registered.
	EventTypeScopeCreated = "keepsake.scope.created"

	// EventTypeFactProposed is emitted when a fact lands in staging.
	EventTypeFactProposed = "keepsake.fact.proposed"

	// EventTypeFactCommitted is emitted when a fact becomes recallable,
	// whether at ingestion or via approval.
	EventTypeFactCommitted = "keepsake.fact.committed"

	// EventTypeFactRejected is emitted when a proposed fact is refused.
	EventTypeFactRejected = "keepsake.fact.rejected"

	// EventTypeFactSuperseded is emitted when a refactor replaces a fact.
	EventTypeFactSuperseded = "keepsake.fact.superseded"

	// EventTypeFactDeleted is emitted when a fact is physically removed.
	EventTypeFactDeleted = "keepsake.fact.deleted"
)

// FactLifecycleEvent is a transport-neutral event payload for a fact state
// change.
type FactLifecycleEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ScopeID string `json:"scope_id"`

	// Fact is a snapshot of the record after the transition. Nil for
	// scope-level events and deletions.
	Fact *memory.FactRecord `json:"fact,omitempty"`

	// FactID is always set for fact-level events, including deletions
	// where no snapshot survives.
	FactID string `json:"fact_id,omitempty"`

	// Policy is the ingestion mode that created the fact.
	Policy memory.Policy `json:"policy,omitempty"`
}
