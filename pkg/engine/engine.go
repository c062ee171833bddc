// Package engine implements the memory lifecycle engine.
//
// The engine is the only writer of fact records. It exposes one ingestion
// entry point per policy - opaque, controlled, hybrid - sharing the same
// underlying store but differing in where a candidate fact lands:
//
//   - opaque and hybrid commit immediately (no staging, recallable as soon
//     as the call returns)
//   - controlled stages the fact as proposed; it can influence recall only
//     after an explicit Approve
//
// Recallable is the single read surface for any answer-generation or
// recall path, uniform across policies: committed facts only, in creation
// order. Store errors propagate unchanged to the caller; the engine adds
// no translation layer and retries nothing.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keepsake-sh/keepsake/pkg/eventstream"
	"github.com/keepsake-sh/keepsake/pkg/eventstream/nop"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
)

// Engine moves fact records through their lifecycle states.
type Engine struct {
	store  store.Driver
	events eventstream.Publisher
	logger *slog.Logger
}

// Option configures an Engine created with New.
type Option func(*Engine)

// WithEvents sets the lifecycle event publisher. Defaults to the no-op
// publisher.
func WithEvents(publisher eventstream.Publisher) Option {
	return func(e *Engine) {
		e.events = publisher
	}
}

// WithLogger sets the engine's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a lifecycle engine over the given store driver.
func New(driver store.Driver, opts ...Option) *Engine {
	e := &Engine{
		store:  driver,
		events: nop.NewPublisher(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// IngestOpaque appends a candidate fact directly in the committed state.
// No staging, no review: once this call returns, the fact is visible to
// recall. The opaque policy offers no correction path beyond raw deletion.
func (e *Engine) IngestOpaque(ctx context.Context, scopeID, content string) (*memory.FactRecord, error) {
	return e.ingest(ctx, scopeID, content, memory.PolicyOpaque)
}

// IngestControlled appends a candidate fact in the proposed state. The
// fact is excluded from recall until an explicit Approve; there is no
// automatic promotion and no timeout-based auto-approval.
func (e *Engine) IngestControlled(ctx context.Context, scopeID, content string) (*memory.FactRecord, error) {
	return e.ingest(ctx, scopeID, content, memory.PolicyControlled)
}

// IngestHybrid appends a candidate fact directly in the committed state,
// like IngestOpaque. The distinguishing guarantee is at correction time:
// the committed set remains editable after the fact via refactor batches.
func (e *Engine) IngestHybrid(ctx context.Context, scopeID, content string) (*memory.FactRecord, error) {
	return e.ingest(ctx, scopeID, content, memory.PolicyHybrid)
}

// Ingest appends a candidate fact under the given policy. Duplicate
// content ingested twice creates two distinct records; deduplication is an
// extraction-side responsibility.
func (e *Engine) Ingest(ctx context.Context, scopeID, content string, policy memory.Policy) (*memory.FactRecord, error) {
	return e.ingest(ctx, scopeID, content, policy)
}

func (e *Engine) ingest(ctx context.Context, scopeID, content string, policy memory.Policy) (*memory.FactRecord, error) {
	record, err := e.store.Append(ctx, scopeID, content, policy.IngestState(), policy)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("fact ingested",
		"scope_id", scopeID,
		"fact_id", record.ID,
		"policy", string(policy),
		"state", string(record.State),
	)

	eventType := eventstream.EventTypeFactCommitted
	if record.State == memory.StateProposed {
		eventType = eventstream.EventTypeFactProposed
	}
	e.publish(ctx, eventType, record.ScopeID, record)

	return record, nil
}

// Approve transitions a proposed fact to committed, making it recallable.
// Fails with InvalidTransitionError if the fact is not proposed, so a
// second approval is distinguishable from success.
func (e *Engine) Approve(ctx context.Context, factID string) (*memory.FactRecord, error) {
	record, err := e.store.UpdateState(ctx, factID, memory.StateCommitted, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("fact approved", "scope_id", record.ScopeID, "fact_id", record.ID)
	e.publish(ctx, eventstream.EventTypeFactCommitted, record.ScopeID, record)

	return record, nil
}

// Reject transitions a proposed fact to rejected. Rejected is terminal.
func (e *Engine) Reject(ctx context.Context, factID string) (*memory.FactRecord, error) {
	record, err := e.store.UpdateState(ctx, factID, memory.StateRejected, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("fact rejected", "scope_id", record.ScopeID, "fact_id", record.ID)
	e.publish(ctx, eventstream.EventTypeFactRejected, record.ScopeID, record)

	return record, nil
}

// Delete removes a fact record entirely. Not idempotent: deleting an
// already-deleted fact returns NotFoundError.
func (e *Engine) Delete(ctx context.Context, factID string) error {
	record, err := e.store.Get(ctx, factID)
	if err != nil {
		return err
	}

	if err := e.store.Delete(ctx, factID); err != nil {
		return err
	}

	e.logger.Info("fact deleted", "scope_id", record.ScopeID, "fact_id", factID)
	e.publish(ctx, eventstream.EventTypeFactDeleted, record.ScopeID, nil, withFactID(factID), withPolicy(record.Policy))

	return nil
}

// Get retrieves a single fact record by id.
func (e *Engine) Get(ctx context.Context, factID string) (*memory.FactRecord, error) {
	return e.store.Get(ctx, factID)
}

// List returns a scope's fact records in creation order, optionally
// filtered by state. This is the editor view: it exposes every lifecycle
// state and must not feed recall paths.
func (e *Engine) List(ctx context.Context, scopeID string, states ...memory.State) ([]*memory.FactRecord, error) {
	return e.store.List(ctx, scopeID, states...)
}

// Recallable returns the scope's committed facts in creation order. This
// is the only state exposed to downstream recall or answer-generation
// paths, uniformly across all three policies.
func (e *Engine) Recallable(ctx context.Context, scopeID string) ([]*memory.FactRecord, error) {
	return e.store.List(ctx, scopeID, memory.StateCommitted)
}

type eventOption func(*eventstream.FactLifecycleEvent)

func withFactID(factID string) eventOption {
	return func(ev *eventstream.FactLifecycleEvent) {
		ev.FactID = factID
	}
}

func withPolicy(policy memory.Policy) eventOption {
	return func(ev *eventstream.FactLifecycleEvent) {
		ev.Policy = policy
	}
}

// publish emits a lifecycle event. Publishing is best-effort: a failed
// publish is logged, never surfaced to the mutation's caller.
func (e *Engine) publish(ctx context.Context, eventType, scopeID string, record *memory.FactRecord, opts ...eventOption) {
	event := &eventstream.FactLifecycleEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		ScopeID:       scopeID,
		Fact:          record,
	}
	if record != nil {
		event.FactID = record.ID
		event.Policy = record.Policy
	}
	for _, opt := range opts {
		opt(event)
	}

	if err := e.events.PublishFactEvent(ctx, event); err != nil {
		e.logger.Warn("failed to publish lifecycle event",
			"event_type", eventType,
			"scope_id", scopeID,
			"error", err,
		)
	}
}
