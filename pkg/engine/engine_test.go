package engine

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsake-sh/keepsake/pkg/eventstream"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store"
	"github.com/keepsake-sh/keepsake/pkg/store/inmemory"
)

const testScope = "tokyo_2026"

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []*eventstream.FactLifecycleEvent
}

func (c *capturePublisher) PublishFactEvent(_ context.Context, event *eventstream.FactLifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.EventType
	}
	return out
}

func newTestEngine() (*Engine, *capturePublisher) {
	driver := inmemory.NewDriver()
	err := driver.CreateScope(context.Background(), &memory.Scope{
		ID:        testScope,
		CreatedAt: time.Now().UTC(),
	})
	Expect(err).NotTo(HaveOccurred())

	events := &capturePublisher{}
	return New(driver, WithEvents(events)), events
}

var _ = Describe("Engine", func() {
	var (
		eng    *Engine
		events *capturePublisher
		ctx    context.Context
	)

	BeforeEach(func() {
		eng, events = newTestEngine()
		ctx = context.Background()
	})

	Describe("IngestOpaque", func() {
		It("commits immediately and is recallable at once", func() {
			record, err := eng.IngestOpaque(ctx, testScope, "likes espresso")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.State).To(Equal(memory.StateCommitted))
			Expect(record.Policy).To(Equal(memory.PolicyOpaque))

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(1))
			Expect(recallable[0].ID).To(Equal(record.ID))

			Expect(events.types()).To(Equal([]string{eventstream.EventTypeFactCommitted}))
		})
	})

	Describe("IngestControlled", func() {
		It("stages the fact outside the recallable view", func() {
			record, err := eng.IngestControlled(ctx, testScope, "budget is 2000 euros")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.State).To(Equal(memory.StateProposed))

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(BeEmpty())

			Expect(events.types()).To(Equal([]string{eventstream.EventTypeFactProposed}))
		})

		It("becomes recallable only after Approve", func() {
			record, err := eng.IngestControlled(ctx, testScope, "budget is 2000 euros")
			Expect(err).NotTo(HaveOccurred())

			approved, err := eng.Approve(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.State).To(Equal(memory.StateCommitted))

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(1))
		})
	})

	Describe("IngestHybrid", func() {
		It("commits immediately under the hybrid policy", func() {
			record, err := eng.IngestHybrid(ctx, testScope, "wants to surf")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.State).To(Equal(memory.StateCommitted))
			Expect(record.Policy).To(Equal(memory.PolicyHybrid))
		})
	})

	Describe("Ingest", func() {
		It("creates two records for duplicate content", func() {
			_, err := eng.Ingest(ctx, testScope, "same fact", memory.PolicyOpaque)
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.Ingest(ctx, testScope, "same fact", memory.PolicyOpaque)
			Expect(err).NotTo(HaveOccurred())

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(2))
		})

		It("fails for an unregistered scope", func() {
			_, err := eng.Ingest(ctx, "ghost", "x", memory.PolicyOpaque)
			Expect(err).To(BeAssignableToTypeOf(store.InvalidScopeError{}))
		})
	})

	Describe("Approve", func() {
		It("fails on a second approval", func() {
			record, err := eng.IngestControlled(ctx, testScope, "staged")
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Approve(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Approve(ctx, record.ID)
			Expect(err).To(BeAssignableToTypeOf(store.InvalidTransitionError{}))
		})

		It("fails for an already-committed opaque fact", func() {
			record, err := eng.IngestOpaque(ctx, testScope, "committed")
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Approve(ctx, record.ID)
			Expect(err).To(BeAssignableToTypeOf(store.InvalidTransitionError{}))
		})
	})

	Describe("Reject", func() {
		It("is terminal: a rejected fact cannot be approved", func() {
			record, err := eng.IngestControlled(ctx, testScope, "staged")
			Expect(err).NotTo(HaveOccurred())

			rejected, err := eng.Reject(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rejected.State).To(Equal(memory.StateRejected))

			_, err = eng.Approve(ctx, record.ID)
			Expect(err).To(BeAssignableToTypeOf(store.InvalidTransitionError{}))

			Expect(events.types()).To(Equal([]string{
				eventstream.EventTypeFactProposed,
				eventstream.EventTypeFactRejected,
			}))
		})

		It("keeps the rejected record visible in listings", func() {
			record, err := eng.IngestControlled(ctx, testScope, "staged")
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Reject(ctx, record.ID)
			Expect(err).NotTo(HaveOccurred())

			all, err := eng.List(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(BeEmpty())
		})
	})

	Describe("Delete", func() {
		It("removes the record from every listing", func() {
			record, err := eng.IngestOpaque(ctx, testScope, "gone soon")
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.Delete(ctx, record.ID)).To(Succeed())

			all, err := eng.List(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("returns NotFoundError on a second delete", func() {
			record, err := eng.IngestOpaque(ctx, testScope, "gone soon")
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.Delete(ctx, record.ID)).To(Succeed())
			Expect(eng.Delete(ctx, record.ID)).To(BeAssignableToTypeOf(store.NotFoundError{}))
		})

		It("emits a deleted event carrying the fact id", func() {
			record, err := eng.IngestOpaque(ctx, testScope, "gone soon")
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.Delete(ctx, record.ID)).To(Succeed())

			Expect(events.types()).To(Equal([]string{
				eventstream.EventTypeFactCommitted,
				eventstream.EventTypeFactDeleted,
			}))

			deleted := events.events[1]
			Expect(deleted.Fact).To(BeNil())
			Expect(deleted.FactID).To(Equal(record.ID))
			Expect(deleted.Policy).To(Equal(memory.PolicyOpaque))
		})
	})

	Describe("Recallable", func() {
		It("returns committed facts only, in creation order", func() {
			first, err := eng.IngestHybrid(ctx, testScope, "first")
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.IngestControlled(ctx, testScope, "staged")
			Expect(err).NotTo(HaveOccurred())
			second, err := eng.IngestOpaque(ctx, testScope, "second")
			Expect(err).NotTo(HaveOccurred())

			recallable, err := eng.Recallable(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(2))
			Expect(recallable[0].ID).To(Equal(first.ID))
			Expect(recallable[1].ID).To(Equal(second.ID))
		})
	})
})
