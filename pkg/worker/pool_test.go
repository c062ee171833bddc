package worker

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/extract"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/store/inmemory"
)

const testScope = "tokyo_2026"

// failingExtractor always errors, simulating an unreachable model.
type failingExtractor struct{}

func (failingExtractor) Extract(_ context.Context, _ extract.ConversationTurn) ([]string, error) {
	return nil, errors.New("model unreachable")
}

// newTestPool creates a worker pool over an in-memory driver with a scope
// already registered. Callers should "wp.Close()" to drain enqueued jobs
// before asserting store state.
func newTestPool(extractor extract.Extractor) (*Pool, *inmemory.Driver) {
	driver := inmemory.NewDriver()
	err := driver.CreateScope(context.Background(), &memory.Scope{ID: testScope})
	Expect(err).NotTo(HaveOccurred())

	wp, err := NewPool(&Config{
		Engine:    engine.New(driver),
		Extractor: extractor,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewPool", func() {
		It("requires an engine", func() {
			_, err := NewPool(&Config{Extractor: &extract.Static{}})
			Expect(err).To(HaveOccurred())
		})

		It("requires an extractor", func() {
			_, err := NewPool(&Config{Engine: engine.New(inmemory.NewDriver())})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _ := newTestPool(&extract.Static{})

			ok := wp.Enqueue(Job{
				ScopeID: testScope,
				Policy:  memory.PolicyOpaque,
				Turn:    extract.ConversationTurn{UserMessage: "hello"},
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("returns false when the queue is full", func() {
			// A single slow worker with a one-slot queue: the first job
			// occupies the worker, the second fills the queue.
			block := make(chan struct{})
			driver := inmemory.NewDriver()
			Expect(driver.CreateScope(ctx, &memory.Scope{ID: testScope})).To(Succeed())

			wp, err := NewPool(&Config{
				Engine: engine.New(driver),
				Extractor: extractFunc(func(context.Context, extract.ConversationTurn) ([]string, error) {
					<-block
					return nil, nil
				}),
				NumWorkers: 1,
				QueueSize:  1,
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() bool {
				return !wp.Enqueue(Job{ScopeID: testScope, Policy: memory.PolicyOpaque})
			}).Should(BeTrue())

			close(block)
			wp.Close()
		})
	})

	Describe("Job processing", func() {
		Context("with candidates extracted from the turn", func() {
			It("ingests each candidate under the job's policy", func() {
				wp, driver := newTestPool(&extract.Static{
					Candidates: []string{"User wants to surf", "Budget is 2000 euros"},
				})

				wp.Enqueue(Job{
					ScopeID: testScope,
					Policy:  memory.PolicyControlled,
					Turn:    extract.ConversationTurn{UserMessage: "Je veux faire du surf"},
				})
				wp.Close()

				facts, err := driver.List(ctx, testScope)
				Expect(err).NotTo(HaveOccurred())
				Expect(facts).To(HaveLen(2))
				for _, fact := range facts {
					Expect(fact.Policy).To(Equal(memory.PolicyControlled))
					Expect(fact.State).To(Equal(memory.StateProposed))
				}
			})

			It("commits immediately under the opaque policy", func() {
				wp, driver := newTestPool(&extract.Static{Candidates: []string{"Likes espresso"}})

				wp.Enqueue(Job{
					ScopeID: testScope,
					Policy:  memory.PolicyOpaque,
					Turn:    extract.ConversationTurn{UserMessage: "I love espresso"},
				})
				wp.Close()

				facts, err := driver.List(ctx, testScope, memory.StateCommitted)
				Expect(err).NotTo(HaveOccurred())
				Expect(facts).To(HaveLen(1))
				Expect(facts[0].Content).To(Equal("Likes espresso"))
			})
		})

		Context("when the turn carries nothing durable", func() {
			It("stores nothing", func() {
				wp, driver := newTestPool(&extract.Static{})

				wp.Enqueue(Job{
					ScopeID: testScope,
					Policy:  memory.PolicyOpaque,
					Turn:    extract.ConversationTurn{UserMessage: "hi!"},
				})
				wp.Close()

				Expect(driver.Count()).To(Equal(0))
			})
		})

		Context("when extraction fails", func() {
			It("drops the turn without mutating the store", func() {
				wp, driver := newTestPool(failingExtractor{})

				wp.Enqueue(Job{
					ScopeID: testScope,
					Policy:  memory.PolicyOpaque,
					Turn:    extract.ConversationTurn{UserMessage: "hello"},
				})
				wp.Close()

				Expect(driver.Count()).To(Equal(0))
			})
		})

		Context("when a candidate targets an unknown scope", func() {
			It("skips it and keeps processing later jobs", func() {
				wp, driver := newTestPool(&extract.Static{Candidates: []string{"Lives in Lyon"}})

				wp.Enqueue(Job{ScopeID: "nope", Policy: memory.PolicyOpaque})
				wp.Enqueue(Job{ScopeID: testScope, Policy: memory.PolicyOpaque})
				wp.Close()

				facts, err := driver.List(ctx, testScope)
				Expect(err).NotTo(HaveOccurred())
				Expect(facts).To(HaveLen(1))
			})
		})
	})
})

// extractFunc adapts a function to the Extractor interface.
type extractFunc func(ctx context.Context, turn extract.ConversationTurn) ([]string, error)

func (f extractFunc) Extract(ctx context.Context, turn extract.ConversationTurn) ([]string, error) {
	return f(ctx, turn)
}
