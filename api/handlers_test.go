package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/extract"
	"github.com/keepsake-sh/keepsake/pkg/logger"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/refactor"
	"github.com/keepsake-sh/keepsake/pkg/scope"
	"github.com/keepsake-sh/keepsake/pkg/store/inmemory"
	"github.com/keepsake-sh/keepsake/pkg/worker"
)

const testScope = "tokyo_2026"

// newTestServer builds a server over an in-memory driver with testScope
// already registered. The driver is shared with the returned engine so
// tests can seed and inspect facts directly.
func newTestServer(opts ...Option) (*Server, *engine.Engine, *inmemory.Driver) {
	driver := inmemory.NewDriver()
	eng := engine.New(driver)
	scopes := scope.NewRegistry(driver)

	_, err := scopes.ResolveOrCreate(context.Background(), testScope)
	Expect(err).NotTo(HaveOccurred())

	server := NewServer(
		Config{ListenAddr: ":0", DefaultPolicy: memory.PolicyHybrid},
		eng,
		scopes,
		logger.Nop(),
		opts...,
	)

	return server, eng, driver
}

// doJSON issues a request with an optional JSON body against the fiber app
// and decodes the JSON response into out (when out is non-nil).
func doJSON(server *Server, method, path string, body any, out any) *http.Response {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req)
	Expect(err).NotTo(HaveOccurred())

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, out)).To(Succeed())
	}

	return resp
}

var _ = Describe("handlePing", func() {
	It("returns pong", func() {
		server, _, _ := newTestServer()

		var body string
		resp := doJSON(server, http.MethodGet, "/ping", nil, &body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(body).To(Equal("pong"))
	})
})

var _ = Describe("scope endpoints", func() {
	Describe("handleResolveScope", func() {
		It("creates a scope", func() {
			server, _, _ := newTestServer()

			var sc memory.Scope
			resp := doJSON(server, http.MethodPost, "/scopes", ResolveScopeRequest{ID: "work_notes"}, &sc)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(sc.ID).To(Equal("work_notes"))
		})

		It("is idempotent for an existing scope", func() {
			server, _, _ := newTestServer()

			var sc memory.Scope
			resp := doJSON(server, http.MethodPost, "/scopes", ResolveScopeRequest{ID: testScope}, &sc)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(sc.ID).To(Equal(testScope))
		})

		It("rejects an empty scope id", func() {
			server, _, _ := newTestServer()

			resp := doJSON(server, http.MethodPost, "/scopes", ResolveScopeRequest{}, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("handleListScopes", func() {
		It("lists known scopes", func() {
			server, _, _ := newTestServer()
			doJSON(server, http.MethodPost, "/scopes", ResolveScopeRequest{ID: "work_notes"}, nil)

			var body struct {
				Count  int            `json:"count"`
				Scopes []memory.Scope `json:"scopes"`
			}
			resp := doJSON(server, http.MethodGet, "/scopes", nil, &body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body.Count).To(Equal(2))
		})
	})
})

var _ = Describe("handleIngest", func() {
	It("commits immediately under the opaque policy", func() {
		server, _, _ := newTestServer()

		var record memory.FactRecord
		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/facts",
			IngestRequest{Content: "Likes espresso", Policy: "opaque"}, &record)
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		Expect(record.State).To(Equal(memory.StateCommitted))
		Expect(record.Policy).To(Equal(memory.PolicyOpaque))
		Expect(record.Content).To(Equal("Likes espresso"))
	})

	It("stages under the controlled policy", func() {
		server, _, _ := newTestServer()

		var record memory.FactRecord
		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/facts",
			IngestRequest{Content: "Budget is 2000 euros", Policy: "controlled"}, &record)
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		Expect(record.State).To(Equal(memory.StateProposed))
	})

	It("falls back to the server default policy", func() {
		server, _, _ := newTestServer()

		var record memory.FactRecord
		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/facts",
			IngestRequest{Content: "Lives in Lyon"}, &record)
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		Expect(record.Policy).To(Equal(memory.PolicyHybrid))
		Expect(record.State).To(Equal(memory.StateCommitted))
	})

	It("rejects an unknown policy", func() {
		server, _, _ := newTestServer()

		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/facts",
			IngestRequest{Content: "x", Policy: "yolo"}, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("rejects empty content", func() {
		server, _, _ := newTestServer()

		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/facts",
			IngestRequest{}, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("rejects an unregistered scope", func() {
		server, _, _ := newTestServer()

		resp := doJSON(server, http.MethodPost, "/scope/nope/facts",
			IngestRequest{Content: "x", Policy: "opaque"}, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})
})

var _ = Describe("handleListFacts", func() {
	var (
		server *Server
		eng    *engine.Engine
		ctx    context.Context
	)

	BeforeEach(func() {
		server, eng, _ = newTestServer()
		ctx = context.Background()

		_, err := eng.IngestOpaque(ctx, testScope, "committed fact")
		Expect(err).NotTo(HaveOccurred())
		_, err = eng.IngestControlled(ctx, testScope, "staged fact")
		Expect(err).NotTo(HaveOccurred())
	})

	It("lists all facts without a filter", func() {
		var body struct {
			Count int                  `json:"count"`
			Facts []*memory.FactRecord `json:"facts"`
		}
		resp := doJSON(server, http.MethodGet, "/scope/"+testScope+"/facts", nil, &body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(body.Count).To(Equal(2))
	})

	It("filters by state", func() {
		var body struct {
			Count int                  `json:"count"`
			Facts []*memory.FactRecord `json:"facts"`
		}
		resp := doJSON(server, http.MethodGet, "/scope/"+testScope+"/facts?state=proposed", nil, &body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(body.Count).To(Equal(1))
		Expect(body.Facts[0].Content).To(Equal("staged fact"))
	})

	It("accepts a comma-separated state list", func() {
		var body struct {
			Count int `json:"count"`
		}
		resp := doJSON(server, http.MethodGet, "/scope/"+testScope+"/facts?state=proposed,committed", nil, &body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(body.Count).To(Equal(2))
	})

	It("rejects an unknown state", func() {
		resp := doJSON(server, http.MethodGet, "/scope/"+testScope+"/facts?state=bogus", nil, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})
})

var _ = Describe("handleRecall", func() {
	It("returns committed facts only", func() {
		server, eng, _ := newTestServer()
		ctx := context.Background()

		_, err := eng.IngestOpaque(ctx, testScope, "committed fact")
		Expect(err).NotTo(HaveOccurred())
		_, err = eng.IngestControlled(ctx, testScope, "staged fact")
		Expect(err).NotTo(HaveOccurred())

		var body struct {
			Count int                  `json:"count"`
			Facts []*memory.FactRecord `json:"facts"`
		}
		resp := doJSON(server, http.MethodGet, "/scope/"+testScope+"/recall", nil, &body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		Expect(body.Count).To(Equal(1))
		Expect(body.Facts[0].Content).To(Equal("committed fact"))
	})
})

var _ = Describe("fact endpoints", func() {
	var (
		server *Server
		eng    *engine.Engine
		staged *memory.FactRecord
		ctx    context.Context
	)

	BeforeEach(func() {
		server, eng, _ = newTestServer()
		ctx = context.Background()

		var err error
		staged, err = eng.IngestControlled(ctx, testScope, "staged fact")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("handleGetFact", func() {
		It("returns the record", func() {
			var record memory.FactRecord
			resp := doJSON(server, http.MethodGet, "/fact/"+staged.ID, nil, &record)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(record.ID).To(Equal(staged.ID))
		})

		It("returns 404 for an unknown id", func() {
			resp := doJSON(server, http.MethodGet, "/fact/nope", nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("handleApprove", func() {
		It("commits a proposed fact", func() {
			var record memory.FactRecord
			resp := doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/approve", nil, &record)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(record.State).To(Equal(memory.StateCommitted))
		})

		It("returns 409 when the fact is already committed", func() {
			doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/approve", nil, nil)

			resp := doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/approve", nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})
	})

	Describe("handleReject", func() {
		It("rejects a proposed fact", func() {
			var record memory.FactRecord
			resp := doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/reject", nil, &record)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(record.State).To(Equal(memory.StateRejected))
		})

		It("returns 409 for a second rejection", func() {
			doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/reject", nil, nil)

			resp := doJSON(server, http.MethodPost, "/fact/"+staged.ID+"/reject", nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
		})
	})

	Describe("handleDeleteFact", func() {
		It("removes the record", func() {
			resp := doJSON(server, http.MethodDelete, "/fact/"+staged.ID, nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			resp = doJSON(server, http.MethodGet, "/fact/"+staged.ID, nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})

		It("returns 404 for an already-deleted record", func() {
			doJSON(server, http.MethodDelete, "/fact/"+staged.ID, nil, nil)

			resp := doJSON(server, http.MethodDelete, "/fact/"+staged.ID, nil, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})

var _ = Describe("handleTurn", func() {
	It("returns 503 when extraction is not enabled", func() {
		server, _, _ := newTestServer()

		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/turns",
			TurnRequest{UserMessage: "hello"}, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
	})

	Context("with a worker pool", func() {
		It("accepts the turn for background extraction", func() {
			driver := inmemory.NewDriver()
			eng := engine.New(driver)
			scopes := scope.NewRegistry(driver)
			_, err := scopes.ResolveOrCreate(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())

			pool, err := worker.NewPool(&worker.Config{
				Engine:    eng,
				Extractor: &extract.Static{Candidates: []string{"User wants to surf"}},
				Logger:    logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			server := NewServer(
				Config{ListenAddr: ":0", DefaultPolicy: memory.PolicyHybrid},
				eng, scopes, logger.Nop(),
				WithWorkerPool(pool),
			)

			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/turns",
				TurnRequest{UserMessage: "Je veux faire du surf"}, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))

			pool.Close()
			facts, err := eng.Recallable(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(1))
			Expect(facts[0].Content).To(Equal("User wants to surf"))
		})

		It("rejects an empty turn", func() {
			driver := inmemory.NewDriver()
			eng := engine.New(driver)
			scopes := scope.NewRegistry(driver)

			pool, err := worker.NewPool(&worker.Config{
				Engine:    eng,
				Extractor: &extract.Static{},
				Logger:    logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			server := NewServer(
				Config{ListenAddr: ":0", DefaultPolicy: memory.PolicyHybrid},
				eng, scopes, logger.Nop(),
				WithWorkerPool(pool),
			)

			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/turns",
				TurnRequest{}, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})

var _ = Describe("handleRefactor", func() {
	It("returns 503 when refactoring is not enabled", func() {
		server, _, _ := newTestServer()

		resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor",
			RefactorRequest{Directive: "merge duplicates"}, nil)
		Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
	})

	Context("with a processor", func() {
		// newRefactorServer wires a processor whose model call replaces the
		// first committed fact with the given content.
		newRefactorServer := func(replacement string) (*Server, *engine.Engine, *memory.FactRecord) {
			driver := inmemory.NewDriver()
			eng := engine.New(driver)
			scopes := scope.NewRegistry(driver)
			ctx := context.Background()

			_, err := scopes.ResolveOrCreate(ctx, testScope)
			Expect(err).NotTo(HaveOccurred())

			committed, err := eng.IngestOpaque(ctx, testScope, "Lives in Paris")
			Expect(err).NotTo(HaveOccurred())

			call := func(_ context.Context, _ string) (string, error) {
				return fmt.Sprintf(`{"actions": [{"action": "replace", "id": %q, "content": %q}]}`,
					committed.ID, replacement), nil
			}

			server := NewServer(
				Config{ListenAddr: ":0", DefaultPolicy: memory.PolicyHybrid},
				eng, scopes, logger.Nop(),
				WithRefactorProcessor(refactor.NewProcessor(driver, call, refactor.WithLogger(logger.Nop()))),
			)

			return server, eng, committed
		}

		It("plans and applies a directive", func() {
			server, eng, committed := newRefactorServer("Lives in Lyon")

			var body RefactorResponse
			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor",
				RefactorRequest{Directive: "the user moved to Lyon"}, &body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body.Plan.Actions).To(HaveLen(1))
			Expect(body.Result).NotTo(BeNil())
			Expect(body.Result.FailedAt).To(BeNil())

			recallable, err := eng.Recallable(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(1))
			Expect(recallable[0].Content).To(Equal("Lives in Lyon"))
			Expect(recallable[0].ID).NotTo(Equal(committed.ID))
		})

		It("returns the plan without applying when plan_only is set", func() {
			server, eng, _ := newRefactorServer("Lives in Lyon")

			var body RefactorResponse
			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor?plan_only=true",
				RefactorRequest{Directive: "the user moved to Lyon"}, &body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body.Plan.Actions).To(HaveLen(1))
			Expect(body.Result).To(BeNil())

			recallable, err := eng.Recallable(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable[0].Content).To(Equal("Lives in Paris"))
		})

		It("applies explicit actions without planning", func() {
			server, eng, committed := newRefactorServer("unused")

			var body RefactorResponse
			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor",
				RefactorRequest{Actions: []refactor.Action{
					{Kind: refactor.ActionDelete, FactID: committed.ID},
				}}, &body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(body.Result).NotTo(BeNil())

			recallable, err := eng.Recallable(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(BeEmpty())
		})

		It("returns 409 with the rolled-back result when an action fails", func() {
			server, eng, committed := newRefactorServer("unused")

			var body RefactorResponse
			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor",
				RefactorRequest{Actions: []refactor.Action{
					{Kind: refactor.ActionDelete, FactID: committed.ID},
					{Kind: refactor.ActionDelete, FactID: "nope"},
				}}, &body)
			Expect(resp.StatusCode).To(Equal(fiber.StatusConflict))
			Expect(body.Result).NotTo(BeNil())
			Expect(body.Result.FailedAt).NotTo(BeNil())

			// Rolled back: the original fact is still recallable.
			recallable, err := eng.Recallable(context.Background(), testScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(recallable).To(HaveLen(1))
		})

		It("requires a directive or explicit actions", func() {
			server, _, _ := newRefactorServer("unused")

			resp := doJSON(server, http.MethodPost, "/scope/"+testScope+"/refactor",
				RefactorRequest{}, nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
