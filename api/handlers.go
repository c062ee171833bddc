package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/keepsake-sh/keepsake/pkg/extract"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/refactor"
	"github.com/keepsake-sh/keepsake/pkg/store"
	"github.com/keepsake-sh/keepsake/pkg/worker"
)

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResolveScopeRequest names the scope to resolve or create.
type ResolveScopeRequest struct {
	ID string `json:"id"`
}

// IngestRequest is one fact submitted for ingestion.
type IngestRequest struct {
	Content string `json:"content"`

	// Policy is "opaque", "controlled", or "hybrid". Empty selects the
	// server default.
	Policy string `json:"policy,omitempty"`
}

// TurnRequest is one conversation turn submitted for background extraction.
type TurnRequest struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	Policy           string `json:"policy,omitempty"`
}

// RefactorRequest carries either a natural-language directive to plan and
// apply, or an explicit action list to apply directly.
type RefactorRequest struct {
	Directive string            `json:"directive,omitempty"`
	Actions   []refactor.Action `json:"actions,omitempty"`
}

// RefactorResponse reports the plan and, unless plan_only was set, the
// apply result.
type RefactorResponse struct {
	Plan   *refactor.Plan   `json:"plan"`
	Result *refactor.Result `json:"result,omitempty"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListScopes returns all known scopes.
func (s *Server) handleListScopes(c *fiber.Ctx) error {
	scopes, err := s.scopes.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list scopes"})
	}

	return c.JSON(map[string]any{
		"count":  len(scopes),
		"scopes": scopes,
	})
}

// handleResolveScope resolves an existing scope or creates it. The call is
// idempotent: resolving the same identifier twice returns the same scope.
func (s *Server) handleResolveScope(c *fiber.Ctx) error {
	var req ResolveScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "scope id required"})
	}

	sc, err := s.scopes.ResolveOrCreate(c.Context(), req.ID)
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(sc)
}

// handleListFacts returns fact records in a scope, optionally filtered by
// lifecycle state via ?state=committed or ?state=proposed,committed.
func (s *Server) handleListFacts(c *fiber.Ctx) error {
	scopeID := c.Params("id")

	var states []memory.State
	if raw := c.Query("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			state := memory.State(strings.TrimSpace(part))
			if !state.Valid() {
				return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown state: " + string(state)})
			}
			states = append(states, state)
		}
	}

	facts, err := s.engine.List(c.Context(), scopeID, states...)
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(map[string]any{
		"count": len(facts),
		"facts": facts,
	})
}

// handleRecall returns the recallable view of a scope: committed facts only,
// in stable creation order.
func (s *Server) handleRecall(c *fiber.Ctx) error {
	facts, err := s.engine.Recallable(c.Context(), c.Params("id"))
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(map[string]any{
		"count": len(facts),
		"facts": facts,
	})
}

// handleIngest admits one fact into a scope under the requested policy.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content required"})
	}

	policy, ok := s.resolvePolicy(req.Policy)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown policy: " + req.Policy})
	}

	record, err := s.engine.Ingest(c.Context(), c.Params("id"), req.Content, policy)
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

// handleTurn enqueues a conversation turn for background extraction.
// Responds 202 when accepted, 503 when extraction is disabled or the
// queue is full.
func (s *Server) handleTurn(c *fiber.Ctx) error {
	if s.pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "extraction is not enabled"})
	}

	var req TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.UserMessage == "" && req.AssistantMessage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "turn is empty"})
	}

	policy, ok := s.resolvePolicy(req.Policy)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "unknown policy: " + req.Policy})
	}

	accepted := s.pool.Enqueue(worker.Job{
		ScopeID: c.Params("id"),
		Policy:  policy,
		Turn: extract.ConversationTurn{
			UserMessage:      req.UserMessage,
			AssistantMessage: req.AssistantMessage,
		},
	})
	if !accepted {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "extraction queue is full"})
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// handleRefactor plans and applies a refactor pass over a scope's committed
// facts. With ?plan_only=true the plan is returned without applying it.
// Explicit actions in the request body skip planning entirely.
func (s *Server) handleRefactor(c *fiber.Ctx) error {
	if s.refactor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "refactoring is not enabled"})
	}

	var req RefactorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	scopeID := c.Params("id")

	plan := &refactor.Plan{Actions: req.Actions}
	if len(req.Actions) == 0 {
		if req.Directive == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "directive or actions required"})
		}

		var err error
		plan, err = s.refactor.Plan(c.Context(), scopeID, req.Directive)
		if err != nil {
			return s.errorStatus(c, err)
		}
	}

	if c.QueryBool("plan_only") || plan.NoOp() {
		return c.JSON(RefactorResponse{Plan: plan})
	}

	result, err := s.refactor.Apply(c.Context(), scopeID, plan.Actions)
	if err != nil {
		var partial refactor.PartialFailureError
		if errors.As(err, &partial) {
			return c.Status(fiber.StatusConflict).JSON(RefactorResponse{Plan: plan, Result: result})
		}
		return s.errorStatus(c, err)
	}

	return c.JSON(RefactorResponse{Plan: plan, Result: result})
}

// handleGetFact returns a single fact record by its id.
func (s *Server) handleGetFact(c *fiber.Ctx) error {
	record, err := s.engine.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(record)
}

// handleApprove commits a proposed fact.
func (s *Server) handleApprove(c *fiber.Ctx) error {
	record, err := s.engine.Approve(c.Context(), c.Params("id"))
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(record)
}

// handleReject rejects a proposed fact.
func (s *Server) handleReject(c *fiber.Ctx) error {
	record, err := s.engine.Reject(c.Context(), c.Params("id"))
	if err != nil {
		return s.errorStatus(c, err)
	}

	return c.JSON(record)
}

// handleDeleteFact physically removes a fact record.
func (s *Server) handleDeleteFact(c *fiber.Ctx) error {
	if err := s.engine.Delete(c.Context(), c.Params("id")); err != nil {
		return s.errorStatus(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// resolvePolicy parses a policy name, falling back to the server default
// when empty. The second return is false for unknown names.
func (s *Server) resolvePolicy(name string) (memory.Policy, bool) {
	if name == "" {
		return s.config.DefaultPolicy, true
	}

	policy := memory.Policy(name)
	if !policy.Valid() {
		return "", false
	}

	return policy, true
}

// errorStatus maps store errors to HTTP statuses.
func (s *Server) errorStatus(c *fiber.Ctx, err error) error {
	var (
		notFound      store.NotFoundError
		scopeNotFound store.ScopeNotFoundError
		invalidScope  store.InvalidScopeError
		badTransition store.InvalidTransitionError
	)

	switch {
	case errors.As(err, &notFound), errors.As(err, &scopeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &invalidScope):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	case errors.As(err, &badTransition):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "internal error"})
	}
}
