package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/refactor"
	"github.com/keepsake-sh/keepsake/pkg/scope"
	"github.com/keepsake-sh/keepsake/pkg/worker"
)

// Server is the API server for managing and querying memory scopes and facts.
type Server struct {
	config   Config
	engine   *engine.Engine
	scopes   *scope.Registry
	refactor *refactor.Processor
	pool     *worker.Pool
	logger   *slog.Logger
	app      *fiber.App
}

// Option configures optional Server components.
type Option func(*Server)

// WithRefactorProcessor wires the refactor endpoint. Without it the
// endpoint responds 503.
func WithRefactorProcessor(p *refactor.Processor) Option {
	return func(s *Server) {
		s.refactor = p
	}
}

// WithWorkerPool wires the background extraction endpoint. Without it the
// turns endpoint responds 503.
func WithWorkerPool(p *worker.Pool) Option {
	return func(s *Server) {
		s.pool = p
	}
}

// NewServer creates a new API server.
// The engine and registry are injected to allow sharing with other
// components (e.g., the MCP server when run in the same process).
func NewServer(config Config, eng *engine.Engine, scopes *scope.Registry, logger *slog.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		scopes: scopes,
		logger: logger,
		app:    app,
	}

	for _, opt := range opts {
		opt(s)
	}

	app.Get("/ping", s.handlePing)

	app.Get("/scopes", s.handleListScopes)
	app.Post("/scopes", s.handleResolveScope)

	app.Get("/scope/:id/facts", s.handleListFacts)
	app.Get("/scope/:id/recall", s.handleRecall)
	app.Post("/scope/:id/facts", s.handleIngest)
	app.Post("/scope/:id/turns", s.handleTurn)
	app.Post("/scope/:id/refactor", s.handleRefactor)

	app.Get("/fact/:id", s.handleGetFact)
	app.Post("/fact/:id/approve", s.handleApprove)
	app.Post("/fact/:id/reject", s.handleReject)
	app.Delete("/fact/:id", s.handleDeleteFact)

	return s
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
