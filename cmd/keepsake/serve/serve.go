// Package servecmder provides the serve command for running the keepsake
// memory API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keepsake-sh/keepsake/api"
	"github.com/keepsake-sh/keepsake/pkg/config"
	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/eventstream"
	eskafka "github.com/keepsake-sh/keepsake/pkg/eventstream/kafka"
	esnop "github.com/keepsake-sh/keepsake/pkg/eventstream/nop"
	"github.com/keepsake-sh/keepsake/pkg/extract"
	"github.com/keepsake-sh/keepsake/pkg/llm"
	"github.com/keepsake-sh/keepsake/pkg/logger"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/refactor"
	"github.com/keepsake-sh/keepsake/pkg/scope"
	"github.com/keepsake-sh/keepsake/pkg/store"
	"github.com/keepsake-sh/keepsake/pkg/store/inmemory"
	"github.com/keepsake-sh/keepsake/pkg/store/postgres"
	"github.com/keepsake-sh/keepsake/pkg/store/sqlite"
	"github.com/keepsake-sh/keepsake/pkg/worker"
)

const serveLongDesc string = `Run the keepsake memory API server.

The server exposes scope management, fact ingestion, recall, review, and
refactoring over HTTP. Configuration follows the usual precedence:
flags > KEEPSAKE_* environment variables > config.toml > defaults.

Examples:
  keepsake serve
  keepsake serve --listen :9000 --storage-provider inmemory
  keepsake serve --sqlite /var/lib/keepsake/keepsake.db
  keepsake serve mcp`

const serveShortDesc string = "Run the keepsake API server"

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagStorageProvider: {
		Name:        "storage-provider",
		ViperKey:    "storage.provider",
		Description: "Fact store backend (sqlite, postgres, inmemory)",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database",
	},
	config.FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_url",
		Description: "Postgres connection string",
	},
	config.FlagLLMProvider: {
		Name:        "llm-provider",
		ViperKey:    "llm.provider",
		Description: "LLM provider for extraction and refactoring (openai, anthropic, ollama)",
	},
	config.FlagLLMModel: {
		Name:        "llm-model",
		ViperKey:    "llm.model",
		Description: "Model used for extraction and refactor planning",
	},
	config.FlagLLMTarget: {
		Name:        "llm-target",
		ViperKey:    "llm.target",
		Description: "Base URL override for the LLM provider",
	},
	config.FlagExtractionWorkers: {
		Name:        "extraction-workers",
		ViperKey:    "extraction.workers",
		Description: "Number of background extraction workers",
	},
	config.FlagEventsProvider: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Lifecycle event stream backend (nop, kafka)",
	},
	config.FlagEventsBrokers: {
		Name:        "events-brokers",
		ViperKey:    "events.brokers",
		Description: "Comma-separated Kafka bootstrap brokers",
	},
	config.FlagEventsTopic: {
		Name:        "events-topic",
		ViperKey:    "events.topic",
		Description: "Kafka topic for lifecycle events",
	},
	config.FlagDefaultPolicy: {
		Name:        "default-policy",
		ViperKey:    "memory.default_policy",
		Description: "Ingestion policy when a request names none (opaque, controlled, hybrid)",
	},
}

// serveFlagKeys lists the registry keys bound on the serve command.
var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagLLMProvider,
	config.FlagLLMModel,
	config.FlagLLMTarget,
	config.FlagExtractionWorkers,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
	config.FlagDefaultPolicy,
}

type serveCommander struct {
	listen            string
	storageProvider   string
	sqlitePath        string
	postgresURL       string
	llmProvider       string
	llmModel          string
	llmTarget         string
	extractionWorkers uint
	eventsProvider    string
	eventsBrokers     string
	eventsTopic       string
	defaultPolicy     string

	debug  bool
	viper  *viper.Viper
	logger *slog.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.resolve()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMProvider, &cmder.llmProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMModel, &cmder.llmModel)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMTarget, &cmder.llmTarget)
	config.AddUintFlag(cmd, serveFlags, config.FlagExtractionWorkers, &cmder.extractionWorkers)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsTopic, &cmder.eventsTopic)
	config.AddStringFlag(cmd, serveFlags, config.FlagDefaultPolicy, &cmder.defaultPolicy)

	cmd.AddCommand(newMCPCmd())

	return cmd
}

// resolve reads final values out of viper after flag binding.
func (c *serveCommander) resolve() {
	c.listen = c.viper.GetString("api.listen")
	c.storageProvider = c.viper.GetString("storage.provider")
	c.sqlitePath = c.viper.GetString("storage.sqlite_path")
	c.postgresURL = c.viper.GetString("storage.postgres_url")
	c.llmProvider = c.viper.GetString("llm.provider")
	c.llmModel = c.viper.GetString("llm.model")
	c.llmTarget = c.viper.GetString("llm.target")
	c.extractionWorkers = c.viper.GetUint("extraction.workers")
	c.eventsProvider = c.viper.GetString("events.provider")
	c.eventsBrokers = c.viper.GetString("events.brokers")
	c.eventsTopic = c.viper.GetString("events.topic")
	c.defaultPolicy = c.viper.GetString("memory.default_policy")
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
	)

	policy := memory.Policy(c.defaultPolicy)
	if !policy.Valid() {
		return fmt.Errorf("unknown default policy: %q", c.defaultPolicy)
	}

	driver, err := c.newStoreDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	events, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer events.Close()

	eng := engine.New(driver,
		engine.WithEvents(events),
		engine.WithLogger(c.logger),
	)
	registry := scope.NewRegistry(driver)

	call, err := llm.NewCaller(llm.Config{
		Provider: c.llmProvider,
		Model:    c.llmModel,
		APIKey:   c.viper.GetString("llm.api_key"),
		BaseURL:  c.llmTarget,
	})
	if err != nil {
		return fmt.Errorf("creating LLM caller: %w", err)
	}

	processor := refactor.NewProcessor(driver, call,
		refactor.WithLogger(c.logger),
	)

	opts := []api.Option{
		api.WithRefactorProcessor(processor),
	}

	if c.viper.GetBool("extraction.enabled") {
		pool, err := worker.NewPool(&worker.Config{
			Engine:     eng,
			Extractor:  extract.NewLLM(call),
			NumWorkers: c.extractionWorkers,
			Logger:     c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating extraction pool: %w", err)
		}
		defer pool.Close()

		opts = append(opts, api.WithWorkerPool(pool))
	}

	server := api.NewServer(api.Config{
		ListenAddr:    c.listen,
		DefaultPolicy: policy,
	}, eng, registry, c.logger, opts...)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

func (c *serveCommander) newStoreDriver(ctx context.Context) (store.Driver, error) {
	switch c.storageProvider {
	case "sqlite":
		driver, err := sqlite.NewDriver(c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.sqlitePath)
		return driver, nil

	case "postgres":
		driver, err := postgres.NewDriver(ctx, c.postgresURL)
		if err != nil {
			return nil, fmt.Errorf("creating Postgres store: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return driver, nil

	case "inmemory", "":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage provider: %q", c.storageProvider)
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.eventsProvider {
	case "kafka":
		publisher, err := eskafka.NewPublisher(eskafka.Config{
			Brokers: strings.Split(c.eventsBrokers, ","),
			Topic:   c.eventsTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating Kafka publisher: %w", err)
		}
		c.logger.Info("publishing lifecycle events to Kafka",
			"brokers", c.eventsBrokers,
			"topic", c.eventsTopic,
		)
		return publisher, nil

	case "nop", "":
		return esnop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", c.eventsProvider)
	}
}
