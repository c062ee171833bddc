package servecmder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/api/mcp"
	"github.com/keepsake-sh/keepsake/pkg/config"
	"github.com/keepsake-sh/keepsake/pkg/engine"
	"github.com/keepsake-sh/keepsake/pkg/logger"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/scope"
)

const mcpLongDesc string = `Run the keepsake MCP server.

Exposes memory_recall and memory_ingest tools over the Model Context
Protocol's streamable HTTP transport, so agents can read and write
long-term memory directly.

Examples:
  keepsake serve mcp
  keepsake serve mcp --listen :9001`

const mcpShortDesc string = "Run the keepsake MCP server"

// mcpFlagKeys lists the registry keys bound on the mcp subcommand.
var mcpFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagDefaultPolicy,
}

func newMCPCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, mcpFlagKeys)
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
			return cmder.runMCP(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagDefaultPolicy, &cmder.defaultPolicy)

	return cmd
}

func (c *serveCommander) runMCP(ctx context.Context) error {
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

	eng := engine.New(driver, engine.WithLogger(c.logger))
	registry := scope.NewRegistry(driver)

	server, err := mcp.NewServer(mcp.Config{
		Engine:        eng,
		Scopes:        registry,
		DefaultPolicy: policy,
		Logger:        c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	c.logger.Info("starting MCP server", "listen", c.listen)

	httpServer := &http.Server{
		Addr:    c.listen,
		Handler: server.Handler(),
	}
	return httpServer.ListenAndServe()
}
