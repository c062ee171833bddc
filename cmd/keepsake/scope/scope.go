// Package scopecmder provides the scope command for managing memory scopes.
package scopecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
	"github.com/keepsake-sh/keepsake/pkg/config"
)

const scopeLongDesc string = `Manage memory scopes.

A scope is an isolated memory partition, typically one per user or
conversation. Facts never leak across scopes.

Use subcommands to create, list, or activate scopes:
  keepsake scope create <id>    Resolve or create a scope
  keepsake scope list           List all known scopes
  keepsake scope use <id>       Set the active scope for CLI commands
  keepsake scope current        Show the active scope

Examples:
  keepsake scope create user-42
  keepsake scope use user-42
  keepsake recall`

const scopeShortDesc string = "Manage memory scopes"

func NewScopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: scopeShortDesc,
		Long:  scopeLongDesc,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newUseCmd())
	cmd.AddCommand(newCurrentCmd())

	return cmd
}

func newCreateCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Resolve or create a scope",
		Long: `Resolve or create a scope by identifier.

Resolving the same identifier twice returns the same scope, so this is
safe to run repeatedly.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.ResolveAPITarget(cmd, &apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			scope, err := c.ResolveScope(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("  %s Scope %s ready\n",
				cliui.SuccessMark,
				cliui.IDStyle.Render(scope.ID),
			)
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	return cmd
}

func newListCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all known scopes",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.ResolveAPITarget(cmd, &apiTarget)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			out, err := c.ListScopes(cmd.Context())
			if err != nil {
				return err
			}

			if out.Count == 0 {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("No scopes yet."))
				return nil
			}

			for _, scope := range out.Scopes {
				fmt.Printf("  %s  %s\n",
					cliui.IDStyle.Render(scope.ID),
					cliui.DimStyle.Render(scope.CreatedAt.Format("2006-01-02 15:04")),
				)
			}
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	return cmd
}

func newUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Set the active scope for CLI commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if err := cfger.SetConfigValue("memory.active_scope", args[0]); err != nil {
				return err
			}

			fmt.Printf("  %s Active scope is now %s\n",
				cliui.SuccessMark,
				cliui.IDStyle.Render(args[0]),
			)
			return nil
		},
	}

	return cmd
}

func newCurrentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the active scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			value, err := cfger.GetConfigValue("memory.active_scope")
			if err != nil {
				return err
			}

			if value == "" {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("No active scope set. Use: keepsake scope use <id>"))
				return nil
			}

			fmt.Printf("  %s  %s\n",
				cliui.KeyStyle.Render("Active scope:"),
				cliui.IDStyle.Render(value),
			)
			return nil
		},
	}

	return cmd
}
