// Package keepsakecmder
package keepsakecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/keepsake-sh/keepsake/cmd/keepsake/config"
	forgetcmder "github.com/keepsake-sh/keepsake/cmd/keepsake/forget"
	recallcmder "github.com/keepsake-sh/keepsake/cmd/keepsake/recall"
	refactorcmder "github.com/keepsake-sh/keepsake/cmd/keepsake/refactor"
	remembercmder "github.com/keepsake-sh/keepsake/cmd/keepsake/remember"
	reviewcmder "github.com/keepsake-sh/keepsake/cmd/keepsake/review"
	scopecmder "github.com/keepsake-sh/keepsake/cmd/keepsake/scope"
	servecmder "github.com/keepsake-sh/keepsake/cmd/keepsake/serve"
	versioncmder "github.com/keepsake-sh/keepsake/cmd/version"
)

const keepsakeLongDesc string = `Keepsake is a long-term memory engine for conversational agents.

Run the server using:
  keepsake serve           Run the memory API server
  keepsake serve mcp       Run the MCP server

Work with memories using:
  keepsake remember        Store a fact in a scope
  keepsake recall          Recall committed facts for a scope
  keepsake review          Review staged facts awaiting approval
  keepsake refactor        Consolidate a scope's committed facts`

const keepsakeShortDesc string = "Keepsake - Agent Memory"

func NewKeepsakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keepsake",
		Short: keepsakeShortDesc,
		Long:  keepsakeLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .keepsake/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(scopecmder.NewScopeCmd())
	cmd.AddCommand(remembercmder.NewRememberCmd())
	cmd.AddCommand(recallcmder.NewRecallCmd())
	cmd.AddCommand(reviewcmder.NewReviewCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(refactorcmder.NewRefactorCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
