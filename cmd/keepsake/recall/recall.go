// Package recallcmder provides the recall command for reading committed facts.
package recallcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
)

const recallLongDesc string = `Recall committed facts for a scope.

Returns only committed facts, in stable creation order. Staged, rejected,
and superseded facts are never part of the recallable view.

Use --quiet to output only fact content, one per line. This is useful for
piping memory into a prompt.

Examples:
  keepsake recall
  keepsake recall --scope user-42
  keepsake recall --quiet`

const recallShortDesc string = "Recall committed facts for a scope"

func NewRecallCmd() *cobra.Command {
	var (
		apiTarget string
		scopeID   string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "recall",
		Short: recallShortDesc,
		Long:  recallLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmdutil.ResolveAPITarget(cmd, &apiTarget); err != nil {
				return err
			}
			return cmdutil.ResolveScopeID(cmd, &scopeID)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			out, err := c.Recall(cmd.Context(), scopeID)
			if err != nil {
				return err
			}

			if quiet {
				for _, fact := range out.Facts {
					fmt.Println(fact.Content)
				}
				return nil
			}

			if out.Count == 0 {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("No committed facts in scope "+scopeID+"."))
				return nil
			}

			fmt.Printf("\n  %s %s\n\n",
				cliui.KeyStyle.Render("Scope:"),
				cliui.IDStyle.Render(scopeID),
			)

			for i, fact := range out.Facts {
				fmt.Printf("  %s %s %s\n",
					cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
					cliui.PreviewStyle.Render(fact.Content),
					cliui.DimStyle.Render(fact.ID[:8]),
				)
			}

			fmt.Println()
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	cmdutil.AddScopeFlag(cmd, &scopeID)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Output only fact content, one per line (for piping)")

	return cmd
}
