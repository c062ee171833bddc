// Package refactorcmder provides the refactor command for consolidating
// a scope's committed facts.
package refactorcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
	"github.com/keepsake-sh/keepsake/pkg/refactor"
)

const refactorLongDesc string = `Consolidate a scope's committed facts.

Interprets a natural-language directive against the committed facts of a
scope and applies the resulting edits atomically: either every edit lands
or none do. Replaced facts stay in history as superseded records pointing
at their replacements.

Use --plan-only to see the proposed edits without applying them.

Examples:
  keepsake refactor "remove facts about the old job"
  keepsake refactor "merge the coffee preferences into one fact" --plan-only
  keepsake refactor "drop duplicates" --scope user-42`

const refactorShortDesc string = "Consolidate a scope's committed facts"

func NewRefactorCmd() *cobra.Command {
	var (
		apiTarget string
		scopeID   string
		planOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "refactor <directive>",
		Short: refactorShortDesc,
		Long:  refactorLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmdutil.ResolveAPITarget(cmd, &apiTarget); err != nil {
				return err
			}
			return cmdutil.ResolveScopeID(cmd, &scopeID)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			out, err := c.Refactor(cmd.Context(), scopeID, args[0], planOnly)
			if err != nil {
				return err
			}

			printPlan(out.Plan)

			if out.Result != nil {
				fmt.Printf("  %s Applied %d edit(s)\n\n",
					cliui.SuccessMark,
					len(out.Result.Applied),
				)
			} else if !planOnly {
				fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Nothing to apply."))
			}

			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	cmdutil.AddScopeFlag(cmd, &scopeID)
	cmd.Flags().BoolVar(&planOnly, "plan-only", false, "Show the proposed edits without applying them")

	return cmd
}

func printPlan(plan *refactor.Plan) {
	if plan == nil {
		return
	}

	if plan.Reason != "" {
		fmt.Printf("\n  %s %s\n\n",
			cliui.KeyStyle.Render("No changes:"),
			cliui.DimStyle.Render(plan.Reason),
		)
		return
	}

	fmt.Println()
	for _, action := range plan.Actions {
		switch action.Kind {
		case refactor.ActionDelete:
			fmt.Printf("  %s %s\n",
				cliui.StateStyle.Render("delete "),
				cliui.IDStyle.Render(action.FactID),
			)
		case refactor.ActionReplace:
			fmt.Printf("  %s %s %s\n",
				cliui.StateStyle.Render("replace"),
				cliui.IDStyle.Render(action.FactID),
				cliui.PreviewStyle.Render("→ "+action.NewContent),
			)
		case refactor.ActionKeep:
			fmt.Printf("  %s %s\n",
				cliui.DimStyle.Render("keep   "),
				cliui.DimStyle.Render(action.FactID),
			)
		}
	}
	fmt.Println()
}
