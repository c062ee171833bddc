// Package reviewcmder provides the review command for staged facts.
package reviewcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
	"github.com/keepsake-sh/keepsake/pkg/memory"
	"github.com/keepsake-sh/keepsake/pkg/utils"
)

const reviewLongDesc string = `Review staged facts awaiting approval.

Facts ingested under the "controlled" policy are staged rather than
committed. Listing shows the staging queue for a scope; approve commits a
fact into the recallable view, reject discards it permanently.

Examples:
  keepsake review
  keepsake review --scope user-42
  keepsake review approve 6e1a9c3f-...
  keepsake review reject 6e1a9c3f-...`

const reviewShortDesc string = "Review staged facts awaiting approval"

func NewReviewCmd() *cobra.Command {
	var (
		apiTarget string
		scopeID   string
	)

	cmd := &cobra.Command{
		Use:   "review",
		Short: reviewShortDesc,
		Long:  reviewLongDesc,
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

			out, err := c.ListFacts(cmd.Context(), scopeID, string(memory.StateProposed))
			if err != nil {
				return err
			}

			if out.Count == 0 {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("Nothing staged in scope "+scopeID+"."))
				return nil
			}

			fmt.Printf("\n  %s %s\n\n",
				cliui.KeyStyle.Render("Staged in scope:"),
				cliui.IDStyle.Render(scopeID),
			)

			for _, fact := range out.Facts {
				fmt.Printf("  %s  %s\n",
					cliui.IDStyle.Render(fact.ID),
					cliui.PreviewStyle.Render(utils.Truncate(fact.Content, 80)),
				)
			}

			fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("Approve or reject with: keepsake review approve|reject <fact-id>"))
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	cmdutil.AddScopeFlag(cmd, &scopeID)

	cmd.AddCommand(newApproveCmd())
	cmd.AddCommand(newRejectCmd())

	return cmd
}

func newApproveCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "approve <fact-id>",
		Short: "Commit a staged fact",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.ResolveAPITarget(cmd, &apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			record, err := c.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("  %s Committed %s\n",
				cliui.SuccessMark,
				cliui.IDStyle.Render(record.ID),
			)
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	return cmd
}

func newRejectCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "reject <fact-id>",
		Short: "Reject a staged fact",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.ResolveAPITarget(cmd, &apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			record, err := c.Reject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("  %s Rejected %s\n",
				cliui.SuccessMark,
				cliui.IDStyle.Render(record.ID),
			)
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	return cmd
}
