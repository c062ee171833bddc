// Package remembercmder provides the remember command for storing facts.
package remembercmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
	"github.com/keepsake-sh/keepsake/pkg/memory"
)

const rememberLongDesc string = `Store a fact in a scope.

The fact is admitted under the given ingestion policy. Under "opaque" and
"hybrid" the fact is committed immediately; under "controlled" it is staged
for review and must be approved before it becomes recallable.

Examples:
  keepsake remember "prefers dark roast coffee"
  keepsake remember "timezone is UTC+2" --scope user-42
  keepsake remember "works at Initech" --policy controlled`

const rememberShortDesc string = "Store a fact in a scope"

func NewRememberCmd() *cobra.Command {
	var (
		apiTarget string
		scopeID   string
		policy    string
	)

	cmd := &cobra.Command{
		Use:   "remember <fact>",
		Short: rememberShortDesc,
		Long:  rememberLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmdutil.ResolveAPITarget(cmd, &apiTarget); err != nil {
				return err
			}
			return cmdutil.ResolveScopeID(cmd, &scopeID)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if policy != "" && !memory.Policy(policy).Valid() {
				return fmt.Errorf("unknown policy: %q (valid: opaque, controlled, hybrid)", policy)
			}

			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			if _, err := c.ResolveScope(cmd.Context(), scopeID); err != nil {
				return err
			}

			record, err := c.Ingest(cmd.Context(), scopeID, args[0], policy)
			if err != nil {
				return err
			}

			verb := "Committed"
			if record.State == memory.StateProposed {
				verb = "Staged"
			}

			fmt.Printf("  %s %s %s %s\n",
				cliui.SuccessMark,
				verb,
				cliui.IDStyle.Render(record.ID),
				cliui.DimStyle.Render("("+string(record.Policy)+")"),
			)
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	cmdutil.AddScopeFlag(cmd, &scopeID)
	cmd.Flags().StringVarP(&policy, "policy", "p", "", "Ingestion policy (opaque, controlled, hybrid)")

	return cmd
}
