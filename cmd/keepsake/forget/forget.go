// Package forgetcmder provides the forget command for removing facts.
package forgetcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/cmd/keepsake/cmdutil"
	"github.com/keepsake-sh/keepsake/pkg/cliui"
	"github.com/keepsake-sh/keepsake/pkg/client"
)

const forgetLongDesc string = `Physically remove a fact record.

Unlike rejection or supersession, forgetting erases the record entirely.
It stops appearing in every listing, regardless of state filters, and
cannot be recovered.

Examples:
  keepsake forget 6e1a9c3f-...`

const forgetShortDesc string = "Physically remove a fact record"

func NewForgetCmd() *cobra.Command {
	var apiTarget string

	cmd := &cobra.Command{
		Use:   "forget <fact-id>",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdutil.ResolveAPITarget(cmd, &apiTarget)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(apiTarget)
			if err != nil {
				return err
			}

			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Printf("  %s Forgot %s\n",
				cliui.SuccessMark,
				cliui.IDStyle.Render(args[0]),
			)
			return nil
		},
	}

	cmdutil.AddAPITargetFlag(cmd, &apiTarget)
	return cmd
}
