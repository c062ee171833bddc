// Package cmdutil holds helpers shared by CLI commands that talk to a
// running keepsake API server.
package cmdutil

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keepsake-sh/keepsake/pkg/config"
)

// ResolveAPITarget fills target from config unless --api-target was set
// on the command line.
func ResolveAPITarget(cmd *cobra.Command, target *string) error {
	if cmd.Flags().Changed("api-target") {
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	*target = cfg.Client.APITarget
	return nil
}

// ResolveScopeID fills scopeID from the active scope in config unless
// --scope was set. Errors when neither names a scope.
func ResolveScopeID(cmd *cobra.Command, scopeID *string) error {
	if cmd.Flags().Changed("scope") && *scopeID != "" {
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if cfg.Memory.ActiveScope == "" {
		return errors.New("no scope given and no active scope set; use --scope or: keepsake scope use <id>")
	}

	*scopeID = cfg.Memory.ActiveScope
	return nil
}

// AddAPITargetFlag registers the --api-target flag with the configured
// default.
func AddAPITargetFlag(cmd *cobra.Command, target *string) {
	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVar(target, "api-target", defaults.Client.APITarget, "Keepsake API server URL")
}

// AddScopeFlag registers the --scope flag.
func AddScopeFlag(cmd *cobra.Command, scopeID *string) {
	cmd.Flags().StringVar(scopeID, "scope", "", "Scope identifier (defaults to the active scope)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}
