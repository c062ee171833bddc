// Package configcmder provides the config command for managing persistent
// keepsake configuration stored in the .keepsake/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent keepsake configuration.

Configuration is stored as config.toml in the .keepsake/ directory and
provides default values for command flags. CLI flags always take precedence
over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.provider, storage.sqlite_path, storage.postgres_url,
  api.listen, client.api_target,
  llm.provider, llm.model, llm.target, llm.api_key,
  extraction.enabled, extraction.workers,
  events.provider, events.brokers, events.topic,
  memory.default_policy, memory.active_scope

Use subcommands to get, set, or list configuration values:
  keepsake config set <key> <value>    Set a configuration value
  keepsake config get <key>            Get a configuration value
  keepsake config list                 List all configuration values

Examples:
  keepsake config set storage.provider postgres
  keepsake config set memory.default_policy controlled
  keepsake config get llm.model
  keepsake config list`

const configShortDesc string = "Manage persistent keepsake configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
