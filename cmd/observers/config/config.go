// Package configcmder provides the config command for managing persistent
// observers configuration stored in the .observers/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent observers configuration.

Configuration is stored as config.toml in the .observers/ directory and
provides default values for command flags. Precedence, highest first:
CLI flags, OBSERVERS_* environment variables, config.toml, defaults.

Keys use dotted notation matching the TOML section structure:
  storage.backend, storage.sqlite_path, storage.postgres_dsn,
  proxy.provider, proxy.upstream, proxy.listen, proxy.client_name,
  docling.target,
  datasets.org, datasets.repo, datasets.every, datasets.private,
  argilla.api_url, argilla.workspace,
  kafka.brokers, kafka.topic,
  telemetry.endpoint, telemetry.insecure

Use subcommands to get, set, or list configuration values:
  observers config set <key> <value>    Set a configuration value
  observers config get <key>            Get a configuration value
  observers config list                 List all configuration values

Examples:
  observers config set proxy.provider anthropic
  observers config set kafka.brokers localhost:9092,localhost:9093
  observers config get storage.sqlite_path
  observers config list`

const configShortDesc string = "Manage persistent observers configuration"

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
