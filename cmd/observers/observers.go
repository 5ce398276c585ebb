// Package observerscmder is the root of the observers command tree.
package observerscmder

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	configcmder "github.com/cfahlgren1/observers/cmd/observers/config"
	doclingcmder "github.com/cfahlgren1/observers/cmd/observers/docling"
	proxycmder "github.com/cfahlgren1/observers/cmd/observers/proxy"
	pushcmder "github.com/cfahlgren1/observers/cmd/observers/push"
	recordscmder "github.com/cfahlgren1/observers/cmd/observers/records"
	versioncmder "github.com/cfahlgren1/observers/cmd/version"
)

const observersLongDesc string = `Observers records every LLM and document-conversion call.

Record calls using:
  observers proxy      Run the recording proxy in front of an LLM provider
  observers docling    Convert documents with docling-serve and record every item

Inspect and ship records using:
  observers records    List local record tables and their rows
  observers push       Push unsynced records to the dataset hub, Argilla,
                       Kafka or an OpenTelemetry collector`

const observersShortDesc string = "Observers - LLM call recording"

func NewObserversCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "observers",
		Short:        observersShortDesc,
		Long:         observersLongDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnvFile(envFile)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.observers or ~/.observers)")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before running (ignored when missing)")

	// Add subcommands
	cmd.AddCommand(proxycmder.NewProxyCmd())
	cmd.AddCommand(doclingcmder.NewDoclingCmd())
	cmd.AddCommand(recordscmder.NewRecordsCmd())
	cmd.AddCommand(pushcmder.NewPushCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}
