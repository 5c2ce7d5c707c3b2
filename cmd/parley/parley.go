// Package parleycmder assembles the parley command tree.
package parleycmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/parley/cmd/parley/chat"
	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	initcmder "github.com/papercomputeco/parley/cmd/parley/init"
	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	versioncmder "github.com/papercomputeco/parley/cmd/version"
)

const parleyLongDesc string = `Parley is a streaming chat proxy and terminal client.

Run the proxy and talk to it:
  parley serve         Run the proxy server
  parley chat          Chat through a running proxy

Manage configuration:
  parley init          Create a local .parley/ directory
  parley config        Get, set and list config.toml values`

const parleyShortDesc string = "Parley - streaming chat proxy"

func NewParleyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "parley",
		Short:        parleyShortDesc,
		Long:         parleyLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
