// Package configcmder provides the config command for managing persistent
// parley configuration stored in the .parley/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
)

const configLongDesc string = `Manage persistent parley configuration.

Configuration is stored as config.toml in the .parley/ directory and provides
default values for command flags. CLI flags and PARLEY_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.upstream, proxy.model, proxy.system_prompt,
  proxy.idle_timeout, client.proxy_target, client.idle_timeout,
  events.provider, events.brokers, events.topic

The upstream API key is not a config key. Export PARLEY_API_KEY instead.

Use subcommands to get, set, or list configuration values:
  parley config set <key> <value>    Set a configuration value
  parley config get <key>            Get a configuration value
  parley config list                 List all configuration values

Examples:
  parley config set proxy.model gpt-4.1
  parley config set events.brokers localhost:9092,localhost:9093
  parley config get proxy.upstream
  parley config list`

const configShortDesc string = "Manage persistent parley configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd(), newGetCmd(), newListCmd())

	return cmd
}

// configDir returns the inherited --config-dir value, "" when unset.
func configDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

func checkKey(key string) error {
	if config.IsValidConfigKey(key) {
		return nil
	}
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

// printTarget prints the config.toml in use, or that defaults apply.
func printTarget(w io.Writer, target string) {
	if target == "" {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
		return
	}
	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
}

// printEntry prints one key and its value, the key padded to width.
func printEntry(w io.Writer, key, value string, width int) {
	rendered := cliui.DimStyle.Render("<not set>")
	if value != "" {
		rendered = cliui.ValueStyle.Render(value)
	}
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), rendered)
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
}
