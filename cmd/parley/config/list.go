package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
)

const listLongDesc string = `List all configuration values.

Prints every key with its value from config.toml, or the built-in default
when the file does not set it.

Examples:
  parley config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.OutOrStdout(), configDir(cmd))
		},
	}
}

func runList(w io.Writer, dir string) error {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := config.ValidConfigKeys()
	values := make([]string, len(keys))
	width := 0
	for i, key := range keys {
		if values[i], err = cfger.GetConfigValue(key); err != nil {
			return err
		}
		width = max(width, len(key))
	}

	printTarget(w, cfger.GetTarget())
	for i, key := range keys {
		printEntry(w, key, values[i], width)
	}
	fmt.Fprintln(w)
	return nil
}
