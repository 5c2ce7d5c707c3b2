package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Prints the value of the given key from config.toml in the .parley/
directory, or its built-in default when the file does not set it.

Examples:
  parley config get proxy.upstream
  parley config get client.idle_timeout`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.OutOrStdout(), args[0], configDir(cmd))
		},
	}
}

func runGet(w io.Writer, key, dir string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	printTarget(w, cfger.GetTarget())
	printEntry(w, key, value, len(key))
	fmt.Fprintln(w)
	return nil
}
