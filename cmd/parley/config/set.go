package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
)

const setLongDesc string = `Set a configuration value.

Stores the value for the given key in config.toml in the .parley/ directory.
~/.parley/ is created when no .parley/ directory exists yet.

Durations use Go syntax ("90s", "2m"); "0" disables the timeout. List keys
such as events.brokers take a comma separated value.

Examples:
  parley config set proxy.upstream https://api.openai.com/v1
  parley config set proxy.idle_timeout 90s
  parley config set events.provider kafka`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd.OutOrStdout(), args[0], args[1], configDir(cmd))
		},
	}
}

func runSet(w io.Writer, key, value, dir string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	dir, err := dotdir.NewManager().Create(dir)
	if err != nil {
		return err
	}
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	printTarget(w, cfger.GetTarget())
	fmt.Fprintf(w, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
