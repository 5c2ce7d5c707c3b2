// Package initcmder provides the init command for initializing a local
// .parley directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
)

const (
	dirName    = ".parley"
	configFile = "config.toml"

	// maxRemoteConfigSize bounds a config.toml fetched with --preset <url>.
	maxRemoteConfigSize = 1 << 20

	fetchTimeout = 30 * time.Second
)

const initLongDesc string = `Initialize a new .parley/ directory in the current working directory.

Creates a local .parley/ directory that takes precedence over ~/.parley/ and
writes a config.toml with default values when none exists yet.

--preset seeds config.toml from a named upstream preset or from a remote
config.toml served over http(s). A preset always overwrites an existing
config.toml; other files in .parley/ are left alone.

Presets:
  bytez, openai, openrouter

Examples:
  parley init
  parley init --preset openai
  parley init --preset https://example.com/parley/config.toml`

const initShortDesc string = "Initialize a local .parley/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Preset name or URL of a config.toml to start from")

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := c.resolveConfig(ctx)
	if err != nil {
		return err
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	alreadyInitialized := err == nil && info.IsDir()

	if !alreadyInitialized {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .parley directory: %w", err)
		}
	}

	written, err := writeConfig(dir, cfg, c.preset != "")
	if err != nil {
		return err
	}

	if alreadyInitialized {
		fmt.Fprintf(w, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	} else {
		fmt.Fprintf(w, "  %s Initialized .parley directory: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	}
	if written {
		fmt.Fprintf(w, "  %s Wrote %s\n", cliui.SuccessMark, cliui.DimStyle.Render(filepath.Join(dir, configFile)))
	}

	return nil
}

// resolveConfig returns the config to seed config.toml with: defaults, a
// named preset, or a remote config.toml.
func (c *initCommander) resolveConfig(ctx context.Context) (*config.Config, error) {
	switch {
	case c.preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(c.preset, "http://"), strings.HasPrefix(c.preset, "https://"):
		return fetchRemoteConfig(ctx, c.preset)
	default:
		return config.PresetConfig(c.preset)
	}
}

// writeConfig saves cfg to dir/config.toml. An existing file is only
// replaced when overwrite is set.
func writeConfig(dir string, cfg *config.Config, overwrite bool) (bool, error) {
	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return false, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("checking config: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return false, err
	}
	return true, nil
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfigSize))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}

	cfg, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing remote config: %w", err)
	}
	return cfg, nil
}
