// Package versioncmder provides the version command shared by the parley
// binaries.
package versioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/utils"
)

type VersionCommander struct{}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	return cmd
}

func (c *VersionCommander) run(w io.Writer) error {
	fmt.Fprintf(w, "%s %s\n%s %s\n%s %s\n",
		cliui.KeyStyle.Render("Version:"), utils.Version,
		cliui.KeyStyle.Render("Sha:"), utils.Sha,
		cliui.KeyStyle.Render("Built at:"), utils.Buildtime,
	)
	return nil
}
