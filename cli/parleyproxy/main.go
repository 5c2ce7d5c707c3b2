package main

import (
	"fmt"
	"os"

	servecmder "github.com/papercomputeco/parley/cmd/parley/serve"
	versioncmder "github.com/papercomputeco/parley/cmd/version"
)

func main() {
	cmd := servecmder.NewServeCmd()

	cmd.Use = "parleyproxy"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .parley/ config directory")
	cmd.AddCommand(versioncmder.NewVersionCmd())

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
