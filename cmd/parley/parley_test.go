package parleycmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	parleycmder "github.com/papercomputeco/parley/cmd/parley"
)

var _ = Describe("NewParleyCmd", func() {
	It("wires every subcommand", func() {
		cmd := parleycmder.NewParleyCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("chat", "config", "init", "serve", "version"))
	})

	It("exposes the global flags to subcommands", func() {
		cmd := parleycmder.NewParleyCmd()
		Expect(cmd.PersistentFlags().Lookup("debug").Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())

		serve, _, err := cmd.Find([]string{"serve"})
		Expect(err).NotTo(HaveOccurred())
		Expect(serve.InheritedFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
