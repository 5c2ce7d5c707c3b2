package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/parley/cmd/parley/config"
	"github.com/papercomputeco/parley/pkg/config"
)

var _ = Describe("config", func() {
	var (
		parleyDir string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		work, err := filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		// A local .parley dir takes precedence over ~/.parley.
		parleyDir = filepath.Join(work, ".parley")
		Expect(os.Mkdir(parleyDir, 0o755)).To(Succeed())

		prev, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(work)).To(Succeed())
		DeferCleanup(os.Chdir, prev)

		out = &bytes.Buffer{}
	})

	exec := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	saved := func() *config.Config {
		data, err := os.ReadFile(filepath.Join(parleyDir, "config.toml"))
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(data)
		ExpectWithOffset(1, err).NotTo(HaveOccurred())
		return cfg
	}

	It("has set, get and list subcommands", func() {
		var names []string
		for _, sub := range configcmder.NewConfigCmd().Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ConsistOf("set", "get", "list"))
	})

	DescribeTable("argument counts",
		func(args ...string) {
			Expect(exec(args...)).NotTo(Succeed())
		},
		Entry("set without a value", "set", "proxy.model"),
		Entry("set without anything", "set"),
		Entry("get without a key", "get"),
		Entry("list with a key", "list", "extra"),
	)

	Describe("set", func() {
		It("stores the value in the local config.toml", func() {
			Expect(exec("set", "proxy.model", "gpt-4.1-mini")).To(Succeed())

			Expect(saved().Proxy.Model).To(Equal("gpt-4.1-mini"))
			Expect(out.String()).To(ContainSubstring("proxy.model"))
			Expect(out.String()).To(ContainSubstring(filepath.Join(parleyDir, "config.toml")))
		})

		It("splits list values on commas", func() {
			Expect(exec("set", "events.brokers", "a:9092, b:9092")).To(Succeed())
			Expect(saved().Events.Brokers).To(Equal([]string{"a:9092", "b:9092"}))
		})

		DescribeTable("rejects bad input without writing",
			func(key, value, msg string) {
				Expect(exec("set", key, value)).To(MatchError(ContainSubstring(msg)))
				Expect(filepath.Join(parleyDir, "config.toml")).NotTo(BeAnExistingFile())
			},
			Entry("an unknown key", "invalid_key", "value", "unknown config key"),
			Entry("the API key", "api_key", "sk-nope", "unknown config key"),
			Entry("a bad duration", "proxy.idle_timeout", "soon", "invalid value for proxy.idle_timeout"),
		)
	})

	Describe("get", func() {
		It("prints a stored value", func() {
			Expect(exec("set", "proxy.upstream", "https://api.openai.com/v1")).To(Succeed())
			out.Reset()

			Expect(exec("get", "proxy.upstream")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("https://api.openai.com/v1"))
		})

		It("prints the default of an unset key", func() {
			Expect(exec("get", "events.topic")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("parley.exchanges"))
			Expect(out.String()).To(ContainSubstring("Config file:"))
		})

		It("marks empty values", func() {
			Expect(exec("get", "events.brokers")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("lists the valid keys for an unknown one", func() {
			err := exec("get", "invalid_key")
			Expect(err).To(MatchError(ContainSubstring("Valid keys: proxy.listen")))
		})
	})

	Describe("list", func() {
		It("prints every key", func() {
			Expect(exec("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("prints stored values", func() {
			Expect(exec("set", "proxy.listen", ":9999")).To(Succeed())
			out.Reset()

			Expect(exec("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":9999"))
		})
	})
})
