package servecmder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/llm"
)

// newTestCmd returns the serve command with the persistent flags the root
// command would normally contribute.
func newTestCmd(cmder *serveCommander) *cobra.Command {
	cmd := newServeCmd(cmder)
	cmd.Flags().Bool("debug", false, "")
	cmd.Flags().String("config-dir", "", "")
	return cmd
}

var _ = Describe("NewServeCmd", func() {
	It("registers the proxy and event flags", func() {
		cmd := NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))
		for _, name := range []string{
			"listen", "upstream", "model", "system-prompt", "idle-timeout",
			"events-provider", "events-brokers", "events-topic", "log-format", "log-file",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").Shorthand).To(Equal("l"))
	})

	It("rejects arguments", func() {
		cmd := NewServeCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})
})

var _ = Describe("loadConfig", func() {
	var (
		tmpDir string
		cmder  *serveCommander
		cmd    *cobra.Command
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "parley-serve-test-*")
		Expect(err).NotTo(HaveOccurred())

		cmder = &serveCommander{}
		cmd = newTestCmd(cmder)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("falls back to defaults", func() {
		Expect(cmder.loadConfig(cmd, tmpDir)).To(Succeed())

		Expect(cmder.listen).To(Equal(":8080"))
		Expect(cmder.upstream).To(Equal("https://api.bytez.com/v1"))
		Expect(cmder.model).To(Equal("openai/gpt-4.1"))
		Expect(cmder.systemPrompt).To(Equal(llm.DefaultSystemPrompt))
		Expect(cmder.idleTimeout).To(Equal(2 * time.Minute))
		Expect(cmder.eventsProvider).To(Equal("none"))
		Expect(cmder.eventsBrokers).To(BeEmpty())
	})

	It("layers flags over env over the config file", func() {
		data := `[proxy]
listen = ":9000"
model = "from-file"
upstream = "https://file.example/v1"

[events]
provider = "kafka"
brokers = ["file:9092"]
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		os.Setenv("PARLEY_PROXY_MODEL", "from-env")
		defer os.Unsetenv("PARLEY_PROXY_MODEL")
		os.Setenv("PARLEY_PROXY_UPSTREAM", "https://env.example/v1")
		defer os.Unsetenv("PARLEY_PROXY_UPSTREAM")

		Expect(cmd.Flags().Set("upstream", "https://flag.example/v1")).To(Succeed())
		Expect(cmd.Flags().Set("idle-timeout", "30s")).To(Succeed())

		Expect(cmder.loadConfig(cmd, tmpDir)).To(Succeed())

		Expect(cmder.listen).To(Equal(":9000"))
		Expect(cmder.model).To(Equal("from-env"))
		Expect(cmder.upstream).To(Equal("https://flag.example/v1"))
		Expect(cmder.idleTimeout).To(Equal(30 * time.Second))
		Expect(cmder.eventsProvider).To(Equal("kafka"))
		Expect(cmder.eventsBrokers).To(Equal([]string{"file:9092"}))
	})

	It("reads the API key from the environment only", func() {
		os.Setenv(config.APIKeyEnv, "sk-env")
		defer os.Unsetenv(config.APIKeyEnv)

		Expect(cmder.loadConfig(cmd, tmpDir)).To(Succeed())
		Expect(cmder.apiKey).To(Equal("sk-env"))
	})

	It("rejects an invalid idle timeout from the config file", func() {
		data := `[proxy]
idle_timeout = "whenever"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		err := cmder.loadConfig(cmd, tmpDir)
		Expect(err).To(MatchError(ContainSubstring("invalid proxy.idle_timeout")))
	})
})

var _ = Describe("newLogger", func() {
	It("also writes JSON to the log file", func() {
		tmpDir, err := os.MkdirTemp("", "parley-serve-log-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		path := filepath.Join(tmpDir, "parley.log")
		cmder := &serveCommander{logFile: path}

		l, f, err := cmder.newLogger()
		Expect(err).NotTo(HaveOccurred())
		Expect(f).NotTo(BeNil())
		l.Info("hello from serve", "listen", ":8080")
		Expect(f.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		var entry map[string]any
		Expect(json.Unmarshal(data, &entry)).To(Succeed())
		Expect(entry["msg"]).To(Equal("hello from serve"))
		Expect(entry["listen"]).To(Equal(":8080"))
	})

	It("logs to stdout only without a log file", func() {
		l, f, err := (&serveCommander{}).newLogger()
		Expect(err).NotTo(HaveOccurred())
		Expect(l).NotTo(BeNil())
		Expect(f).To(BeNil())
	})

	It("rejects an unknown log format", func() {
		_, _, err := (&serveCommander{logFormat: "xml"}).newLogger()
		Expect(err).To(MatchError(ContainSubstring("unknown log format")))
	})
})
