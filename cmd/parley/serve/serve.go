// Package servecmder provides the serve command for running the parley proxy.
package servecmder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/config"
	eventstreamutils "github.com/papercomputeco/parley/pkg/eventstream/utils"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/proxy"
)

type serveCommander struct {
	listen       string
	upstream     string
	model        string
	systemPrompt string
	idleTimeout  time.Duration
	apiKey       string

	eventsProvider string
	eventsBrokers  []string
	eventsTopic    string

	debug     bool
	logFormat string
	logFile   string

	logger *slog.Logger
}

// serveFlagKeys are the registry keys bound to viper for this command.
var serveFlagKeys = []string{
	config.FlagProxyListen,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagSystemPrompt,
	config.FlagProxyIdleTimeout,
	config.FlagEventsProvider,
	config.FlagEventsBrokers,
	config.FlagEventsTopic,
}

const serveLongDesc string = `Run the parley proxy server.

The proxy accepts POST /chat with a conversation history, prepends the
configured system instruction, calls the upstream chat-completions API with
streaming enabled and relays the event stream back byte-for-byte.

The upstream credential is read from the PARLEY_API_KEY environment variable
only. Without it every chat request fails with a 500.

Settings come from (highest precedence first) flags, PARLEY_* environment
variables, .parley/config.toml and built-in defaults.

Examples:
  PARLEY_API_KEY=... parley serve
  parley serve --upstream https://api.openai.com/v1 --model gpt-4.1
  parley serve --events-provider kafka --events-brokers localhost:9092`

const serveShortDesc string = "Run the parley proxy server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.loadConfig(cmd, configDir)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagProxyListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSystemPrompt, &cmder.systemPrompt)
	config.AddDurationFlag(cmd, config.ServeFlags, config.FlagProxyIdleTimeout, &cmder.idleTimeout)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringSliceFlag(cmd, config.ServeFlags, config.FlagEventsBrokers, &cmder.eventsBrokers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsTopic, &cmder.eventsTopic)
	cmd.Flags().StringVar(&cmder.logFormat, "log-format", logger.FormatPretty.String(), "Terminal log format (pretty, text, json)")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

// loadConfig resolves every setting through viper so flags, PARLEY_*
// variables, config.toml and defaults apply in that order.
func (c *serveCommander) loadConfig(cmd *cobra.Command, configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)

	c.listen = v.GetString("proxy.listen")
	c.upstream = v.GetString("proxy.upstream")
	c.model = v.GetString("proxy.model")
	c.systemPrompt = v.GetString("proxy.system_prompt")
	c.eventsProvider = v.GetString("events.provider")
	c.eventsBrokers = config.GetStringList(v, "events.brokers")
	c.eventsTopic = v.GetString("events.topic")
	c.apiKey = v.GetString(config.KeyAPIKey)

	c.idleTimeout, err = time.ParseDuration(v.GetString("proxy.idle_timeout"))
	if err != nil {
		return fmt.Errorf("invalid proxy.idle_timeout: %w", err)
	}
	if c.idleTimeout < 0 {
		return errors.New("invalid proxy.idle_timeout: must not be negative")
	}

	return nil
}

func (c *serveCommander) run() error {
	var logFile io.WriteCloser
	var err error
	c.logger, logFile, err = c.newLogger()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if c.apiKey == "" {
		c.logger.Warn("no upstream API key configured, chat requests will fail", "env", config.APIKeyEnv)
	}

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: c.eventsProvider,
		Brokers:      c.eventsBrokers,
		Topic:        c.eventsTopic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}

	p, err := proxy.New(proxy.Config{
		ListenAddr:   c.listen,
		UpstreamURL:  c.upstream,
		APIKey:       c.apiKey,
		Model:        c.model,
		SystemPrompt: c.systemPrompt,
		IdleTimeout:  c.idleTimeout,
	}, publisher, c.logger)
	if err != nil {
		publisher.Close()
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	c.logger.Info("event publishing configured",
		"provider", c.eventsProvider,
		"topic", c.eventsTopic,
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// newLogger returns the terminal logger in the --log-format format, fanned out
// to a JSON log file when --log-file is set. The file, if any, is returned for
// closing.
func (c *serveCommander) newLogger() (*slog.Logger, io.WriteCloser, error) {
	format := logger.FormatPretty
	if c.logFormat != "" {
		var err error
		format, err = logger.ParseFormat(c.logFormat)
		if err != nil {
			return nil, nil, err
		}
	}

	terminal := logger.New(logger.WithDebug(c.debug), logger.WithFormat(format))
	if c.logFile == "" {
		return terminal, nil, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		terminal.Warn("could not open log file, logging to stdout only", "path", c.logFile, "error", err)
		return terminal, nil, nil
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriter(f),
	)
	return logger.Multi(terminal, file), f, nil
}
