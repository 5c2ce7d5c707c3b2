// Package chatcmder provides the chat command, an interactive terminal chat
// through the parley proxy.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/parley/pkg/chat"
	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

const (
	rateLimitMessage = "Rate limit exceeded. Please try again later."

	// maxInputLine bounds a single line typed into the chat.
	maxInputLine = 1024 * 1024

	defaultRenderWidth = 80
)

type chatCommander struct {
	proxyTarget string
	idleTimeout time.Duration
	render      bool
	debug       bool

	in  io.Reader
	out io.Writer

	logger *slog.Logger
	client *chat.Client
	store  storage.Driver

	// current is the conversation new messages go to, nil until the first
	// message after start or /new.
	current *chat.Conversation
}

var chatFlagKeys = []string{
	config.FlagProxyTarget,
	config.FlagClientIdle,
}

const chatLongDesc string = `Start an interactive chat session through the parley proxy.

Every message is sent with the full conversation history. The reply is
printed as it streams in, or with --render rendered as markdown once it is
complete.

Conversations are kept for the length of the session:
  /new         Start a new conversation
  /list        List conversations, newest first
  /open <n>    Switch to conversation n from /list
  /delete <n>  Delete conversation n from /list
  /retry       Replace the last reply with a new one
  /help        Show the commands
  /exit        Quit (Ctrl+D also works)

Ctrl+C while a reply is streaming stops that reply and keeps what arrived.

Examples:
  parley chat
  parley chat --proxy-target http://localhost:9000 --render`

const chatShortDesc string = "Interactive chat through the parley proxy"

func NewChatCmd() *cobra.Command {
	return newChatCmd(&chatCommander{})
}

func newChatCmd(cmder *chatCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ChatFlags, config.FlagProxyTarget, &cmder.proxyTarget)
	config.AddDurationFlag(cmd, config.ChatFlags, config.FlagClientIdle, &cmder.idleTimeout)
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Render complete replies as markdown instead of streaming them")

	return cmd
}

func (c *chatCommander) loadConfig(cmd *cobra.Command, configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.ChatFlags, chatFlagKeys)

	c.proxyTarget = v.GetString("client.proxy_target")

	c.idleTimeout, err = time.ParseDuration(v.GetString("client.idle_timeout"))
	if err != nil {
		return fmt.Errorf("invalid client.idle_timeout: %w", err)
	}
	if c.idleTimeout < 0 {
		return errors.New("invalid client.idle_timeout: must not be negative")
	}

	return nil
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Logs go to stderr so they never interleave with a streaming reply.
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(os.Stderr),
		logger.WithAttrs("component", "chat"),
	)

	c.store = inmemory.NewDriver()
	defer c.store.Close()

	c.client = chat.NewClient(chat.ClientConfig{
		ProxyTarget: c.proxyTarget,
		IdleTimeout: c.idleTimeout,
		Logger:      c.logger,
	})

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Proxy:"),
		cliui.NameStyle.Render(c.proxyTarget),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /help for commands, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), maxInputLine)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := c.command(ctx, input)
			if err != nil {
				fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
			}
			if quit {
				break
			}
			continue
		}

		if err := c.send(ctx, input); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// command runs a slash command. It reports whether the session should end.
func (c *chatCommander) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintf(c.out, "%s\n", cliui.DimStyle.Render(
			"  /new  /list  /open <n>  /delete <n>  /retry  /help  /exit",
		))
		fmt.Fprintln(c.out)
		return false, nil

	case "/new":
		c.current = nil
		fmt.Fprintf(c.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
		return false, nil

	case "/list":
		return false, c.list(ctx)

	case "/open":
		conv, err := c.pick(ctx, arg)
		if err != nil {
			return false, err
		}
		c.current = conv
		fmt.Fprintf(c.out, "  %s Opened %s %s\n\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(displayTitle(conv)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", conv.Len())),
		)
		return false, nil

	case "/delete":
		conv, err := c.pick(ctx, arg)
		if err != nil {
			return false, err
		}
		if err := c.store.Delete(ctx, conv.ID); err != nil {
			return false, err
		}
		if c.current != nil && c.current.ID == conv.ID {
			c.current = nil
		}
		fmt.Fprintf(c.out, "  %s Deleted %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(displayTitle(conv)))
		return false, nil

	case "/retry":
		if c.current == nil || c.current.Len() == 0 {
			return false, errors.New("nothing to retry")
		}
		return false, c.reply(ctx, func(replyCtx context.Context, observer chat.Observer) (chat.Message, error) {
			return c.client.Retry(replyCtx, c.current, observer)
		})

	default:
		return false, fmt.Errorf("unknown command %q, try /help", name)
	}
}

func (c *chatCommander) list(ctx context.Context) error {
	convs, err := c.store.List(ctx)
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("No conversations yet."))
		return nil
	}

	for i, conv := range convs {
		marker := " "
		if c.current != nil && c.current.ID == conv.ID {
			marker = "*"
		}
		fmt.Fprintf(c.out, "  %s %s %s %s\n",
			marker,
			cliui.KeyStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.ValueStyle.Render(displayTitle(conv)),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages, %s)", conv.Len(), conv.CreatedAt.Format(time.Kitchen))),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

// pick resolves a 1-based position from /list.
func (c *chatCommander) pick(ctx context.Context, arg string) (*chat.Conversation, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("expected a conversation number from /list, got %q", arg)
	}

	convs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if n > len(convs) {
		return nil, fmt.Errorf("no conversation %d, there are %d", n, len(convs))
	}
	return convs[n-1], nil
}

// send adds input to the current conversation, starting one if needed, and
// streams the reply. Only storage failures end the session.
func (c *chatCommander) send(ctx context.Context, input string) error {
	if c.current == nil {
		c.current = chat.NewConversation()
		if err := c.store.Put(ctx, c.current); err != nil {
			return fmt.Errorf("storing conversation: %w", err)
		}
	}

	conv := c.current
	err := c.reply(ctx, func(replyCtx context.Context, observer chat.Observer) (chat.Message, error) {
		return c.client.Send(replyCtx, conv, input, observer)
	})
	if err != nil {
		fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
	}
	return nil
}

type replyFunc func(ctx context.Context, observer chat.Observer) (chat.Message, error)

// reply runs fn, which streams one assistant reply, and prints the reply as it
// arrives or rendered once complete. Ctrl+C cancels only this reply.
func (c *chatCommander) reply(ctx context.Context, fn replyFunc) error {
	replyCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if c.render {
		return c.renderReply(replyCtx, fn)
	}

	spinner := cliui.StartSpinner(c.out, "thinking")
	streaming := false

	printed := 0
	_, err := fn(replyCtx, func(msg chat.Message) {
		if !streaming {
			spinner.Clear()
			fmt.Fprint(c.out, assistantPrompt)
			streaming = true
		}
		// Content only grows, so the new part is the unprinted suffix.
		fmt.Fprint(c.out, msg.Content[printed:])
		printed = len(msg.Content)
	})

	if streaming {
		fmt.Fprint(c.out, "\n\n")
	} else {
		spinner.Clear()
	}

	return c.describeError(err)
}

func (c *chatCommander) renderReply(ctx context.Context, fn replyFunc) error {
	var msg chat.Message
	err := cliui.Step(c.out, "waiting for reply", func() error {
		var err error
		msg, err = fn(ctx, nil)
		return err
	})

	if msg.Content != "" {
		rendered, renderErr := cliui.RenderMarkdown(msg.Content, c.renderWidth())
		if renderErr != nil {
			c.logger.Debug("rendering reply failed", "error", renderErr)
		}
		fmt.Fprintln(c.out)
		fmt.Fprint(c.out, rendered)
		fmt.Fprintln(c.out)
	}

	return c.describeError(err)
}

func (c *chatCommander) describeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrRateLimited):
		return errors.New(rateLimitMessage)
	case errors.Is(err, context.Canceled):
		return errors.New("reply stopped")
	default:
		return err
	}
}

// renderWidth is the terminal width when writing to one, else a fixed width.
func (c *chatCommander) renderWidth() int {
	f, ok := c.out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultRenderWidth
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultRenderWidth
	}
	return width
}

func displayTitle(conv *chat.Conversation) string {
	if title := conv.Title(); title != "" {
		return title
	}
	return "(untitled)"
}
