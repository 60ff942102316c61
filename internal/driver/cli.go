package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"botkit/internal/domain"
)

// CLI is an interactive terminal driver for local development. The REPL
// publishes each line as a tagged request; replies print to the terminal.
type CLI struct {
	logger *slog.Logger
	in     io.Reader

	omu sync.Mutex
	out io.Writer
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

type cliInbound struct {
	Text string `json:"text"`
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{logger: cfg.Logger, in: cfg.In, out: cfg.Out}
}

// Start runs the REPL until EOF, /quit, or ctx cancellation.
func (c *CLI) Start(ctx context.Context, publish func(*domain.Request)) error {
	c.println("botkit CLI. Type your message and press Enter. Type /quit to exit.")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		body, _ := json.Marshal(cliInbound{Text: line})
		req := domain.NewRequest(body)
		req.Headers.Set(requestDriverHeader, "cli")
		publish(req)
		c.prompt()
	}
}

func (c *CLI) prompt() {
	c.omu.Lock()
	defer c.omu.Unlock()
	_, _ = fmt.Fprint(c.out, "You> ")
}

func (c *CLI) println(lines ...string) {
	c.omu.Lock()
	defer c.omu.Unlock()
	for _, l := range lines {
		_, _ = fmt.Fprintln(c.out, l)
	}
}

// Driver is the registry factory.
func (c *CLI) Driver(req *domain.Request) domain.Driver {
	v := &cliView{host: c}
	if req == nil || req.Headers.Get(requestDriverHeader) != "cli" {
		return v
	}
	if err := json.Unmarshal(req.Body, &v.inbound); err != nil {
		return v
	}
	v.matched = true
	return v
}

type cliView struct {
	host    *CLI
	inbound cliInbound
	matched bool
}

func (v *cliView) Name() string         { return "cli" }
func (v *cliView) MatchesRequest() bool { return v.matched }
func (v *cliView) IsBot() bool          { return false }
func (v *cliView) IsConfigured() bool   { return true }

// SerializesCallbacks is false: the REPL runs in-process, so pending
// conversation callbacks can stay live closures.
func (v *cliView) SerializesCallbacks() bool { return false }

func (v *cliView) Event() (*domain.DriverEvent, bool) { return nil, false }

func (v *cliView) Messages() []*domain.IncomingMessage {
	if !v.matched {
		return nil
	}
	return []*domain.IncomingMessage{
		domain.NewIncomingMessage(v.inbound.Text, "user", "direct", nil),
	}
}

func (v *cliView) User(msg *domain.IncomingMessage) (*domain.User, error) {
	return &domain.User{ID: msg.Sender, Username: msg.Sender}, nil
}

func (v *cliView) ConversationAnswer(msg *domain.IncomingMessage) *domain.Answer {
	return domain.NewAnswer(msg)
}

func (v *cliView) BuildServicePayload(out *domain.OutgoingMessage, matching *domain.IncomingMessage, extras map[string]any) (domain.Payload, error) {
	payload := domain.Payload{"text": out.Text}
	for k, val := range extras {
		payload[k] = val
	}
	return payload, nil
}

func (v *cliView) SendPayload(p domain.Payload) error {
	text, _ := p["text"].(string)
	v.host.println("--- Bot ---", text, "-----------")
	return nil
}

func (v *cliView) Types(*domain.IncomingMessage) error {
	v.host.println("Bot is typing...")
	return nil
}
