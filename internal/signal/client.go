package signal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Runner executes signal-cli with args and returns its output.
type Runner func(ctx context.Context, args ...string) (stdout, stderr string, err error)

// Client sends and receives Signal messages through signal-cli as one
// registered account.
type Client struct {
	account string
	run     Runner
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the signal-cli executor.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.run = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for account, a phone number registered with
// signal-cli. Without WithRunner the signal-cli binary must be in PATH.
func NewClient(account string, opts ...Option) (*Client, error) {
	if account == "" {
		return nil, fmt.Errorf("account cannot be empty")
	}
	if !strings.HasPrefix(account, "+") {
		return nil, fmt.Errorf("account must be a phone number starting with + (e.g., +15551234567)")
	}

	c := &Client{account: account, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.run == nil {
		bin, err := exec.LookPath("signal-cli")
		if err != nil {
			return nil, &SignalError{
				Op:      "initialize",
				Account: account,
				Err:     fmt.Errorf("signal-cli not found in PATH. Please install signal-cli: https://github.com/AsamK/signal-cli"),
			}
		}
		c.run = execRunner(bin)
	}
	return c, nil
}

// Account returns the phone number the client acts as.
func (c *Client) Account() string {
	return c.account
}

func execRunner(bin string) Runner {
	return func(ctx context.Context, args ...string) (string, string, error) {
		cmd := exec.CommandContext(ctx, bin, args...)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		return stdout.String(), stderr.String(), err
	}
}

// Send delivers text to recipient. Failures are reported as
// ExternalProviderError.
func (c *Client) Send(ctx context.Context, recipient, text string) error {
	if err := c.send(ctx, recipient, text); err != nil {
		return &model.ExternalProviderError{Op: "send", Provider: "signal", Err: err}
	}
	return nil
}

func (c *Client) send(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return &SignalError{Op: "send", Account: c.account, Err: fmt.Errorf("recipient cannot be empty")}
	}
	if text == "" {
		return &SignalError{Op: "send", Account: c.account, Err: fmt.Errorf("message cannot be empty")}
	}
	if !strings.HasPrefix(recipient, "+") {
		return &SignalError{
			Op:      "send",
			Account: c.account,
			Err:     fmt.Errorf("recipient must be a phone number starting with + (e.g., +15551234567)"),
		}
	}

	_, stderr, err := c.run(ctx, "-a", c.account, "send", recipient, "-m", text)
	if err != nil {
		return &SignalError{
			Op:      "send",
			Account: c.account,
			Err:     fmt.Errorf("failed to send message: %w (stderr: %s)", err, strings.TrimSpace(stderr)),
		}
	}
	return nil
}

// Receive waits up to timeout for pending messages and returns the text
// messages among them. Receipts and typing notifications are dropped.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) ([]Message, error) {
	seconds := int(timeout.Seconds())
	if seconds <= 0 {
		return nil, &SignalError{Op: "receive", Account: c.account, Err: fmt.Errorf("timeout must be at least one second")}
	}

	stdout, stderr, err := c.run(ctx, "-a", c.account, "-o", "json", "receive", "--timeout", strconv.Itoa(seconds))
	if err != nil {
		return nil, &SignalError{
			Op:      "receive",
			Account: c.account,
			Err:     fmt.Errorf("failed to receive messages: %w (stderr: %s)", err, strings.TrimSpace(stderr)),
		}
	}
	return c.parseReceiveOutput(stdout), nil
}

// parseReceiveOutput decodes one JSON envelope per line. Lines that do not
// decode are logged and skipped.
func (c *Client) parseReceiveOutput(output string) []Message {
	var messages []Message
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			c.logger.Warn("skipping undecodable signal envelope", logging.Err(err))
			continue
		}
		data := env.Envelope.DataMessage
		if data == nil || strings.TrimSpace(data.Message) == "" {
			continue
		}

		sender := env.Envelope.SourceNumber
		if sender == "" {
			sender = env.Envelope.Source
		}
		msg := Message{
			Sender:     sender,
			SenderName: env.Envelope.SourceName,
			Text:       data.Message,
			Timestamp:  time.UnixMilli(env.Envelope.Timestamp).UTC(),
		}
		if data.GroupInfo != nil {
			msg.GroupID = data.GroupInfo.GroupID
		}
		messages = append(messages, msg)
	}
	return messages
}

// ReceiveMessages polls for messages until ctx is cancelled and calls fn
// for each one in arrival order. Receive errors are logged and polling
// continues after the poll interval.
func (c *Client) ReceiveMessages(ctx context.Context, pollInterval time.Duration, fn func(context.Context, Message)) error {
	if pollInterval < time.Second {
		pollInterval = 5 * time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		messages, err := c.Receive(ctx, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "signal receive failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, msg := range messages {
			fn(ctx, msg)
		}
	}
}
