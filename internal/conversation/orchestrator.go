package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/meetmate/internal/agent"
	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/dispatcher"
	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/lock"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Fixed replies.
const (
	FallbackReply = "Sorry, I have no clear response to that. Could you rephrase it?"
	ApologyReply  = "Sorry, I ran into an internal problem while processing your message. Please try again in a moment."
	GreetingReply = "Hi! I'm your appointment assistant. I can book, move, list and cancel events in your Google Calendar. " +
		"Send /connect to link your calendar, then tell me what you need."
	NotConfiguredReply = "Calendar linking is not configured on this server."
)

const (
	DefaultHistoryLimit  = 15
	DefaultMaxToolRounds = 3
)

// Agent decides the next step for a window.
type Agent interface {
	Respond(ctx context.Context, window []model.Message, tools []mcp.Tool) (*agent.Reply, error)
}

// Executor runs one tool call.
type Executor interface {
	ExecuteCall(ctx context.Context, call model.ToolCall, userID string, session *credentials.Session) dispatcher.Result
}

// Sessions provides a live Google session for a user.
type Sessions interface {
	AcquireSession(ctx context.Context, userID string) (*credentials.Session, error)
}

// History is the persisted conversation log.
type History interface {
	AppendMessage(ctx context.Context, userID string, msg model.Message) error
	RecentMessages(ctx context.Context, userID string, limit int) ([]model.Message, error)
}

// Connector builds the account-linking URL for a user.
type Connector interface {
	AuthURL(userID string) string
}

// Orchestrator runs one conversational turn per inbound message.
type Orchestrator struct {
	history   History
	agent     Agent
	exec      Executor
	sessions  Sessions
	tools     []mcp.Tool
	locker    lock.Locker
	connector Connector

	historyLimit  int
	maxToolRounds int

	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocker serializes turns per user through l.
func WithLocker(l lock.Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithConnector enables the /connect command.
func WithConnector(c Connector) Option {
	return func(o *Orchestrator) { o.connector = c }
}

// WithHistoryLimit bounds the number of persisted messages loaded per turn.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithMaxToolRounds bounds how many times tool calls are executed in a turn.
func WithMaxToolRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxToolRounds = n
		}
	}
}

// WithTools overrides the operations offered to the agent.
func WithTools(tools []mcp.Tool) Option {
	return func(o *Orchestrator) { o.tools = tools }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator.
func New(history History, ag Agent, exec Executor, sessions Sessions, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		history:       history,
		agent:         ag,
		exec:          exec,
		sessions:      sessions,
		tools:         dispatcher.Tools(),
		locker:        lock.NewLocal(),
		historyLimit:  DefaultHistoryLimit,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleIncomingMessage processes one utterance from userID and returns the
// reply to send back. It always returns a reply.
func (o *Orchestrator) HandleIncomingMessage(ctx context.Context, userID, text string) (reply string) {
	start := time.Now()
	logger := logging.WithOperation(logging.WithUser(o.logger, userID), "conversation.turn")
	ctx, span := instrumentation.StartSpan(ctx, instrumentation.SpanConversationTurn,
		attribute.String(instrumentation.SpanAttrUserHash, logging.AnonymizeUser(userID)))

	var (
		rounds int
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.ErrorContext(ctx, "turn panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
			reply = ApologyReply
		}
		o.metrics.RecordTurn(ctx, status, rounds, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	text = strings.TrimSpace(text)
	if resp, ok := o.command(userID, text); ok {
		return resp
	}
	if text == "" {
		return FallbackReply
	}

	unlock, err := o.locker.Lock(ctx, "conversation:"+userID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire conversation lock", logging.Err(err))
		return ApologyReply
	}
	defer unlock()

	reply, rounds, err = o.turn(ctx, logger, userID, text)
	if err != nil {
		logger.ErrorContext(ctx, "turn failed",
			logging.Err(err),
			slog.String("error_kind", model.ErrorKind(err)),
			slog.Int("rounds", rounds))
	}
	return reply
}

// command answers chat commands that bypass the agent. Commands are not
// added to the conversation log.
func (o *Orchestrator) command(userID, text string) (string, bool) {
	name, _, _ := strings.Cut(text, " ")
	switch strings.ToLower(name) {
	case "/start", "/help":
		return GreetingReply, true
	case "/connect", "/conectar":
		if o.connector == nil {
			return NotConfiguredReply, true
		}
		return "Open this link to connect your Google Calendar:\n" + o.connector.AuthURL(userID), true
	}
	return "", false
}

func (o *Orchestrator) turn(ctx context.Context, logger *slog.Logger, userID, text string) (string, int, error) {
	recent, err := o.history.RecentMessages(ctx, userID, o.historyLimit)
	if err != nil {
		return "", 0, err
	}
	window := prepareWindow(recent)

	appendMsg := func(m model.Message) error {
		if err := o.history.AppendMessage(ctx, userID, m); err != nil {
			return err
		}
		window = append(window, m)
		return nil
	}

	if err := appendMsg(model.UserMessage{Text: text}); err != nil {
		return "", 0, err
	}

	reply, err := o.agent.Respond(ctx, window, o.tools)
	if err != nil {
		return "", 0, err
	}

	rounds := 0
	for len(reply.ToolCalls) > 0 && rounds < o.maxToolRounds {
		rounds++
		if err := appendMsg(model.AssistantToolCallMessage{Text: reply.Text, Calls: reply.ToolCalls}); err != nil {
			return "", rounds, err
		}
		for _, call := range reply.ToolCalls {
			result := o.runTool(ctx, logger, userID, call)
			if err := appendMsg(model.ToolResultMessage{CallID: call.ID, Operation: call.Operation, Content: result.JSON()}); err != nil {
				return "", rounds, err
			}
		}

		if reply, err = o.agent.Respond(ctx, window, o.tools); err != nil {
			return "", rounds, err
		}
	}
	if len(reply.ToolCalls) > 0 {
		logger.WarnContext(ctx, "dropping tool calls past the round limit",
			slog.Int("rounds", rounds),
			slog.Int("dropped", len(reply.ToolCalls)))
	}

	final := reply.Text
	if final == "" {
		final = FallbackReply
	}
	if err := appendMsg(model.AssistantTextMessage{Text: final}); err != nil {
		return "", rounds, err
	}
	return final, rounds, nil
}

func (o *Orchestrator) runTool(ctx context.Context, logger *slog.Logger, userID string, call model.ToolCall) dispatcher.Result {
	session, err := o.sessions.AcquireSession(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load credentials", logging.Tool(call.Operation), logging.Err(err))
		return dispatcher.ErrorResult(err)
	}
	if session != nil && session.Stale {
		logger.InfoContext(ctx, "running tool with a stale session", logging.Tool(call.Operation))
	}
	return o.exec.ExecuteCall(ctx, call, userID, session)
}
