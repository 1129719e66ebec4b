// Package chat connects the messaging channel to the conversation
// orchestrator.
package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/signal"
)

// DefaultRatePerMinute is the inbound message budget per user.
const DefaultRatePerMinute = 20

// limiterPruneInterval is how often idle per-user limiters are dropped.
const limiterPruneInterval = time.Minute

// RateLimitedReply is sent once when a user exceeds the inbound budget.
const RateLimitedReply = "You're sending messages faster than I can keep up. Please wait a minute and try again."

// Handler turns a user message into a reply.
type Handler interface {
	HandleIncomingMessage(ctx context.Context, userID, text string) string
}

// Channel is the messaging transport.
type Channel interface {
	Send(ctx context.Context, recipient, text string) error
	ReceiveMessages(ctx context.Context, pollInterval time.Duration, fn func(context.Context, signal.Message)) error
}

// Listener receives direct messages, runs them through the Handler and
// sends the reply back to the sender.
type Listener struct {
	channel Channel
	handler Handler
	poll    time.Duration
	perMin  int
	allowed map[string]bool
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*userLimiter
	lastPrune time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	notified bool
}

// Option configures a Listener.
type Option func(*Listener)

// WithPollInterval sets how long each receive call waits for messages.
func WithPollInterval(d time.Duration) Option {
	return func(l *Listener) { l.poll = d }
}

// WithRatePerMinute sets the per-user inbound budget. Zero or less disables
// limiting.
func WithRatePerMinute(n int) Option {
	return func(l *Listener) { l.perMin = n }
}

// WithAllowedSenders restricts the assistant to the given phone numbers.
// An empty list allows everyone.
func WithAllowedSenders(numbers []string) Option {
	return func(l *Listener) {
		if len(numbers) == 0 {
			l.allowed = nil
			return
		}
		l.allowed = make(map[string]bool, len(numbers))
		for _, n := range numbers {
			l.allowed[n] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) { l.logger = logger }
}

// WithMetrics records inbound message outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithClock overrides the time source used for rate limiting.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// NewListener creates a Listener.
func NewListener(channel Channel, handler Handler, opts ...Option) *Listener {
	l := &Listener{
		channel:  channel,
		handler:  handler,
		poll:     5 * time.Second,
		perMin:   DefaultRatePerMinute,
		logger:   slog.Default(),
		now:      time.Now,
		limiters: make(map[string]*userLimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run receives messages until ctx is cancelled. It returns nil on
// cancellation.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.InfoContext(ctx, "chat listener started", slog.Duration("poll_interval", l.poll))
	err := l.channel.ReceiveMessages(ctx, l.poll, l.Handle)
	if ctx.Err() != nil {
		l.logger.InfoContext(ctx, "chat listener stopped")
		return nil
	}
	return err
}

// Handle processes one inbound message. Group messages, messages without
// a sender and messages from senders outside the allow list are ignored.
func (l *Listener) Handle(ctx context.Context, msg signal.Message) {
	if msg.GroupID != "" || msg.Sender == "" {
		return
	}
	logger := logging.WithUser(l.logger, msg.Sender)
	if l.allowed != nil && !l.allowed[msg.Sender] {
		logger.DebugContext(ctx, "ignoring message from sender outside the allow list")
		return
	}

	allowed, notify := l.allow(msg.Sender)
	if !allowed {
		l.metrics.RecordInbound(ctx, instrumentation.InboundRateLimited)
		logger.WarnContext(ctx, "inbound message rate limited")
		if notify {
			l.reply(ctx, logger, msg.Sender, RateLimitedReply)
		}
		return
	}

	reply := l.handler.HandleIncomingMessage(ctx, msg.Sender, msg.Text)
	if reply == "" {
		l.metrics.RecordInbound(ctx, instrumentation.InboundAccepted)
		return
	}
	if l.reply(ctx, logger, msg.Sender, reply) {
		l.metrics.RecordInbound(ctx, instrumentation.InboundAccepted)
	} else {
		l.metrics.RecordInbound(ctx, instrumentation.InboundFailed)
	}
}

func (l *Listener) reply(ctx context.Context, logger *slog.Logger, to, text string) bool {
	if err := l.channel.Send(ctx, to, text); err != nil {
		logger.ErrorContext(ctx, "failed to send reply", logging.Err(err))
		return false
	}
	return true
}

// allow reports whether userID may send another message. notify is true
// for the first rejection after a period of allowed messages.
func (l *Listener) allow(userID string) (allowed, notify bool) {
	if l.perMin <= 0 {
		return true, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLimiters(now)

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)}
		l.limiters[userID] = ul
	}
	if ul.limiter.AllowN(now, 1) {
		ul.notified = false
		return true, false
	}
	notify = !ul.notified
	ul.notified = true
	return false, notify
}

// pruneLimiters drops limiters whose bucket has refilled, at most once per
// limiterPruneInterval. A full bucket behaves like a new one. The caller
// holds l.mu.
func (l *Listener) pruneLimiters(now time.Time) {
	if now.Sub(l.lastPrune) < limiterPruneInterval {
		return
	}
	l.lastPrune = now
	for id, ul := range l.limiters {
		if ul.limiter.TokensAt(now) >= float64(ul.limiter.Burst()) {
			delete(l.limiters, id)
		}
	}
}
