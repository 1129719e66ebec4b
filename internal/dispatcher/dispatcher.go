package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/meetmate/internal/credentials"
	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// Dispatcher executes agent-requested commands for one user at a time.
type Dispatcher struct {
	store     AppointmentStore
	providers ProviderFactory
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLocation sets the zone for times given without an offset and for
// times shown back to the agent. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// New creates a Dispatcher.
func New(store AppointmentStore, providers ProviderFactory, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		providers: providers,
		loc:       time.UTC,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Location is the zone used to interpret and render times.
func (d *Dispatcher) Location() *time.Location {
	return d.loc
}

// Execute runs the named command with the agent's raw JSON arguments on
// behalf of userID. A nil session means the user has not connected an
// account. Execute never fails: every error becomes an error Result.
func (d *Dispatcher) Execute(ctx context.Context, operation, arguments, userID string, session *credentials.Session) Result {
	return d.ExecuteCall(ctx, model.ToolCall{Operation: operation, Arguments: arguments}, userID, session)
}

// ExecuteCall is Execute for a ToolCall, tagging logs and spans with its id.
func (d *Dispatcher) ExecuteCall(ctx context.Context, call model.ToolCall, userID string, session *credentials.Session) (res Result) {
	start := time.Now()
	ctx, span := instrumentation.StartToolSpan(ctx, call.Operation,
		attribute.String(instrumentation.SpanAttrCallID, call.ID),
		attribute.String(instrumentation.SpanAttrUserHash, logging.AnonymizeUser(userID)),
	)
	invocation := instrumentation.NewToolInvocation(call.Operation).
		WithUser(userID).
		WithCallID(call.ID).
		WithSpanContext(ctx)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", call.Operation, r)
			d.logger.ErrorContext(ctx, "command panicked",
				logging.Tool(call.Operation),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
			res = ErrorResult(err)
		}

		invocation.Complete(err == nil, err)
		d.metrics.RecordToolInvocation(ctx, call.Operation, invocation.Status(), time.Since(start))
		d.audit.LogToolInvocation(ctx, invocation)
		span.SetAttributes(attribute.String(instrumentation.SpanAttrStatus, invocation.Status()))
		instrumentation.EndSpan(span, err)
	}()

	var data any
	data, err = d.run(ctx, call, userID, session)
	if err != nil {
		d.logger.DebugContext(ctx, "command failed",
			logging.Tool(call.Operation),
			logging.CallID(call.ID),
			logging.UserHash(userID),
			logging.Err(err))
		return ErrorResult(err)
	}
	return success(data)
}

func (d *Dispatcher) run(ctx context.Context, call model.ToolCall, userID string, session *credentials.Session) (any, error) {
	cmd, ok := commandTable[call.Operation]
	if !ok {
		return nil, &model.AgentProtocolError{Op: call.Operation, Err: fmt.Errorf("unknown operation %q", call.Operation)}
	}
	if session == nil {
		return nil, &model.AuthExpiredError{Op: call.Operation}
	}

	providers, err := d.providers.Providers(ctx, session)
	if err != nil {
		return nil, &model.ExternalProviderError{Op: call.Operation, Provider: "google", Err: err}
	}

	env := &env{
		d:         d,
		op:        call.Operation,
		userID:    userID,
		providers: providers,
	}
	return cmd.run(ctx, env, call.Arguments)
}

// env is what a command handler sees for one execution.
type env struct {
	d         *Dispatcher
	op        string
	userID    string
	providers *Providers
}

func (e *env) logger() *slog.Logger {
	return e.d.logger.With(logging.Tool(e.op), logging.UserHash(e.userID))
}
