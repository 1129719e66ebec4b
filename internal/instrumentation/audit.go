package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/meetmate/internal/logging"
	"github.com/teemow/meetmate/internal/model"
)

// ToolInvocation captures one dispatched command for the audit trail.
//
// UserID is the chat identity (a phone number) and is PII. LogAttrs only
// emits its hash; LogAuditAttrs emits the raw value.
type ToolInvocation struct {
	Tool   string
	CallID string
	UserID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string
	ErrorKind string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a ToolInvocation with timing started.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithUser sets the chat identity the command runs for.
func (ti *ToolInvocation) WithUser(userID string) *ToolInvocation {
	ti.UserID = userID
	return ti
}

// WithCallID sets the model-assigned call id.
func (ti *ToolInvocation) WithCallID(callID string) *ToolInvocation {
	ti.CallID = callID
	return ti
}

// WithSpanContext copies the trace context of the span in ctx.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete stops the clock and records the outcome. A non-nil err marks
// the invocation failed regardless of success.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success && err == nil
	if err != nil {
		ti.Error = err.Error()
		ti.ErrorKind = model.ErrorKind(err)
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// UserHash returns the anonymized user id.
func (ti *ToolInvocation) UserHash() string {
	return logging.AnonymizeUser(ti.UserID)
}

// LogAttrs returns attributes safe for operational logs.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	return ti.attrs(slog.String(logging.KeyUserHash, ti.UserHash()))
}

// LogAuditAttrs returns attributes including the raw user id.
// Route these to storage with appropriate access controls.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	return ti.attrs(slog.String("user", ti.UserID))
}

func (ti *ToolInvocation) attrs(identity slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		identity,
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.CallID != "" {
		attrs = append(attrs, slog.String(logging.KeyCallID, ti.CallID))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs,
			slog.String(logging.KeyError, ti.Error),
			slog.String("error_kind", ti.ErrorKind),
		)
	}
	return attrs
}

// AuditLogger writes one record per tool invocation.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that hashes user ids.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogToolInvocation logs ti at info on success and warn on failure.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	attrs := ti.LogAttrs()
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, attrs...)
}
