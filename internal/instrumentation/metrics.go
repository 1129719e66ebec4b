package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrTier      = "tier"
	attrRounds    = "rounds"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Metrics records the assistant's counters and histograms. A zero Metrics
// is a valid no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	turnsTotal   metric.Int64Counter
	turnDuration metric.Float64Histogram

	agentRequestsTotal   metric.Int64Counter
	agentRequestDuration metric.Float64Histogram

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	tokenRefreshTotal metric.Int64Counter

	remindersTotal metric.Int64Counter
	sweepDuration  metric.Float64Histogram
	sweepsSkipped  metric.Int64Counter

	inboundTotal metric.Int64Counter
}

type counterSpec struct {
	dst  *metric.Int64Counter
	name string
	desc string
	unit string
}

type histogramSpec struct {
	dst  *metric.Float64Histogram
	name string
	desc string
}

// NewMetrics creates a Metrics instance with every instrument registered on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	counters := []counterSpec{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.turnsTotal, "conversation_turns_total", "Total number of conversation turns", "{turn}"},
		{&m.agentRequestsTotal, "agent_requests_total", "Total number of language model requests", "{request}"},
		{&m.toolInvocationsTotal, "tool_invocations_total", "Total number of dispatched tool invocations", "{invocation}"},
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.tokenRefreshTotal, "oauth_token_refresh_total", "Total number of OAuth token refresh attempts", "{attempt}"},
		{&m.remindersTotal, "reminders_sent_total", "Total number of reminder deliveries by tier and result", "{reminder}"},
		{&m.sweepsSkipped, "reminder_sweeps_skipped_total", "Reminder ticks skipped because a sweep was running", "{sweep}"},
		{&m.inboundTotal, "inbound_messages_total", "Total number of inbound chat messages by result", "{message}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	histograms := []histogramSpec{
		{&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&m.turnDuration, "conversation_turn_duration_seconds", "Conversation turn duration in seconds"},
		{&m.agentRequestDuration, "agent_request_duration_seconds", "Language model request duration in seconds"},
		{&m.toolDuration, "tool_duration_seconds", "Tool execution duration in seconds"},
		{&m.googleAPIOperationDuration, "google_api_operation_duration_seconds", "Google API operation duration in seconds"},
		{&m.sweepDuration, "reminder_sweep_duration_seconds", "Reminder sweep duration in seconds"},
	}
	for _, h := range histograms {
		hist, err := meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(durationBuckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.dst = hist
	}

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.turnsTotal != nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTurn records one handled inbound message and the number of model
// rounds it took.
func (m *Metrics) RecordTurn(ctx context.Context, status string, rounds int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.turnsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
		attribute.Int(attrRounds, rounds),
	))
	m.turnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordAgentRequest records one chat completion round trip.
func (m *Metrics) RecordAgentRequest(ctx context.Context, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.agentRequestsTotal.Add(ctx, 1, attrs)
	m.agentRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records a dispatched command with its outcome.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records a Google API call.
//
// Parameters:
//   - service: calendar, gmail or oauth
//   - operation: insert, list, patch, delete, get, send, exchange
//   - status: "success" or "error"
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordTokenRefresh records a credential refresh attempt.
// Result is one of RefreshSuccess, RefreshFailure, RefreshSkipped.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if !m.enabled() {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordReminder records one reminder delivery attempt for a tier.
func (m *Metrics) RecordReminder(ctx context.Context, tier, result string) {
	if !m.enabled() {
		return
	}
	m.remindersTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTier, tier),
		attribute.String(attrResult, result),
	))
}

// RecordSweep records the duration of a completed reminder sweep.
func (m *Metrics) RecordSweep(ctx context.Context, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.sweepDuration.Record(ctx, duration.Seconds())
}

// RecordSweepSkipped counts a tick that found a sweep already running.
func (m *Metrics) RecordSweepSkipped(ctx context.Context) {
	if !m.enabled() {
		return
	}
	m.sweepsSkipped.Add(ctx, 1)
}

// RecordInbound records an inbound chat message.
// Result is one of InboundAccepted, InboundRateLimited, InboundFailed.
func (m *Metrics) RecordInbound(ctx context.Context, result string) {
	if !m.enabled() {
		return
	}
	m.inboundTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}
