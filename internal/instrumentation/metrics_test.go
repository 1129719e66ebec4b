package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

// counterValue sums the data points of an int64 counter whose attributes
// contain every key/value in match.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, not an int64 sum", name, m.Data)
			}
		dp:
			for _, p := range sum.DataPoints {
				for _, kv := range match {
					v, ok := p.Attributes.Value(kv.Key)
					if !ok || v != kv.Value {
						continue dp
					}
				}
				total += p.Value
			}
		}
	}
	return total
}

func TestMetrics_RecordReminder(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordReminder(ctx, "15m", ReminderSent)
	m.RecordReminder(ctx, "15m", ReminderSent)
	m.RecordReminder(ctx, "24h", ReminderFailed)

	if got := counterValue(t, reader, "reminders_sent_total", attribute.String("tier", "15m"), attribute.String("result", ReminderSent)); got != 2 {
		t.Errorf("15m sent = %d, want 2", got)
	}
	if got := counterValue(t, reader, "reminders_sent_total", attribute.String("result", ReminderFailed)); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordToolInvocation(ctx, "create_appointment", StatusSuccess, 120*time.Millisecond)
	m.RecordToolInvocation(ctx, "delete_appointment", StatusError, 10*time.Millisecond)

	if got := counterValue(t, reader, "tool_invocations_total", attribute.String("tool", "create_appointment")); got != 1 {
		t.Errorf("create_appointment = %d, want 1", got)
	}
	if got := counterValue(t, reader, "tool_invocations_total", attribute.String("status", StatusError)); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestMetrics_Counters(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	m.RecordTurn(ctx, StatusSuccess, 2, time.Second)
	m.RecordAgentRequest(ctx, StatusSuccess, 300*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceCalendar, "insert", StatusSuccess, 200*time.Millisecond)
	m.RecordTokenRefresh(ctx, RefreshFailure)
	m.RecordSweepSkipped(ctx)
	m.RecordInbound(ctx, InboundRateLimited)
	m.RecordSweep(ctx, 50*time.Millisecond)

	tests := []struct {
		name  string
		match []attribute.KeyValue
	}{
		{"http_requests_total", []attribute.KeyValue{attribute.String("status", "200")}},
		{"conversation_turns_total", []attribute.KeyValue{attribute.Int("rounds", 2)}},
		{"agent_requests_total", nil},
		{"google_api_operations_total", []attribute.KeyValue{attribute.String("service", ServiceCalendar)}},
		{"oauth_token_refresh_total", []attribute.KeyValue{attribute.String("result", RefreshFailure)}},
		{"reminder_sweeps_skipped_total", nil},
		{"inbound_messages_total", []attribute.KeyValue{attribute.String("result", InboundRateLimited)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reader, tt.name, tt.match...); got != 1 {
				t.Errorf("%s = %d, want 1", tt.name, got)
			}
		})
	}
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{ServiceName: "test-service", Enabled: false})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	var nilMetrics *Metrics

	for _, m := range []*Metrics{metrics, nilMetrics} {
		// None of these may panic.
		m.RecordHTTPRequest(ctx, "GET", "/metrics", 200, time.Millisecond)
		m.RecordTurn(ctx, StatusSuccess, 1, time.Second)
		m.RecordAgentRequest(ctx, StatusError, time.Second)
		m.RecordToolInvocation(ctx, "list_appointments", StatusSuccess, time.Millisecond)
		m.RecordGoogleAPIOperation(ctx, ServiceGmail, "send", StatusSuccess, time.Millisecond)
		m.RecordTokenRefresh(ctx, RefreshSuccess)
		m.RecordReminder(ctx, "1h", ReminderSent)
		m.RecordSweep(ctx, time.Millisecond)
		m.RecordSweepSkipped(ctx)
		m.RecordInbound(ctx, InboundAccepted)
	}
}
