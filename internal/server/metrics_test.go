package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/meetmate/internal/instrumentation"
)

func TestNewMetricsServer(t *testing.T) {
	tests := []struct {
		name     string
		config   func(t *testing.T) MetricsServerConfig
		wantAddr string
		wantErr  string
	}{
		{
			name: "explicit addr",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9191", InstrumentationProvider: createTestProvider(t)}
			},
			wantAddr: ":9191",
		},
		{
			name: "default addr",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{InstrumentationProvider: createTestProvider(t)}
			},
			wantAddr: DefaultMetricsAddr,
		},
		{
			name: "nil provider",
			config: func(*testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090"}
			},
			wantErr: "instrumentation provider is required",
		},
		{
			name: "disabled provider",
			config: func(t *testing.T) MetricsServerConfig {
				return MetricsServerConfig{Addr: ":9090", InstrumentationProvider: createDisabledProvider(t)}
			},
			wantErr: "instrumentation provider is not enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewMetricsServer(tt.config(t))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, srv.Addr())
		})
	}
}

func TestMetricsServerExposesAssistantMetrics(t *testing.T) {
	provider := createTestProvider(t)
	ctx := context.Background()
	m := provider.Metrics()
	m.RecordInbound(ctx, instrumentation.InboundAccepted)
	m.RecordReminder(ctx, "15m", instrumentation.ReminderSent)
	m.RecordToolInvocation(ctx, "create_appointment", instrumentation.StatusSuccess, 120*time.Millisecond)

	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: provider})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{"inbound_messages_total", "reminders_sent_total", "tool_invocations_total"} {
		assert.Contains(t, body, name)
	}
	assert.Contains(t, body, `tier="15m"`)
}

func TestMetricsServerHealthz(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: createTestProvider(t)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsServerRunStopsOnCancel(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{
		Addr:                    "127.0.0.1:0",
		InstrumentationProvider: createTestProvider(t),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMetricsServerShutdownWithoutRun(t *testing.T) {
	srv, err := NewMetricsServer(MetricsServerConfig{InstrumentationProvider: createTestProvider(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func createTestProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName:     "meetmate-test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func createDisabledProvider(t *testing.T) *instrumentation.Provider {
	t.Helper()
	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{
		ServiceName: "meetmate-test",
		Enabled:     false,
	})
	require.NoError(t, err)
	return provider
}
