package instrumentation

import (
	"context"
	"testing"
	"time"
)

func testConfig(metrics, tracing string) Config {
	return Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: metrics,
		TracingExporter: tracing,
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected tracer to be non-nil (no-op)")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"prometheus", testConfig(ExporterPrometheus, ExporterNone), false},
		{"stdout", testConfig(ExporterStdout, ExporterStdout), false},
		{"invalid metrics exporter", testConfig("invalid", ExporterNone), true},
		{"invalid tracing exporter", testConfig(ExporterPrometheus, "invalid"), true},
		{"otlp tracing without endpoint", testConfig(ExporterPrometheus, ExporterOTLP), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			provider, err := NewProvider(ctx, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer func() { _ = provider.Shutdown(ctx) }()

			if !provider.Enabled() {
				t.Error("expected provider to be enabled")
			}
			if provider.Metrics() == nil {
				t.Error("expected metrics to be non-nil")
			}
			if provider.Tracer("test") == nil {
				t.Error("expected tracer to be non-nil")
			}
		})
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	if p.Enabled() {
		t.Error("nil provider reports enabled")
	}
	if p.Metrics() == nil {
		t.Error("nil provider returned nil metrics")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}
