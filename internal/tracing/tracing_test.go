package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/mikann-OMO/bot/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() = %v, want nil", err)
	}
}

func TestSetupRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelemetryConfig
	}{
		{"no endpoint", config.TelemetryConfig{Enabled: true}},
		{"protocol", config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", Protocol: "thrift"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Setup(context.Background(), tt.cfg, "test"); err == nil {
				t.Error("Setup() = nil error, want error")
			}
		})
	}
}

func TestSetupHTTPExportsSpans(t *testing.T) {
	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		if r.Header.Get("X-Api-Key") != "k" {
			t.Errorf("X-Api-Key = %q, want k", r.Header.Get("X-Api-Key"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	shutdown, err := Setup(ctx, config.TelemetryConfig{
		Enabled:  true,
		Endpoint: srv.URL,
		Protocol: "http",
		Insecure: true,
		Headers:  map[string]string{"X-Api-Key": "k"},
	}, "test")
	if err != nil {
		t.Fatalf("Setup() error: %v", err)
	}

	_, span := otel.Tracer("test").Start(ctx, "dispatch")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error: %v", err)
	}
	if hits.Load() == 0 {
		t.Fatal("collector received no export request")
	}
	if got := path.Load(); got != "/v1/traces" {
		t.Errorf("export path = %v, want /v1/traces", got)
	}
}

func TestTracesURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://otel:4318", "http://otel:4318/v1/traces"},
		{"https://otel.example.com/", "https://otel.example.com/v1/traces"},
		{"https://otel.example.com/custom/traces", "https://otel.example.com/custom/traces"},
	}
	for _, tt := range tests {
		if got := tracesURL(tt.in); got != tt.want {
			t.Errorf("tracesURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
