package tracing

import (
	"context"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{ServiceName: "vigil-api", Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider() returned error: %v", err)
	}
	if p.IsEnabled() {
		t.Error("IsEnabled() = true for disabled config")
	}
	if tr := p.Tracer("test"); tr == nil {
		t.Error("Tracer() = nil, want a fallback tracer")
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{Enabled: true, SamplingRate: 0.1}},
		{"negative sampling rate", Config{ServiceName: "vigil-api", Enabled: true, SamplingRate: -0.1}},
		{"sampling rate above one", Config{ServiceName: "vigil-api", Enabled: true, SamplingRate: 1.5}},
		{"unknown exporter", Config{ServiceName: "vigil-api", Enabled: true, SamplingRate: 0.1, ExporterType: "jaeger-thrift"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Error("NewProvider() = nil error, want validation failure")
			}
		})
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"otlp-http", Config{ServiceName: "vigil-api", Enabled: true, Environment: "test", ExporterType: "otlp-http", OTLPEndpoint: "localhost:4318", SamplingRate: 0.1, InsecureMode: true}},
		{"otlp-grpc", Config{ServiceName: "vigil-api", Enabled: true, Environment: "test", ExporterType: "otlp-grpc", OTLPEndpoint: "localhost:4317", SamplingRate: 1.0, InsecureMode: true}},
		{"default exporter", Config{ServiceName: "vigil-api", Enabled: true, Environment: "test", SamplingRate: 0.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("NewProvider() returned error: %v", err)
			}
			if !p.IsEnabled() {
				t.Error("IsEnabled() = false, want true")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown() returned error: %v", err)
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want sdktrace.Sampler
	}{
		{1.0, sdktrace.AlwaysSample()},
		{0.0, sdktrace.NeverSample()},
		{0.25, sdktrace.TraceIDRatioBased(0.25)},
	}

	for _, tt := range tests {
		if got := samplerFor(tt.rate); got.Description() != tt.want.Description() {
			t.Errorf("samplerFor(%v) = %q, want %q", tt.rate, got.Description(), tt.want.Description())
		}
	}
}

func TestProvider_ShutdownWithoutProvider(t *testing.T) {
	p := &Provider{}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() on inert provider = %v, want nil", err)
	}
}
