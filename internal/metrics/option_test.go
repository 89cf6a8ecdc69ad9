package metrics

import (
	"testing"

	"github.com/fd1az/flashloan-executor/internal/config"
)

func TestFromTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TelemetryConfig
		wantLen  int
		wantProv Provider
	}{
		{
			name: "disabled",
			cfg:  config.TelemetryConfig{Enabled: false},
		},
		{
			name:     "prometheus default",
			cfg:      config.TelemetryConfig{Enabled: true, ServiceName: "svc"},
			wantLen:  1,
			wantProv: PrometheusProvider,
		},
		{
			name: "otlp grpc",
			cfg: config.TelemetryConfig{
				Enabled:        true,
				MetricExporter: "otlp-grpc",
				OTLPEndpoint:   "http://collector:4317",
				OTLPHeaders:    "api-key=secret",
			},
			wantLen:  1,
			wantProv: OtelCollector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			for _, opt := range FromTelemetry(tt.cfg) {
				cfg = opt(cfg)
			}

			if len(cfg.Provider) != tt.wantLen {
				t.Fatalf("providers = %d, want %d", len(cfg.Provider), tt.wantLen)
			}
			if tt.wantLen == 0 {
				return
			}
			p := cfg.Provider[0]
			if p.Provider != tt.wantProv {
				t.Errorf("provider = %s, want %s", p.Provider, tt.wantProv)
			}
			if p.Provider == OtelCollector {
				if !p.Insecure {
					t.Error("expected insecure for http endpoint")
				}
				if p.Headers["api-key"] != "secret" {
					t.Errorf("headers = %v", p.Headers)
				}
			}
		})
	}
}

func TestWithPort(t *testing.T) {
	s := NewPrometheusServer(WithPort(9191))
	if s.Addr() != ":9191" {
		t.Errorf("addr = %s", s.Addr())
	}

	s = NewPrometheusServer(WithPort(0))
	if s.Addr() != ":2223" {
		t.Errorf("default addr = %s", s.Addr())
	}
}
