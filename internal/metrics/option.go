package metrics

import (
	"strconv"
	"strings"

	"github.com/fd1az/flashloan-executor/internal/config"
)

type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "customOtelCollector"
	InsecureOtel                = false
	SecureOtel                  = true
)

func NewOtelCollectorConfig(url string, headers map[string]string, insecure bool) ProviderCfg {
	return ProviderCfg{
		Provider: OtelCollector,
		Endpoint: url,
		Headers:  headers,
		Insecure: insecure,
	}
}

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

type OptionFn func(config Config) Config

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)

		return config
	}
}

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName

		return config
	}
}

// FromTelemetry derives provider options from the telemetry section.
// Disabled telemetry yields no providers.
func FromTelemetry(cfg config.TelemetryConfig) []OptionFn {
	if !cfg.Enabled {
		return nil
	}

	opts := []OptionFn{WithServiceName(cfg.ServiceName)}

	switch cfg.MetricExporter {
	case "otlp-grpc":
		headers := make(map[string]string)
		for _, pair := range strings.Split(cfg.OTLPHeaders, ",") {
			if k, v, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
				headers[k] = v
			}
		}
		insecure := strings.HasPrefix(cfg.OTLPEndpoint, "http://")
		opts = append(opts, WithProviderConfig(NewOtelCollectorConfig(cfg.OTLPEndpoint, headers, insecure)))
	default:
		opts = append(opts, WithProviderConfig(ProviderCfg{Provider: PrometheusProvider}))
	}

	return opts
}

type PromServerConfig struct {
	port string
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

func WithPort(port int) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		if port > 0 {
			config.port = strconv.Itoa(port)
		}
		return config
	}
}
