package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/payables/internal/config"
)

// Config is the observability view of the process configuration. Values come
// from the standard OTEL_* variables, falling back to the app config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	Traces  ExportConfig
	Metrics ExportConfig

	SamplingRatio float64
}

// ExportConfig describes one OTLP signal pipeline.
type ExportConfig struct {
	Enabled  bool
	Endpoint string
	Protocol string
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "payables"
	}

	enabled := envBool("OTEL_ENABLED", false)
	endpoint := env("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	protocol := strings.ToLower(env("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))

	return Config{
		ServiceName: serviceName,
		Environment: env("DEPLOYMENT_ENV", cfg.Environment),
		Version:     env("SERVICE_VERSION", cfg.AppVersion),
		LogLevel:    strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(env("LOG_FORMAT", "json")),
		Traces: ExportConfig{
			Enabled:  envBool("OTEL_TRACES_ENABLED", enabled),
			Endpoint: env("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", endpoint),
			Protocol: strings.ToLower(env("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", protocol)),
		},
		Metrics: ExportConfig{
			Enabled:  envBool("OTEL_METRICS_ENABLED", enabled),
			Endpoint: env("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", endpoint),
			Protocol: strings.ToLower(env("OTEL_EXPORTER_OTLP_METRICS_PROTOCOL", protocol)),
		},
		SamplingRatio: clampRatio(envFloat("OTEL_SAMPLING_RATIO", 0.1)),
	}
}

// Debug is true for debug logging or any non-production-like environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func clampRatio(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

func env(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func envBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	switch strings.ToLower(value) {
	case "y", "yes", "on":
		return true
	case "n", "no", "off":
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
