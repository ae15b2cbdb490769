package instrumentation

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for OpenTelemetry instrumentation.
// Fields follow the standard OTEL_* environment variables where one
// exists; the rest use evegate-specific names.
type Config struct {
	// ServiceName identifies the service in exported telemetry.
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"evegate"`

	// ServiceVersion is set by the caller from the build version.
	ServiceVersion string `env:"-"`

	// ServiceInstanceID defaults to the hostname when empty.
	ServiceInstanceID string `env:"OTEL_SERVICE_INSTANCE_ID"`

	// Enabled turns the whole provider on or off.
	Enabled bool `env:"INSTRUMENTATION_ENABLED" envDefault:"true"`

	// MetricsExporter selects "prometheus", "otlp" or "stdout".
	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"prometheus"`

	// TracingExporter selects "otlp", "stdout" or "none".
	TracingExporter string `env:"TRACING_EXPORTER" envDefault:"none"`

	// OTLPEndpoint is the collector endpoint, host:port without scheme.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// OTLPInsecure disables TLS toward the collector. Spans carry
	// request metadata, so leave this off outside local development.
	OTLPInsecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`

	// TraceSamplingRate is the head-sampling ratio, 0.0 to 1.0.
	TraceSamplingRate float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"0.1"`

	// PrometheusEndpoint is the metrics HTTP path.
	PrometheusEndpoint string `env:"PROMETHEUS_ENDPOINT" envDefault:"/metrics"`

	// DetailedLabels admits high-cardinality labels (per-character
	// identifiers) into tool metrics. Keep off in production.
	DetailedLabels bool `env:"METRICS_DETAILED_LABELS" envDefault:"false"`

	// AuditLogging configures the audit event stream.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled controls whether tool invocations produce audit events.
	// Audit logs identify whose data was accessed and should be routed
	// to secure storage.
	Enabled bool `env:"AUDIT_LOGGING_ENABLED" envDefault:"true"`

	// IncludePII switches audit events from masked character
	// identifiers to full IDs and names.
	IncludePII bool `env:"AUDIT_LOGGING_INCLUDE_PII" envDefault:"false"`

	// LogLevel sets the slog level audit events are emitted at.
	LogLevel string `env:"AUDIT_LOGGING_LEVEL" envDefault:"info"`
}

// DefaultConfig loads instrumentation settings from the environment.
// Unparseable values fall back to a pure-defaults config rather than
// failing startup; telemetry config must never keep the gateway down.
func DefaultConfig() Config {
	cfg := Config{ServiceVersion: "unknown"}
	if err := env.Parse(&cfg); err != nil {
		cfg = Config{ServiceVersion: "unknown"}
		_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	}
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLPEndpoint == "" {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultExpired = "expired"

	// Cache event results
	CacheHit         = "hit"
	CacheStale       = "stale"
	CacheMiss        = "miss"
	CacheRevalidated = "revalidated"
	CacheStore       = "store"

	// Rate-limit wait reasons
	WaitGraduated   = "graduated"
	WaitExponential = "exponential"
	WaitReset       = "reset"
	WaitRetryAfter  = "retry_after"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
