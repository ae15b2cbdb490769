// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the evegate MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for upstream ESI requests, caching, rate limiting, and OAuth
//   - Distributed tracing for tool invocations and upstream calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Upstream API Metrics:
//   - esi_requests_total: Counter of upstream requests by method, path, and status
//   - esi_request_duration_seconds: Histogram of upstream request durations
//
// Cache Metrics:
//   - cache_events_total: Counter of response cache events by result (hit, stale, miss, revalidated, store)
//
// Rate Limiter Metrics:
//   - rate_limit_waits_total: Counter of rate-limit waits by group and reason
//
// OAuth Authentication Metrics:
//   - oauth_auth_total: Counter of OAuth authentication events by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//   - active_sessions: Gauge of active MCP sessions
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - MCP tool invocations (tool.<name>)
//   - Upstream API calls (esi.<group>.<operation>)
//   - OAuth token operations
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: evegate)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "evegate",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an upstream request
//	recorder.RecordESIRequest(ctx, "GET", "/characters/{id}/assets", 200, time.Since(start))
//
//	// Record a cache event
//	recorder.RecordCacheEvent(ctx, instrumentation.CacheHit)
//
//	// Record an MCP tool invocation
//	recorder.RecordToolInvocation(ctx, "evegate_get", "success", time.Since(start))
package instrumentation
