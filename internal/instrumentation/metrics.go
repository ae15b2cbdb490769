package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrResult    = "result"
	attrGroup     = "group"
	attrReason    = "reason"
	attrTool      = "tool"
	attrCharacter = "character"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// Upstream API metrics
	esiRequestsTotal   metric.Int64Counter
	esiRequestDuration metric.Float64Histogram

	// Response cache metrics
	cacheEventsTotal metric.Int64Counter

	// Rate limiter metrics
	rateLimitWaitsTotal metric.Int64Counter

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram
	activeSessions       metric.Int64UpDownCounter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// Upstream API metrics
	m.esiRequestsTotal, err = meter.Int64Counter(
		"esi_requests_total",
		metric.WithDescription("Total number of upstream ESI requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create esi_requests_total counter: %w", err)
	}

	m.esiRequestDuration, err = meter.Float64Histogram(
		"esi_request_duration_seconds",
		metric.WithDescription("Upstream ESI request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create esi_request_duration_seconds histogram: %w", err)
	}

	// Cache metrics
	m.cacheEventsTotal, err = meter.Int64Counter(
		"cache_events_total",
		metric.WithDescription("Total number of response cache events by result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_events_total counter: %w", err)
	}

	// Rate limiter metrics
	m.rateLimitWaitsTotal, err = meter.Int64Counter(
		"rate_limit_waits_total",
		metric.WithDescription("Total number of rate-limit waits by group and reason"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_waits_total counter: %w", err)
	}

	// OAuth Metrics
	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active MCP sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	return m, nil
}

// RecordESIRequest records an upstream request with method, path, status code,
// and duration. The path must be pre-normalized (numeric IDs replaced with a
// placeholder) so each endpoint template yields one label series.
func (m *Metrics) RecordESIRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.esiRequestsTotal == nil || m.esiRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.esiRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.esiRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCacheEvent records a response-cache event.
// Result should be one of: CacheHit, CacheStale, CacheMiss,
// CacheRevalidated, CacheStore.
func (m *Metrics) RecordCacheEvent(ctx context.Context, result string) {
	if m.cacheEventsTotal == nil {
		return // Instrumentation not initialized
	}

	m.cacheEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordRateLimitWait records a rate-limit induced wait.
// Reason should be one of: WaitGraduated, WaitExponential, WaitReset,
// WaitRetryAfter. The group is the server-assigned rate-limit group
// ("legacy" for the global error budget).
func (m *Metrics) RecordRateLimitWait(ctx context.Context, group, reason string) {
	if m.rateLimitWaitsTotal == nil {
		return // Instrumentation not initialized
	}

	m.rateLimitWaitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrGroup, group),
		attribute.String(attrReason, reason),
	))
}

// RecordOAuthAuth records an OAuth authentication attempt with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrResult, result),
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "evegate_get", "evegate_status")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocationWithCharacter records an MCP tool invocation attributed
// to a character. The character label is only attached when detailedLabels is
// enabled; each authenticated character otherwise widens the series set.
func (m *Metrics) RecordToolInvocationWithCharacter(ctx context.Context, toolName, status string, characterID int64, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && characterID > 0 {
		attrs = append(attrs, attribute.String(attrCharacter, strconv.FormatInt(characterID, 10)))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}
