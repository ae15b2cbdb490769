package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker provides liveness and readiness endpoints for the serve
// command's HTTP side.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// probeReady reports the drain flag.
func (h *HealthChecker) probeReady() (string, bool) {
	if h.ready.Load() {
		return healthStatusOK, true
	}
	return healthStatusNotReady, false
}

// probeClient reports whether the upstream client is wired. A nil
// serverContext counts as unwired.
func (h *HealthChecker) probeClient() (string, bool) {
	if h.serverContext != nil && h.serverContext.Client() != nil {
		return healthStatusOK, true
	}
	return healthStatusNotReady, false
}

// probeShutdown reports whether the server context has been torn down.
func (h *HealthChecker) probeShutdown() (string, bool) {
	if h.serverContext != nil && h.serverContext.IsShutdown() {
		return healthStatusShuttingDown, false
	}
	return healthStatusOK, true
}

// runProbes evaluates every readiness probe and reports the aggregate.
func (h *HealthChecker) runProbes() (map[string]string, bool) {
	probes := []struct {
		name  string
		probe func() (string, bool)
	}{
		{"ready", h.probeReady},
		{"client", h.probeClient},
		{"shutdown", h.probeShutdown},
	}

	checks := make(map[string]string, len(probes))
	allOk := true
	for _, p := range probes {
		status, ok := p.probe()
		checks[p.name] = status
		if !ok {
			allOk = false
		}
	}
	return checks, allOk
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse carries the gateway-level state alongside the
// health verdict.
type DetailedHealthResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Accounts       int    `json:"accounts"`
	RateGroups     int    `json:"rate_groups"`
	ActiveBackoffs int    `json:"active_backoffs"`
	CacheEntries   *int64 `json:"cache_entries,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only says the process is alive; it must stay cheap and never
// touch the upstream.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// Readiness reports whether tool calls can currently be served.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, allOk := h.runProbes()

		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !allOk {
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeHealthJSON(w, code, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for /healthz/detailed:
// the health verdict plus uptime, stored accounts, tracked rate groups,
// groups currently under backoff, and cache entry count when a cache is
// wired.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		code := http.StatusOK
		if !h.ready.Load() {
			response.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		} else if _, ok := h.probeShutdown(); !ok {
			response.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}

		if h.serverContext != nil && h.serverContext.Client() != nil {
			client := h.serverContext.Client()
			response.Accounts = len(client.Accounts())

			snap := client.RateLimitStatus()
			response.RateGroups = len(snap.Buckets)
			for _, level := range snap.BackoffLevels {
				if level > 0 {
					response.ActiveBackoffs++
				}
			}

			if cache := client.Cache(); cache != nil {
				if stats, err := cache.Stats(r.Context()); err == nil {
					entries := stats.Entries
					response.CacheEntries = &entries
				}
			}
		}

		writeHealthJSON(w, code, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeHealthJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
