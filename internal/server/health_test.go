package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker_Liveness(t *testing.T) {
	sc := newTestContext(t, "https://esi.test/latest")
	h := NewHealthChecker(sc)

	// Liveness ignores readiness; it only says the process is alive
	h.SetReady(false)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode liveness response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("liveness Status = %q, want %q", resp.Status, "ok")
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	sc := newTestContext(t, "https://esi.test/latest")
	h := NewHealthChecker(sc)

	readyz := func() (int, HealthResponse) {
		t.Helper()
		rec := httptest.NewRecorder()
		h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var resp HealthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode readiness response: %v", err)
		}
		return rec.Code, resp
	}

	// Ready by default with a wired client
	code, resp := readyz()
	if code != http.StatusOK {
		t.Errorf("readiness status = %d, want %d", code, http.StatusOK)
	}
	if resp.Status != "ok" {
		t.Errorf("readiness Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Checks["client"] != "ok" {
		t.Errorf("client check = %q, want %q", resp.Checks["client"], "ok")
	}

	// Marked not ready
	h.SetReady(false)
	code, resp = readyz()
	if code != http.StatusServiceUnavailable {
		t.Errorf("readiness status = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if resp.Checks["ready"] != "not ready" {
		t.Errorf("ready check = %q, want %q", resp.Checks["ready"], "not ready")
	}

	// Shutdown turns readiness off even when marked ready
	h.SetReady(true)
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	code, resp = readyz()
	if code != http.StatusServiceUnavailable {
		t.Errorf("readiness status after shutdown = %d, want %d", code, http.StatusServiceUnavailable)
	}
	if resp.Checks["shutdown"] != "shutting down" {
		t.Errorf("shutdown check = %q, want %q", resp.Checks["shutdown"], "shutting down")
	}
}

func TestHealthChecker_DetailedHealth(t *testing.T) {
	sc := newTestContext(t, "https://esi.test/latest")
	h := NewHealthChecker(sc)

	rec := httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("detailed health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp DetailedHealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode detailed response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("detailed Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Uptime == "" {
		t.Error("detailed Uptime is empty")
	}

	h.SetReady(false)
	rec = httptest.NewRecorder()
	h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("detailed status when not ready = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHealthChecker_RegisterEndpoints(t *testing.T) {
	sc := newTestContext(t, "https://esi.test/latest")
	h := NewHealthChecker(sc)

	mux := http.NewServeMux()
	h.RegisterHealthEndpoints(mux)

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code == http.StatusNotFound {
			t.Errorf("%s not registered", path)
		}
	}
}
