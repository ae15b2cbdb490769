package esi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teemow/evegate/internal/ratelimit"
	"github.com/teemow/evegate/internal/respcache"
	"github.com/teemow/evegate/internal/sso"
)

const testCharacterID = int64(2119654977)

// roundTrip is one canned exchange for the stub transport.
type roundTrip struct {
	status  int
	body    string
	headers map[string]string
	err     error
}

// stubTransport plays back canned responses in order, repeating the
// last one, and records every request it sees. A handler overrides the
// canned sequence when responses must depend on the request.
type stubTransport struct {
	mu      sync.Mutex
	steps   []roundTrip
	handler func(*http.Request) roundTrip
	seen    []*http.Request
}

func (st *stubTransport) Do(req *http.Request) (*http.Response, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seen = append(st.seen, req)

	var step roundTrip
	if st.handler != nil {
		step = st.handler(req)
	} else {
		if len(st.steps) == 0 {
			return nil, fmt.Errorf("stub transport: no response scripted for %s %s", req.Method, req.URL)
		}
		step = st.steps[0]
		if len(st.steps) > 1 {
			st.steps = st.steps[1:]
		}
	}

	if step.err != nil {
		return nil, step.err
	}
	h := http.Header{}
	for k, v := range step.headers {
		h.Set(k, v)
	}
	status := step.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(step.body)),
		Request:    req,
	}, nil
}

func (st *stubTransport) calls() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.seen)
}

func (st *stubTransport) request(i int) *http.Request {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seen[i]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client around the stub with instant sleeps
// and a millisecond backoff cap so retry tests run at full speed.
func newTestClient(t *testing.T, transport Transport, adjust func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL:    "https://esi.test/latest",
		Datasource: "tranquility",
		UserAgent:  "evegate-test",
		Transport:  transport,
		Limits:     ratelimit.New(ratelimit.Options{MaxBackoff: time.Millisecond, Logger: discardLogger()}),
		Logger:     discardLogger(),
	}
	if adjust != nil {
		adjust(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { c.Close() })
	return c
}

func testCache(t *testing.T) *respcache.Cache {
	t.Helper()
	cache, err := respcache.New(respcache.Options{
		Path:   filepath.Join(t.TempDir(), "cache.db"),
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("respcache.New() error = %v", err)
	}
	return cache
}

// testAuthenticator returns an authenticator seeded with one token for
// testCharacterID. The token URL serves refresh grants in tests that
// exercise the 401 path.
func testAuthenticator(t *testing.T, tokenURL string) *sso.Authenticator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	seed := fmt.Sprintf(`{
		"%d": {
			"character_id": %d,
			"character_name": "Caldari Citizen",
			"access_token": "tok-live",
			"refresh_token": "refresh-1",
			"expires_at": %q,
			"scopes": ["esi-assets.read_assets.v1"]
		}
	}`, testCharacterID, testCharacterID, time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed token file: %v", err)
	}
	auth, err := sso.New(sso.Config{
		ClientID:  "test-client",
		TokenFile: path,
		TokenURL:  tokenURL,
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("sso.New() error = %v", err)
	}
	return auth
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() with empty base URL should fail")
	}
}

func TestNew_WiresServices(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, nil)
	if c.Assets == nil || c.Characters == nil || c.Contracts == nil ||
		c.Corporations == nil || c.Industry == nil || c.Location == nil ||
		c.Market == nil || c.Skills == nil || c.Universe == nil || c.Wallet == nil {
		t.Fatal("New() left a service nil")
	}
}

func TestNew_TrimsBaseURL(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, func(o *Options) {
		o.BaseURL = "https://esi.test/latest/"
	})
	if c.baseURL != "https://esi.test/latest" {
		t.Fatalf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestAccounts_NilWithoutAuthenticator(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, nil)
	if got := c.Accounts(); got != nil {
		t.Fatalf("Accounts() = %v, want nil", got)
	}
}

func TestAccounts_ListsStoredTokens(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, func(o *Options) {
		o.Auth = testAuthenticator(t, "")
	})
	accounts := c.Accounts()
	if len(accounts) != 1 {
		t.Fatalf("Accounts() returned %d tokens, want 1", len(accounts))
	}
	if accounts[0].CharacterID != testCharacterID {
		t.Errorf("CharacterID = %d, want %d", accounts[0].CharacterID, testCharacterID)
	}
}

func TestRateLimitStatus(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, nil)
	snap := c.RateLimitStatus()
	if snap.Buckets == nil {
		t.Fatal("Snapshot.Buckets is nil")
	}
}

func TestRequireAuth(t *testing.T) {
	noAuth := newTestClient(t, &stubTransport{}, nil)
	if err := noAuth.requireAuth(testCharacterID); !errors.Is(err, sso.ErrAuthRequired) {
		t.Errorf("requireAuth() without authenticator = %v, want ErrAuthRequired", err)
	}

	withAuth := newTestClient(t, &stubTransport{}, func(o *Options) {
		o.Auth = testAuthenticator(t, "")
	})
	if err := withAuth.requireAuth(0); err == nil {
		t.Error("requireAuth(0) should fail")
	}
	if err := withAuth.requireAuth(testCharacterID); err != nil {
		t.Errorf("requireAuth() = %v, want nil", err)
	}
}

func TestScheduleExpiryAlert_Pending(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, func(o *Options) {
		o.CacheExpiryWarning = 10 * time.Millisecond
	})

	c.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/a", nil, nil, time.Now().Add(time.Hour))

	c.mu.Lock()
	pending := len(c.alerts)
	c.mu.Unlock()
	if pending != 1 {
		t.Fatalf("pending alerts = %d, want 1", pending)
	}

	// Rescheduling the same request replaces the pending alert.
	c.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/a", nil, nil, time.Now().Add(2*time.Hour))
	c.mu.Lock()
	pending = len(c.alerts)
	c.mu.Unlock()
	if pending != 1 {
		t.Fatalf("pending alerts after reschedule = %d, want 1", pending)
	}

	// Close cancels the alert goroutine and waits for it.
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestScheduleExpiryAlert_SkipsPastAndDisabled(t *testing.T) {
	c := newTestClient(t, &stubTransport{}, func(o *Options) {
		o.CacheExpiryWarning = 10 * time.Millisecond
	})

	c.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/gone", nil, nil, time.Now().Add(-time.Minute))
	c.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/zero", nil, nil, time.Time{})

	// Inside the warning window logs immediately instead of scheduling.
	c.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/soon", nil, nil, time.Now().Add(time.Millisecond))

	c.mu.Lock()
	pending := len(c.alerts)
	c.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending alerts = %d, want 0", pending)
	}

	disabled := newTestClient(t, &stubTransport{}, nil)
	disabled.scheduleExpiryAlert(http.MethodGet, "https://esi.test/latest/a", nil, nil, time.Now().Add(time.Hour))
	disabled.mu.Lock()
	pending = len(disabled.alerts)
	disabled.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending alerts with warnings disabled = %d, want 0", pending)
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusBadGateway, ErrUpstreamServer},
		{"client error", http.StatusNotFound, ErrUpstreamClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := error(&StatusError{StatusCode: tt.status, Method: "GET", URL: "https://esi.test/x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
		})
	}

	var se *StatusError
	err := fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 502, CharacterID: testCharacterID})
	if !errors.As(err, &se) {
		t.Fatal("errors.As failed to find StatusError")
	}
	if se.CharacterID != testCharacterID {
		t.Errorf("CharacterID = %d, want %d", se.CharacterID, testCharacterID)
	}
}

func TestRateKey(t *testing.T) {
	tests := []struct {
		name         string
		group        string
		requiresAuth bool
		characterID  int64
		want         string
	}{
		{"no group", "", true, testCharacterID, ""},
		{"public", "market", false, 0, "market"},
		{"public with character", "market", false, testCharacterID, "market"},
		{"authenticated", "assets", true, testCharacterID, fmt.Sprintf("assets:%d", testCharacterID)},
		{"authenticated without character", "assets", true, 0, "assets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rateKey(tt.group, tt.requiresAuth, tt.characterID); got != tt.want {
				t.Errorf("rateKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLowerHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Pages", "3")
	got := lowerHeaders(h)
	if got["content-type"] != "application/json" || got["x-pages"] != "3" {
		t.Errorf("lowerHeaders() = %v", got)
	}
}

func TestCloneValues(t *testing.T) {
	orig := url.Values{"page": {"1"}}
	clone := cloneValues(orig)
	clone.Set("page", "2")
	clone.Set("extra", "x")
	if orig.Get("page") != "1" || orig.Has("extra") {
		t.Errorf("cloneValues mutated the original: %v", orig)
	}
}
