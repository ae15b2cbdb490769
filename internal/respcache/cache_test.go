package respcache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "responses.db")
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func httpDate(offset time.Duration) string {
	return time.Now().Add(offset).UTC().Format(http.TimeFormat)
}

func TestStoreLookup_Roundtrip(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	headers := map[string]string{
		"Content-Type": "application/json",
		"ETag":         `"abc123"`,
		"Expires":      httpDate(time.Hour),
	}
	data := []byte(`[{"type_id":587}]`)
	if err := c.Store(ctx, "GET", "https://esi.example/v1/assets/", data, headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/assets/", nil, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a cache hit")
	}
	if !bytes.Equal(entry.Data, data) {
		t.Errorf("data = %q, want %q", entry.Data, data)
	}
	if got := entry.Headers["content-type"]; got != "application/json" {
		t.Errorf("headers[content-type] = %q, want lower-cased key preserved", got)
	}
	if _, ok := entry.Headers["Content-Type"]; ok {
		t.Error("expected header keys to be normalized to lower case")
	}
	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", entry.ETag, `"abc123"`)
	}
	if !entry.Fresh() {
		t.Error("entry expiring in an hour should be fresh")
	}
	if age := time.Since(entry.CachedAt); age < 0 || age > time.Minute {
		t.Errorf("CachedAt = %v, want roughly now", entry.CachedAt)
	}
	if until := time.Until(entry.ExpiresAt); until < 55*time.Minute || until > 65*time.Minute {
		t.Errorf("ExpiresAt %v from now, want about an hour", until)
	}
}

func TestLookup_Miss(t *testing.T) {
	c := newTestCache(t, Options{})

	entry, err := c.Lookup(context.Background(), "GET", "https://esi.example/v1/status/", nil, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected a miss, got %+v", entry)
	}
}

func TestKey_Discriminates(t *testing.T) {
	base := Key("GET", "https://esi.example/v1/assets/", nil, nil)
	if len(base) != 64 {
		t.Fatalf("key length = %d, want 64 hex characters", len(base))
	}

	variants := map[string]string{
		"method": Key("POST", "https://esi.example/v1/assets/", nil, nil),
		"url":    Key("GET", "https://esi.example/v2/assets/", nil, nil),
		"params": Key("GET", "https://esi.example/v1/assets/", url.Values{"page": {"2"}}, nil),
		"body":   Key("GET", "https://esi.example/v1/assets/", nil, map[string]any{"ids": []int{42}}),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("varying %s did not change the key", name)
		}
	}

	page2 := Key("GET", "https://esi.example/v1/assets/", url.Values{"page": {"2"}}, nil)
	page3 := Key("GET", "https://esi.example/v1/assets/", url.Values{"page": {"3"}}, nil)
	if page2 == page3 {
		t.Error("different pages must cache separately")
	}
}

func TestKey_NilParamsEqualsEmpty(t *testing.T) {
	withNil := Key("GET", "https://esi.example/v1/status/", nil, nil)
	withEmpty := Key("GET", "https://esi.example/v1/status/", url.Values{}, nil)
	if withNil != withEmpty {
		t.Error("nil and empty params should derive the same key")
	}
}

func TestKey_ParamOrderIrrelevant(t *testing.T) {
	a := url.Values{}
	a.Set("datasource", "tranquility")
	a.Set("page", "1")
	b := url.Values{}
	b.Set("page", "1")
	b.Set("datasource", "tranquility")
	if Key("GET", "https://esi.example/v1/orders/", a, nil) != Key("GET", "https://esi.example/v1/orders/", b, nil) {
		t.Error("parameter insertion order changed the key")
	}
}

func TestStore_DefaultTTLWhenNoExpires(t *testing.T) {
	c := newTestCache(t, Options{DefaultTTL: time.Minute})
	ctx := context.Background()

	if err := c.Store(ctx, "GET", "https://esi.example/v1/status/", []byte("{}"), nil, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/status/", nil, nil)
	if err != nil || entry == nil {
		t.Fatalf("Lookup: entry=%v err=%v", entry, err)
	}
	until := time.Until(entry.ExpiresAt)
	if until < 50*time.Second || until > 70*time.Second {
		t.Errorf("ExpiresAt %v from now, want about the default TTL", until)
	}
}

func TestStore_UnparseableExpiresFallsBack(t *testing.T) {
	c := newTestCache(t, Options{DefaultTTL: time.Minute})
	ctx := context.Background()

	headers := map[string]string{"Expires": "sometime soon"}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/status/", []byte("{}"), headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/status/", nil, nil)
	if err != nil || entry == nil {
		t.Fatalf("Lookup: entry=%v err=%v", entry, err)
	}
	if until := time.Until(entry.ExpiresAt); until < 50*time.Second || until > 70*time.Second {
		t.Errorf("ExpiresAt %v from now, want the default TTL fallback", until)
	}
}

func TestLookup_StaleWithinGraceKeepsETag(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	headers := map[string]string{
		"ETag":    `"stale-but-useful"`,
		"Expires": httpDate(-time.Hour),
	}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/orders/", []byte("[]"), headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/orders/", nil, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry == nil {
		t.Fatal("entry inside the grace window should still be returned")
	}
	if entry.Fresh() {
		t.Error("expired entry must not report fresh")
	}
	if entry.ETag != `"stale-but-useful"` {
		t.Errorf("ETag = %q, want the stored validator", entry.ETag)
	}
}

func TestLookup_EvictsPastGrace(t *testing.T) {
	c := newTestCache(t, Options{GraceWindow: time.Minute})
	ctx := context.Background()

	headers := map[string]string{"Expires": httpDate(-2 * time.Minute)}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/orders/", []byte("[]"), headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/orders/", nil, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry != nil {
		t.Fatal("entry past the grace window should be a miss")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want lazy eviction to have removed the row", stats.Entries)
	}
}

func TestLookup_CorruptRowTreatedAsMiss(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	if err := c.Store(ctx, "GET", "https://esi.example/v1/assets/", []byte("[]"), nil, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	key := Key("GET", "https://esi.example/v1/assets/", nil, nil)
	if _, err := c.db.ExecContext(ctx, "UPDATE responses SET headers = ? WHERE key = ?", "{not json", key); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/assets/", nil, nil)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry != nil {
		t.Fatal("corrupt entry should surface as a miss")
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want corrupt row deleted", stats.Entries)
	}
}

func TestStore_Overwrite(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	if err := c.Store(ctx, "GET", "https://esi.example/v1/status/", []byte("old"), nil, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/status/", []byte("new"), nil, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, err := c.Lookup(ctx, "GET", "https://esi.example/v1/status/", nil, nil)
	if err != nil || entry == nil {
		t.Fatalf("Lookup: entry=%v err=%v", entry, err)
	}
	if string(entry.Data) != "new" {
		t.Errorf("data = %q, want the overwritten payload", entry.Data)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Errorf("Entries = %d, want a single row per request", stats.Entries)
	}
}

func TestTimeToExpiry(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	headers := map[string]string{"Expires": httpDate(30 * time.Minute)}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/wallet/", []byte("{}"), headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	ttl, ok := c.TimeToExpiry(ctx, "GET", "https://esi.example/v1/wallet/", nil, nil)
	if !ok {
		t.Fatal("expected a cached expiry")
	}
	if ttl < 25*time.Minute || ttl > 35*time.Minute {
		t.Errorf("ttl = %v, want about 30 minutes", ttl)
	}

	if _, ok := c.TimeToExpiry(ctx, "GET", "https://esi.example/v1/uncached/", nil, nil); ok {
		t.Error("uncached request should report no expiry")
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	for _, path := range []string{"/v1/a/", "/v1/b/"} {
		if err := c.Store(ctx, "GET", "https://esi.example"+path, []byte("{}"), nil, nil, nil); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d after Clear, want 0", stats.Entries)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, Options{})
	ctx := context.Background()

	fresh := map[string]string{"Expires": httpDate(time.Hour)}
	expired := map[string]string{"Expires": httpDate(-time.Hour)}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/a/", []byte("12345"), fresh, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/b/", []byte("123"), expired, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.Bytes != 8 {
		t.Errorf("Bytes = %d, want 8", stats.Bytes)
	}
	if stats.Expired != 1 {
		t.Errorf("Expired = %d, want 1", stats.Expired)
	}
}

func TestSweepOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.db")
	opts := Options{Path: path, GraceWindow: time.Minute, Logger: testLogger()}
	ctx := context.Background()

	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	headers := map[string]string{"Expires": httpDate(-time.Hour)}
	if err := c.Store(ctx, "GET", "https://esi.example/v1/old/", []byte("{}"), headers, nil, nil); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stats, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d after reopen, want the sweep to have evicted lapsed rows", stats.Entries)
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(Options{Logger: testLogger()}); err == nil {
		t.Fatal("expected an error for a missing path")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "responses.db")
	c, err := New(Options{Path: path, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Close()
}
