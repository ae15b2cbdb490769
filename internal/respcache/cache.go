package respcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teemow/evegate/internal/logging"
)

// ErrCorrupt marks a cache row that could not be decoded. Corrupt rows
// are deleted and reported as a miss, never as a failure.
var ErrCorrupt = errors.New("cache entry corrupt")

const (
	// defaultTTL applies when a response carries no Expires header.
	defaultTTL = 5 * time.Minute

	// defaultGraceWindow keeps expired entries around so their ETags
	// can still drive revalidation instead of full refetches.
	defaultGraceWindow = 24 * time.Hour

	sweepInterval = time.Hour
)

// Entry is one cached response.
type Entry struct {
	Data      []byte
	Headers   map[string]string
	ETag      string
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry may be served without revalidation.
func (e *Entry) Fresh() bool {
	return time.Now().Before(e.ExpiresAt)
}

// Stats summarizes cache contents.
type Stats struct {
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Expired int64 `json:"expired"`
}

// Options configures a Cache. Zero values select defaults.
type Options struct {
	// Path is the SQLite database file. Required.
	Path string

	// DefaultTTL applies to responses without an Expires header.
	DefaultTTL time.Duration

	// GraceWindow is how long entries outlive their expiry for ETag
	// revalidation before being evicted.
	GraceWindow time.Duration

	Logger *slog.Logger
}

// Cache is a disk-resident HTTP response cache keyed by request hash.
// Expired entries survive inside a grace window so revalidation with
// If-None-Match stays possible; eviction is lazy on lookup plus a
// periodic sweep.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	grace  time.Duration
	logger *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New opens (and if needed creates) the cache database, runs the
// schema migration and starts the background sweeper.
func New(opts Options) (*Cache, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	// WAL keeps concurrent readers from blocking the writer.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure cache database: %w", err)
	}

	c := &Cache{
		db:     db,
		ttl:    opts.DefaultTTL,
		grace:  opts.GraceWindow,
		logger: logger,
		done:   make(chan struct{}),
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.grace <= 0 {
		c.grace = defaultGraceWindow
	}

	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	c.sweep(context.Background())
	c.wg.Add(1)
	go c.sweeper()

	return c, nil
}

func (c *Cache) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS responses (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			headers    TEXT NOT NULL,
			etag       TEXT NOT NULL DEFAULT '',
			cached_at  DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_responses_expires_at ON responses(expires_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Key derives the cache key for a logical request: a hash over method,
// URL, a stable serialization of the query parameters and of any
// request body. Identical logical requests always collide; differing
// bodies (a different page, say) never do.
func Key(method, requestURL string, params url.Values, body any) string {
	if params == nil {
		params = url.Values{}
	}
	input := method + ":" + requestURL + ":" + stableJSON(params) + ":" + stableJSON(body)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// stableJSON serializes v deterministically; JSON object keys are
// emitted sorted.
func stableJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Lookup returns the cached entry for a request, or nil on a miss.
// Entries past their expiry but inside the grace window are returned
// stale (Fresh() false) so the caller can revalidate; entries past the
// grace window are evicted. Corrupt rows are deleted and reported as a
// miss.
func (c *Cache) Lookup(ctx context.Context, method, requestURL string, params url.Values, body any) (*Entry, error) {
	key := Key(method, requestURL, params, body)

	var (
		data        []byte
		headersJSON string
		etag        string
		cachedAt    time.Time
		expiresAt   time.Time
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT data, headers, etag, cached_at, expires_at
		FROM responses WHERE key = ?
	`, key).Scan(&data, &headersJSON, &etag, &cachedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		c.dropCorrupt(ctx, key, fmt.Errorf("%w: %v", ErrCorrupt, err))
		return nil, nil
	}

	if time.Now().After(expiresAt.Add(c.grace)) {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ?", key); err != nil {
			c.logger.Debug("evict lapsed cache entry", logging.Err(err))
		}
		return nil, nil
	}

	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		c.dropCorrupt(ctx, key, fmt.Errorf("%w: %v", ErrCorrupt, err))
		return nil, nil
	}

	return &Entry{
		Data:      data,
		Headers:   headers,
		ETag:      etag,
		CachedAt:  cachedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (c *Cache) dropCorrupt(ctx context.Context, key string, err error) {
	c.logger.Warn("dropping unreadable cache entry", logging.Err(err))
	if _, derr := c.db.ExecContext(ctx, "DELETE FROM responses WHERE key = ?", key); derr != nil {
		c.logger.Debug("delete unreadable cache entry", logging.Err(derr))
	}
}

// Store caches a response. Header keys are normalized to lower case;
// the entry's expiry comes from the Expires header (absolute HTTP-date)
// and falls back to the default TTL when absent or unparseable. An
// existing entry for the same request is overwritten.
func (c *Cache) Store(ctx context.Context, method, requestURL string, data []byte, headers map[string]string, params url.Values, body any) error {
	key := Key(method, requestURL, params, body)
	now := time.Now().UTC()

	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		normalized[strings.ToLower(k)] = v
	}

	expiresAt := now.Add(c.ttl)
	if raw, ok := normalized["expires"]; ok {
		if t, err := http.ParseTime(raw); err == nil {
			expiresAt = t.UTC()
		} else {
			c.logger.Warn("unparseable Expires header", "expires", raw, logging.Err(err))
		}
	}

	headersJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("marshal cached headers: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO responses (key, data, headers, etag, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, key, data, string(headersJSON), normalized["etag"], now, expiresAt)
	return err
}

// TimeToExpiry reports how long until the entry for a request expires.
// The second return is false when nothing is cached. Used for proactive
// expiry warnings, never for correctness.
func (c *Cache) TimeToExpiry(ctx context.Context, method, requestURL string, params url.Values, body any) (time.Duration, bool) {
	key := Key(method, requestURL, params, body)

	var expiresAt time.Time
	err := c.db.QueryRowContext(ctx,
		"SELECT expires_at FROM responses WHERE key = ?", key,
	).Scan(&expiresAt)
	if err != nil {
		return 0, false
	}
	return time.Until(expiresAt), true
}

// Clear removes all cached entries.
func (c *Cache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM responses")
	return err
}

// Stats reports entry count, total payload bytes and how many entries
// are past their expiry (but possibly still in the grace window).
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(LENGTH(data)), 0),
		       COALESCE(SUM(expires_at < ?), 0)
		FROM responses
	`, time.Now().UTC()).Scan(&stats.Entries, &stats.Bytes, &stats.Expired)
	return stats, err
}

// sweep evicts entries whose grace window has lapsed.
func (c *Cache) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.grace)
	result, err := c.db.ExecContext(ctx, "DELETE FROM responses WHERE expires_at < ?", cutoff)
	if err != nil {
		c.logger.Debug("cache sweep failed", logging.Err(err))
		return
	}
	if removed, err := result.RowsAffected(); err == nil && removed > 0 {
		c.logger.Debug("cache sweep evicted entries", "removed", removed)
	}
}

func (c *Cache) sweeper() {
	defer c.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep(context.Background())
		}
	}
}

// Close stops the sweeper and closes the database.
func (c *Cache) Close() error {
	close(c.done)
	c.wg.Wait()
	return c.db.Close()
}
