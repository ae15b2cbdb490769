package esi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teemow/evegate/internal/apispec"
	"github.com/teemow/evegate/internal/instrumentation"
	"github.com/teemow/evegate/internal/ratelimit"
	"github.com/teemow/evegate/internal/respcache"
	"github.com/teemow/evegate/internal/sso"
)

const (
	defaultMaxRetries = 3
	maxRetryCeiling   = 10

	defaultImageBaseURL = "https://images.evetech.net"

	defaultHTTPTimeout = 30 * time.Second
)

// Transport issues HTTP requests. *http.Client satisfies it; tests
// substitute a stub.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures a Client. BaseURL is required; everything else has
// a usable default or is optional.
type Options struct {
	// BaseURL is the versioned API root, without a trailing slash.
	BaseURL string

	// Datasource is added as a query parameter to every request that
	// does not already carry one. Empty disables injection.
	Datasource string

	// CompatibilityDate pins the upstream schema revision via the
	// X-Compatibility-Date header. Empty omits the header.
	CompatibilityDate string

	UserAgent string

	Transport Transport

	// Auth supplies bearer tokens for authenticated endpoints. Nil
	// restricts the client to public endpoints.
	Auth *sso.Authenticator

	// Cache stores responses for reuse and ETag revalidation. Nil
	// disables caching. The client takes ownership and closes it.
	Cache *respcache.Cache

	// Limits paces requests against upstream budgets. Nil gets a
	// fresh in-memory tracker.
	Limits *ratelimit.Tracker

	// Spec resolves endpoint metadata (auth requirement, rate group).
	// Nil degrades lookups to misses. The client takes ownership and
	// closes it.
	Spec *apispec.Index

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// ImageDir is the on-disk cache for rendered images. Empty
	// disables image caching.
	ImageDir string

	// ImageBaseURL overrides the image service root, for tests.
	ImageBaseURL string

	// CacheExpiryWarning is how far ahead of a cache entry's expiry
	// the client logs an alert. Zero or negative disables alerts.
	CacheExpiryWarning time.Duration
}

// Client is the upstream API client. Endpoint groups hang off it as
// typed services sharing one request path.
type Client struct {
	transport  Transport
	baseURL    string
	datasource string
	compatDate string
	userAgent  string

	auth    *sso.Authenticator
	cache   *respcache.Cache
	limits  *ratelimit.Tracker
	spec    *apispec.Index
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	imageDir     string
	imageBaseURL string

	warnBefore time.Duration

	// Expiry alerts run as one goroutine per cache key, replaced on
	// reschedule and all cancelled through ctx on Close.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	alerts map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	sleep func(context.Context, time.Duration) error

	Assets       *AssetsService
	Characters   *CharactersService
	Contracts    *ContractsService
	Corporations *CorporationsService
	Industry     *IndustryService
	Location     *LocationService
	Market       *MarketService
	Skills       *SkillsService
	Universe     *UniverseService
	Wallet       *WalletService
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Client{Timeout: defaultHTTPTimeout}
	}
	limits := opts.Limits
	if limits == nil {
		limits = ratelimit.New(ratelimit.Options{Logger: opts.Logger})
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	imageBaseURL := opts.ImageBaseURL
	if imageBaseURL == "" {
		imageBaseURL = defaultImageBaseURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:    transport,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		datasource:   opts.Datasource,
		compatDate:   opts.CompatibilityDate,
		userAgent:    opts.UserAgent,
		auth:         opts.Auth,
		cache:        opts.Cache,
		limits:       limits,
		spec:         opts.Spec,
		metrics:      metrics,
		logger:       logger,
		imageDir:     opts.ImageDir,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		warnBefore:   opts.CacheExpiryWarning,
		ctx:          ctx,
		cancel:       cancel,
		alerts:       make(map[string]context.CancelFunc),
		sleep:        sleepContext,
	}

	c.Assets = &AssetsService{client: c}
	c.Characters = &CharactersService{client: c}
	c.Contracts = &ContractsService{client: c}
	c.Corporations = &CorporationsService{client: c}
	c.Industry = &IndustryService{client: c}
	c.Location = &LocationService{client: c}
	c.Market = &MarketService{client: c}
	c.Skills = &SkillsService{client: c}
	c.Universe = &UniverseService{client: c}
	c.Wallet = &WalletService{client: c}

	return c, nil
}

// RateLimitStatus reports the tracked upstream budgets.
func (c *Client) RateLimitStatus() ratelimit.Snapshot {
	return c.limits.Snapshot()
}

// Accounts lists the stored tokens, nil without an authenticator.
func (c *Client) Accounts() []*sso.Token {
	if c.auth == nil {
		return nil
	}
	return c.auth.Accounts()
}

// Authenticator exposes the configured token source, nil for
// public-only clients.
func (c *Client) Authenticator() *sso.Authenticator {
	return c.auth
}

// Cache exposes the response cache for stats and maintenance, nil when
// the client runs uncached.
func (c *Client) Cache() *respcache.Cache {
	return c.cache
}

// Close cancels pending expiry alerts, waits for them and releases the
// owned cache and spec index. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	if c.spec != nil {
		c.spec.Close()
	}
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

// requireAuth rejects authenticated calls early, before any network
// traffic, when they cannot possibly succeed.
func (c *Client) requireAuth(characterID int64) error {
	if c.auth == nil {
		return fmt.Errorf("%w: client has no authenticator configured", sso.ErrAuthRequired)
	}
	if characterID <= 0 {
		return fmt.Errorf("invalid character id %d", characterID)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
