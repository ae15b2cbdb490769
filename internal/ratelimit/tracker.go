package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teemow/evegate/internal/logging"
)

// Rate-limit headers as sent by the API. The token-bucket set appears on
// migrated endpoints, the error-limit pair on legacy ones; a response may
// carry both.
const (
	HeaderGroup     = "X-Ratelimit-Group"
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderUsed      = "X-Ratelimit-Used"

	HeaderErrorRemain = "X-Esi-Error-Limit-Remain"
	HeaderErrorReset  = "X-Esi-Error-Limit-Reset"
)

const (
	defaultMaxBackoff       = 60 * time.Second
	defaultThresholdPercent = 10.0
	defaultErrorCapacity    = 10

	// defaultTokenCost applies until a cost has been inferred from
	// used-counter deltas. A typical 2xx costs 2 tokens.
	defaultTokenCost = 2.0

	// maxBackoffLevel caps exponential growth at 2^6 = 64s before the
	// MaxBackoff clamp applies.
	maxBackoffLevel = 6

	// legacyKey tracks backoff for endpoints still on the error-budget
	// headers, which carry no group name.
	legacyKey = "legacy"
)

// Wait reasons reported through Options.OnWait.
const (
	WaitReasonGraduated   = "graduated"
	WaitReasonExponential = "exponential"
	WaitReasonReset       = "reset"
	WaitReasonRetryAfter  = "retry_after"
)

// Bucket is the tracked state of one rate-limit group. Authenticated
// groups are keyed "group:characterID" so characters never share a
// budget; public groups are keyed by group name alone. Remaining and
// Used stay nil when the server omitted the header.
type Bucket struct {
	Limit             int       `json:"limit"`
	Remaining         *int      `json:"remaining"`
	Used              *int      `json:"used"`
	WindowSeconds     int       `json:"window_seconds"`
	TokensPerSecond   float64   `json:"tokens_per_second"`
	TokensPerRequest  float64   `json:"tokens_per_request"`
	RequestsPerSecond float64   `json:"requests_per_second"`
	LastUpdated       time.Time `json:"last_updated"`
}

// ErrorBudget is the legacy global error-limit state. ResetAt is zero
// until a reset header has been seen.
type ErrorBudget struct {
	Remaining *int      `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Tracker follows both rate-limit protocols across responses, projects
// token regeneration between observations, and decides when requests
// must slow down. All state survives restarts via the persist file.
type Tracker struct {
	mu sync.Mutex

	buckets       map[string]*Bucket
	errorBudget   ErrorBudget
	backoffLevels map[string]int

	persistPath      string
	maxBackoff       time.Duration
	thresholdPercent float64
	errorCapacity    int
	logger           *slog.Logger
	onWait           func(groupKey, reason string)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Tracker. Zero values select defaults.
type Options struct {
	// PersistPath is where tracker state survives restarts. Empty
	// disables persistence.
	PersistPath string

	// MaxBackoff caps any computed delay (default 60s).
	MaxBackoff time.Duration

	// ThresholdPercent is the percentage of a bucket's limit below
	// which requests start slowing down (default 10).
	ThresholdPercent float64

	// ErrorCapacity is the assumed size of the legacy error budget,
	// whose headers carry no capacity of their own (default 10).
	ErrorCapacity int

	// OnWait is called before every rate-limit sleep with the group key
	// and one of the WaitReason constants. Used for metrics.
	OnWait func(groupKey, reason string)

	Logger *slog.Logger
}

// New creates a Tracker and loads any persisted state. Loading is
// best-effort; a missing or corrupt file starts the tracker fresh.
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		buckets:          make(map[string]*Bucket),
		backoffLevels:    make(map[string]int),
		persistPath:      opts.PersistPath,
		maxBackoff:       opts.MaxBackoff,
		thresholdPercent: opts.ThresholdPercent,
		errorCapacity:    opts.ErrorCapacity,
		logger:           logger,
		onWait:           opts.OnWait,
		now:              time.Now,
		sleep:            sleepContext,
	}
	if t.maxBackoff <= 0 {
		t.maxBackoff = defaultMaxBackoff
	}
	if t.thresholdPercent <= 0 {
		t.thresholdPercent = defaultThresholdPercent
	}
	if t.errorCapacity <= 0 {
		t.errorCapacity = defaultErrorCapacity
	}

	t.load()
	return t
}

// UpdateFromHeaders records rate-limit state from a response. groupKey
// is the bucket key chosen by the caller (group name, plus character
// suffix for authenticated groups); when empty, the group header alone
// keys the bucket. Both protocols are processed when present.
func (t *Tracker) UpdateFromHeaders(h http.Header, groupKey string) {
	hasBucket := h.Get(HeaderGroup) != "" || h.Get(HeaderLimit) != "" ||
		h.Get(HeaderRemaining) != "" || h.Get(HeaderUsed) != ""
	hasLegacy := h.Get(HeaderErrorRemain) != "" || h.Get(HeaderErrorReset) != ""
	if !hasBucket && !hasLegacy {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if hasBucket {
		t.updateBucketLocked(h, groupKey)
	}
	if hasLegacy {
		t.updateErrorBudgetLocked(h)
	}
	t.persistLocked()
}

func (t *Tracker) updateBucketLocked(h http.Header, groupKey string) {
	group := h.Get(HeaderGroup)
	if group == "" {
		return
	}

	limit, window, err := parseLimit(h.Get(HeaderLimit))
	if err != nil {
		t.logger.Debug("unparseable rate-limit header",
			"limit", h.Get(HeaderLimit), logging.Err(err))
		return
	}

	key := groupKey
	if key == "" {
		key = group
	}

	remaining := parseOptionalInt(h.Get(HeaderRemaining))
	used := parseOptionalInt(h.Get(HeaderUsed))

	var perSecond float64
	if limit > 0 && window > 0 {
		perSecond = float64(limit) / float64(window)
	}
	perRequest := t.inferTokenCostLocked(key, used)
	if perRequest <= 0 {
		perRequest = defaultTokenCost
	}
	var requestRate float64
	if perSecond > 0 {
		requestRate = perSecond / perRequest
	}

	t.buckets[key] = &Bucket{
		Limit:             limit,
		Remaining:         remaining,
		Used:              used,
		WindowSeconds:     window,
		TokensPerSecond:   perSecond,
		TokensPerRequest:  perRequest,
		RequestsPerSecond: requestRate,
		LastUpdated:       t.now().UTC(),
	}
}

func (t *Tracker) updateErrorBudgetLocked(h http.Header) {
	if v := h.Get(HeaderErrorRemain); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.errorBudget.Remaining = &n
		}
	}
	if v := h.Get(HeaderErrorReset); v != "" {
		// The header carries seconds remaining until the budget resets.
		if n, err := strconv.Atoi(v); err == nil {
			t.errorBudget.ResetAt = t.now().Add(time.Duration(n) * time.Second).UTC()
		}
	}
}

// inferTokenCostLocked diffs successive used counters for a bucket to
// learn the server's per-request cost instead of hardcoding it. Returns
// 0 when no inference is possible.
func (t *Tracker) inferTokenCostLocked(key string, used *int) float64 {
	prev, ok := t.buckets[key]
	if !ok || prev.Used == nil || used == nil || *used <= *prev.Used {
		return 0
	}
	return float64(*used - *prev.Used)
}

// parseLimit parses the limit header, e.g. "150/15m", "420/1h" or
// "30/60s". A bare number means a one-second window.
func parseLimit(s string) (limit, windowSeconds int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 1, nil
	}

	num, window, found := strings.Cut(s, "/")
	limit, err = strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return limit, 1, nil
	}

	windowSeconds, err = parseWindow(window)
	if err != nil {
		return 0, 0, err
	}
	return limit, windowSeconds, nil
}

func parseWindow(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	multiplier := 1
	switch {
	case strings.HasSuffix(s, "m"):
		multiplier, s = 60, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		multiplier, s = 3600, strings.TrimSuffix(s, "h")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return n * multiplier, nil
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// AvailableTokens projects the current token count for a bucket,
// crediting regeneration since the last observation and capping at the
// bucket limit. The second return is false when the bucket is untracked
// or never reported a remaining count.
func (t *Tracker) AvailableTokens(groupKey string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.availableTokensLocked(groupKey)
}

func (t *Tracker) availableTokensLocked(groupKey string) (int, bool) {
	b, ok := t.buckets[groupKey]
	if !ok || b.Remaining == nil {
		return 0, false
	}
	if b.LastUpdated.IsZero() || b.TokensPerSecond <= 0 {
		return *b.Remaining, true
	}

	elapsed := t.now().Sub(b.LastUpdated).Seconds()
	available := float64(*b.Remaining) + elapsed*b.TokensPerSecond
	if limit := float64(b.Limit); available > limit {
		available = limit
	}
	return int(available), true
}

// thresholdTokensLocked converts the configured percentage into a token
// count for a bucket, at least 1. Buckets with no known limit have no
// threshold.
func (t *Tracker) thresholdTokensLocked(b *Bucket) (int, bool) {
	if b == nil || b.Limit <= 0 {
		return 0, false
	}
	threshold := int(float64(b.Limit) * t.thresholdPercent / 100)
	if threshold < 1 {
		threshold = 1
	}
	return threshold, true
}

// ShouldBackoff reports whether the next request on the group should be
// delayed. An empty groupKey checks the legacy error budget instead.
// Untracked groups never block; the tracker stays optimistic until the
// server has said otherwise.
func (t *Tracker) ShouldBackoff(groupKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldBackoffLocked(groupKey)
}

func (t *Tracker) shouldBackoffLocked(groupKey string) bool {
	if groupKey != "" {
		available, ok := t.availableTokensLocked(groupKey)
		if !ok {
			return false
		}
		threshold, ok := t.thresholdTokensLocked(t.buckets[groupKey])
		if !ok {
			return false
		}
		return available < threshold
	}

	if t.errorBudget.Remaining == nil {
		return false
	}
	threshold := int(float64(t.errorCapacity) * t.thresholdPercent / 100)
	if threshold < 1 {
		threshold = 1
	}
	return *t.errorBudget.Remaining < threshold
}

// BucketStatus is a bucket with its projected availability, for display.
type BucketStatus struct {
	Bucket
	Available int `json:"available"`
}

// Snapshot is a point-in-time copy of tracker state.
type Snapshot struct {
	Buckets       map[string]BucketStatus `json:"buckets"`
	ErrorBudget   ErrorBudget             `json:"error_budget"`
	BackoffLevels map[string]int          `json:"backoff_levels"`
}

// Snapshot returns the current state of all tracked buckets, the legacy
// error budget and per-group backoff levels.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Buckets:       make(map[string]BucketStatus, len(t.buckets)),
		ErrorBudget:   t.errorBudget,
		BackoffLevels: make(map[string]int, len(t.backoffLevels)),
	}
	for key, b := range t.buckets {
		available, _ := t.availableTokensLocked(key)
		snap.Buckets[key] = BucketStatus{Bucket: *b, Available: available}
	}
	for key, level := range t.backoffLevels {
		snap.BackoffLevels[key] = level
	}
	return snap
}
