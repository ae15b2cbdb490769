// Package apispec indexes the upstream API's OpenAPI document: which
// operations require authentication and which vendor rate-limit group
// they belong to. A validated local copy is preferred at startup so
// the process never waits on the network; a background task refreshes
// the copy opportunistically.
package apispec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/teemow/evegate/internal/logging"
)

const (
	fetchTimeout    = 30 * time.Second
	maxLoadAttempts = 2
)

var (
	rateGroupName      = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	pathPlaceholder    = regexp.MustCompile(`\{[^}]+\}`)
	numericPathSegment = regexp.MustCompile(`/\d+`)
)

// Metadata describes one declared operation.
type Metadata struct {
	// RateGroup is the vendor rate-limit group tag, empty when the
	// operation declares none.
	RateGroup string

	// RequiresAuth is true when the operation, its path item, or the
	// document globally declares a security requirement.
	RequiresAuth bool
}

// Options configures an Index.
type Options struct {
	// SpecURL is where the OpenAPI document is published.
	SpecURL string

	// CachePath is the local copy of the document. Empty disables
	// caching and forces a network load.
	CachePath string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Index maps operations to their metadata. Concrete request paths are
// matched against the document's path templates with compiled patterns
// cached per template.
type Index struct {
	specURL   string
	cachePath string
	client    *http.Client
	logger    *slog.Logger

	mu        sync.RWMutex
	endpoints map[string]Metadata
	version   string

	patternMu sync.Mutex
	patterns  map[string]*regexp.Regexp

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns an Index that has not loaded anything yet; call Load.
func New(opts Options) *Index {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		specURL:   opts.SpecURL,
		cachePath: opts.CachePath,
		client:    client,
		logger:    logger,
		endpoints: make(map[string]Metadata),
		patterns:  make(map[string]*regexp.Regexp),
	}
}

// Load builds the index. A validated cached document is used
// immediately and refreshed in the background; otherwise the document
// is fetched, persisted and parsed, with one retry. Failure leaves the
// index empty, which degrades lookups to misses rather than breaking
// requests.
func (ix *Index) Load(ctx context.Context) error {
	doc, version, err := ix.readCached()
	if err == nil {
		ix.install(doc, version)
		ix.startBackgroundRefresh()
		return nil
	}
	ix.logger.Debug("no usable cached API description", logging.Err(err))

	var lastErr error
	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		text, err := ix.fetch(ctx)
		if err != nil {
			lastErr = err
			ix.logger.Warn("fetching API description failed",
				"attempt", attempt, logging.Err(err))
			continue
		}
		doc, version, err := parseDocument(text)
		if err != nil {
			lastErr = err
			ix.logger.Warn("parsing API description failed",
				"attempt", attempt, logging.Err(err))
			continue
		}
		ix.persist(text)
		ix.install(doc, version)
		return nil
	}
	return fmt.Errorf("load API description: %w", lastErr)
}

// Close cancels the background refresh and waits for it to finish.
func (ix *Index) Close() {
	if ix.cancel != nil {
		ix.cancel()
	}
	ix.wg.Wait()
}

// Lookup returns the metadata for a request. The concrete path is
// first tried verbatim, then matched against the document's templates.
func (ix *Index) Lookup(method, path string) (Metadata, bool) {
	method = strings.ToUpper(method)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if meta, ok := ix.endpoints[method+" "+path]; ok {
		return meta, true
	}

	normalized := strings.TrimRight(path, "/")
	prefix := method + " "
	for key, meta := range ix.endpoints {
		template, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if p := ix.pattern(strings.TrimRight(template, "/")); p != nil && p.MatchString(normalized) {
			return meta, true
		}
	}
	return Metadata{}, false
}

// Version reports the indexed document's declared version.
func (ix *Index) Version() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.version
}

// Endpoints reports how many operations are indexed.
func (ix *Index) Endpoints() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.endpoints)
}

// NormalizePath rewrites numeric path segments to a template
// placeholder, e.g. /characters/96947097/assets becomes
// /characters/{id}/assets. Used to keep concrete IDs out of metric
// labels and log keys.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(strings.TrimRight(path, "/"), "/{id}")
}

// pattern compiles a path template into an anchored matcher, caching
// per template. Invalid templates cache a nil matcher.
func (ix *Index) pattern(template string) *regexp.Regexp {
	ix.patternMu.Lock()
	defer ix.patternMu.Unlock()

	if p, ok := ix.patterns[template]; ok {
		return p
	}
	p, err := regexp.Compile("^" + pathPlaceholder.ReplaceAllString(template, `[^/]+?`) + "/?$")
	if err != nil {
		ix.logger.Warn("invalid path template", "template", template, logging.Err(err))
		p = nil
	}
	ix.patterns[template] = p
	return p
}

func (ix *Index) install(doc map[string]any, version string) {
	endpoints := buildEndpoints(doc)

	ix.mu.Lock()
	ix.endpoints = endpoints
	ix.version = version
	ix.mu.Unlock()

	ix.logger.Info("indexed API endpoint metadata",
		"endpoints", len(endpoints), "version", version)
}

// startBackgroundRefresh re-fetches the document once, off the startup
// path, and reinstalls the index if the published copy changed.
func (ix *Index) startBackgroundRefresh() {
	ctx, cancel := context.WithCancel(context.Background())
	ix.cancel = cancel
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ix.refresh(ctx)
	}()
}

func (ix *Index) refresh(ctx context.Context) {
	text, err := ix.fetch(ctx)
	if err != nil {
		ix.logger.Debug("background API description refresh failed", logging.Err(err))
		return
	}
	if existing, err := os.ReadFile(ix.cachePath); err == nil && string(existing) == text {
		ix.logger.Debug("API description unchanged")
		return
	}
	doc, version, err := parseDocument(text)
	if err != nil {
		ix.logger.Debug("refreshed API description unparseable", logging.Err(err))
		return
	}
	ix.persist(text)
	ix.install(doc, version)
	ix.logger.Info("refreshed API description", "version", version)
}

func (ix *Index) fetch(ctx context.Context) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ix.specURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := ix.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, ix.specURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// readCached validates the local copy: it must parse as an OpenAPI
// document and declare a version, otherwise it is ignored.
func (ix *Index) readCached() (map[string]any, string, error) {
	if ix.cachePath == "" {
		return nil, "", errors.New("caching disabled")
	}
	data, err := os.ReadFile(ix.cachePath)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("cached API description is empty")
	}
	doc, version, err := parseDocument(string(data))
	if err != nil {
		return nil, "", err
	}
	if version == "" {
		return nil, "", errors.New("cached API description declares no version")
	}
	return doc, version, nil
}

// persist writes the document atomically next to its final name.
// Best-effort: a failure costs a refetch on next startup.
func (ix *Index) persist(text string) {
	if ix.cachePath == "" {
		return
	}
	dir := filepath.Dir(ix.cachePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		ix.logger.Debug("persisting API description failed", logging.Err(err))
		return
	}
	tmp, err := os.CreateTemp(dir, ".openapi_*.json.tmp")
	if err != nil {
		ix.logger.Debug("persisting API description failed", logging.Err(err))
		return
	}
	if _, err := tmp.Write([]byte(text)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		ix.logger.Debug("persisting API description failed", logging.Err(err))
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		ix.logger.Debug("persisting API description failed", logging.Err(err))
		return
	}
	if err := os.Rename(tmp.Name(), ix.cachePath); err != nil {
		os.Remove(tmp.Name())
		ix.logger.Debug("persisting API description failed", logging.Err(err))
	}
}

func parseDocument(text string) (map[string]any, string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, "", fmt.Errorf("parse API description: %w", err)
	}
	if _, ok := doc["openapi"]; !ok {
		return nil, "", errors.New("not an OpenAPI document")
	}
	version := ""
	if info, ok := doc["info"].(map[string]any); ok {
		version, _ = info["version"].(string)
	}
	return doc, version, nil
}

// buildEndpoints walks the raw document. Only the security sections
// and the x-rate-limit extension are read, so constructing full
// OpenAPI models would buy nothing.
func buildEndpoints(doc map[string]any) map[string]Metadata {
	endpoints := make(map[string]Metadata)

	paths, _ := doc["paths"].(map[string]any)
	globalAuth := hasSecurity(doc["security"])

	for path, rawItem := range paths {
		pathItem, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		pathAuth := hasSecurity(pathItem["security"])

		for _, method := range []string{"get", "post", "put", "delete", "patch", "options", "head"} {
			op, ok := pathItem[method].(map[string]any)
			if !ok {
				continue
			}
			endpoints[strings.ToUpper(method)+" "+path] = Metadata{
				RateGroup:    rateGroup(op["x-rate-limit"]),
				RequiresAuth: hasSecurity(op["security"]) || pathAuth || globalAuth,
			}
		}
	}
	return endpoints
}

func hasSecurity(v any) bool {
	list, ok := v.([]any)
	return ok && len(list) > 0
}

// rateGroup accepts the structured form {"group": "name"} and the
// historical shorthand where the extension is the bare group name.
func rateGroup(v any) string {
	switch ext := v.(type) {
	case map[string]any:
		if group, ok := ext["group"].(string); ok && group != "" {
			return group
		}
	case string:
		if rateGroupName.MatchString(ext) {
			return ext
		}
	}
	return ""
}
