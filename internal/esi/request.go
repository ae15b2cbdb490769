package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/evegate/internal/apispec"
	"github.com/teemow/evegate/internal/instrumentation"
	"github.com/teemow/evegate/internal/logging"
	"github.com/teemow/evegate/internal/ratelimit"
	"github.com/teemow/evegate/internal/respcache"
	"github.com/teemow/evegate/internal/sso"
)

// RequestOptions controls one request. The zero value of MaxRetries
// selects the default; UseCache must be set explicitly, so build from
// DefaultOptions when caching is wanted.
type RequestOptions struct {
	// Params are query parameters. They are part of the cache key;
	// the datasource parameter is injected afterwards and is not.
	Params url.Values

	// Headers are extra request headers, applied before the standard
	// ones so they cannot clobber Authorization.
	Headers http.Header

	// Body is JSON-encoded into the request body when non-nil.
	Body any

	UseCache   bool
	MaxRetries int

	// CharacterID selects the token for authenticated endpoints.
	// Setting it forces authentication even when the endpoint is
	// declared public.
	CharacterID int64

	// FullURL bypasses BaseURL+path entirely. The path is still used
	// for metadata lookup and metric labels.
	FullURL string
}

// DefaultOptions returns the options normal API calls use.
func DefaultOptions() *RequestOptions {
	return &RequestOptions{UseCache: true, MaxRetries: defaultMaxRetries}
}

// Response is a completed request. Headers are lower-cased. FromCache
// marks responses served locally, fresh or revalidated.
type Response struct {
	Data       json.RawMessage
	Headers    map[string]string
	StatusCode int
	FromCache  bool
}

// Request performs one API call: cache check, rate-limit pacing, then
// up to MaxRetries attempts with exponential backoff on server errors,
// a single token refresh on 401, and 429 handling through the tracker.
func (c *Client) Request(ctx context.Context, method, path string, opt *RequestOptions) (*Response, error) {
	method = strings.ToUpper(method)
	meta, _ := c.endpointMeta(method, path)
	group := meta.RateGroup
	if group == "" {
		group = "legacy"
	}
	var fullURL string
	if opt != nil {
		fullURL = opt.FullURL
	}
	ctx, span := instrumentation.StartUpstreamSpan(ctx, group, method+" "+c.metricPath(path, fullURL))
	defer span.End()

	resp, err := c.doRequest(ctx, method, path, opt)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	if resp.FromCache {
		instrumentation.AddSpanEvent(span, "served from cache")
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, opt *RequestOptions) (*Response, error) {
	if opt == nil {
		opt = DefaultOptions()
	}
	retries := opt.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	if retries < 0 || retries > maxRetryCeiling {
		return nil, fmt.Errorf("invalid max retries %d, must be 1-%d", opt.MaxRetries, maxRetryCeiling)
	}
	if opt.CharacterID < 0 {
		return nil, fmt.Errorf("invalid character id %d", opt.CharacterID)
	}
	method = strings.ToUpper(method)

	meta, known := c.endpointMeta(method, path)
	requiresAuth := meta.RequiresAuth
	if opt.CharacterID > 0 && !requiresAuth {
		if known {
			c.logger.Warn("character given for endpoint declared public, forcing authentication",
				"method", method, logging.Endpoint(path), logging.Character(opt.CharacterID))
		} else {
			c.logger.Debug("no endpoint metadata, assuming authentication required",
				"method", method, logging.Endpoint(path))
		}
		requiresAuth = true
	}

	requestURL := opt.FullURL
	if requestURL == "" {
		requestURL = c.baseURL + path
	}

	useCache := opt.UseCache && c.cache != nil
	var cached *respcache.Entry
	if useCache {
		entry, err := c.cache.Lookup(ctx, method, requestURL, opt.Params, opt.Body)
		if err != nil {
			c.logger.Warn("cache lookup failed", logging.Err(err))
		}
		switch {
		case entry != nil && entry.Fresh():
			c.metrics.RecordCacheEvent(ctx, instrumentation.CacheHit)
			c.logger.Debug("served from cache", "method", method, logging.Endpoint(path))
			c.scheduleExpiryAlert(method, requestURL, opt.Params, opt.Body, entry.ExpiresAt)
			return &Response{Data: entry.Data, Headers: entry.Headers, StatusCode: http.StatusOK, FromCache: true}, nil
		case entry != nil && entry.ETag != "" && method == http.MethodGet:
			// Expired but revalidatable.
			cached = entry
			c.metrics.RecordCacheEvent(ctx, instrumentation.CacheStale)
		default:
			c.metrics.RecordCacheEvent(ctx, instrumentation.CacheMiss)
		}
	}

	// Fail before any network traffic when the token is unusable. A
	// missing character id is left to the server so public probing of
	// restricted endpoints reports the upstream 401.
	if requiresAuth && opt.CharacterID > 0 {
		if c.auth == nil {
			return nil, fmt.Errorf("%w: client has no authenticator configured", sso.ErrAuthRequired)
		}
		if _, err := c.auth.AccessToken(ctx, opt.CharacterID); err != nil {
			c.logger.Error("no usable token", logging.Character(opt.CharacterID), logging.Err(err))
			return nil, err
		}
	}

	requestParams := cloneValues(opt.Params)
	if c.datasource != "" && requestParams.Get("datasource") == "" {
		requestParams.Set("datasource", c.datasource)
	}

	groupKey := rateKey(meta.RateGroup, requiresAuth, opt.CharacterID)
	if err := c.limits.WaitIfNeeded(ctx, groupKey); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if opt.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(opt.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	etag := ""
	if cached != nil {
		etag = cached.ETag
	}
	metricPath := c.metricPath(path, opt.FullURL)
	reqID := uuid.NewString()
	tokenRefreshed := false

	for attempt := 0; attempt < retries; attempt++ {
		req, err := c.buildRequest(ctx, method, requestURL, requestParams, opt.Headers, bodyBytes, etag, requiresAuth, opt.CharacterID)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("sending upstream request",
			logging.RequestID(reqID), "method", method, "url", requestURL,
			"attempt", attempt+1, "authenticated", req.Header.Get("Authorization") != "")

		start := time.Now()
		resp, err := c.transport.Do(req)
		if err != nil {
			if attempt == retries-1 {
				return nil, fmt.Errorf("%s %s: %w", method, requestURL, err)
			}
			c.logger.Debug("transport error, retrying",
				logging.RequestID(reqID), "attempt", attempt+1, logging.Err(err))
			if serr := c.sleep(ctx, backoffDelay(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt == retries-1 {
				return nil, fmt.Errorf("%s %s: read response: %w", method, requestURL, readErr)
			}
			if serr := c.sleep(ctx, backoffDelay(attempt)); serr != nil {
				return nil, serr
			}
			continue
		}

		// The group the server names wins over spec metadata.
		override := groupKey
		if g := resp.Header.Get(ratelimit.HeaderGroup); g != "" {
			override = rateKey(g, requiresAuth, opt.CharacterID)
		}
		c.limits.UpdateFromHeaders(resp.Header, override)
		c.metrics.RecordESIRequest(ctx, method, metricPath, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusNotModified:
			return c.serveRevalidated(ctx, method, path, requestURL, opt, cached, resp.Header, override)

		case resp.StatusCode == http.StatusTooManyRequests:
			c.logger.Warn("rate limited upstream",
				logging.RequestID(reqID), "method", method, logging.Endpoint(path), logging.RateGroup(override))
			if err := c.limits.Handle429(ctx, resp.Header.Get("Retry-After"), override); err != nil {
				return nil, err
			}
			if attempt == retries-1 {
				return nil, &StatusError{StatusCode: resp.StatusCode, Method: method, URL: requestURL, GroupKey: override, CharacterID: opt.CharacterID}
			}
			continue

		case resp.StatusCode == http.StatusUnauthorized:
			if requiresAuth && opt.CharacterID > 0 && c.auth != nil && !tokenRefreshed {
				tokenRefreshed = true
				c.logger.Warn("unauthorized, refreshing token",
					logging.RequestID(reqID), logging.Character(opt.CharacterID))
				if _, err := c.auth.Refresh(ctx, opt.CharacterID); err == nil {
					continue
				} else {
					c.logger.Error("token refresh failed", logging.Character(opt.CharacterID), logging.Err(err))
				}
			}
			// Structures and other ACL-gated resources 401 routinely,
			// keep the noise down.
			c.logger.Debug("access denied",
				logging.RequestID(reqID), "method", method, logging.Endpoint(path), logging.Character(opt.CharacterID))
			return nil, &StatusError{StatusCode: resp.StatusCode, Method: method, URL: requestURL, GroupKey: override, CharacterID: opt.CharacterID}

		case retryableStatus(resp.StatusCode):
			if attempt == retries-1 {
				return nil, &StatusError{StatusCode: resp.StatusCode, Method: method, URL: requestURL, GroupKey: override, CharacterID: opt.CharacterID}
			}
			c.logger.Debug("server error, retrying",
				logging.RequestID(reqID), "status", resp.StatusCode, "attempt", attempt+1)
			if serr := c.sleep(ctx, backoffDelay(attempt)); serr != nil {
				return nil, serr
			}
			continue

		case resp.StatusCode >= 400:
			return nil, &StatusError{StatusCode: resp.StatusCode, Method: method, URL: requestURL, GroupKey: override, CharacterID: opt.CharacterID}
		}

		c.limits.ResetBackoff(override)
		data := c.parseBody(reqID, method, requestURL, resp.StatusCode, resp.Header.Get("Content-Type"), body)
		headers := lowerHeaders(resp.Header)

		if useCache && data != nil {
			if err := c.cache.Store(ctx, method, requestURL, data, headers, opt.Params, opt.Body); err != nil {
				c.logger.Warn("cache store failed", logging.Err(err))
			} else {
				c.metrics.RecordCacheEvent(ctx, instrumentation.CacheStore)
				if ttl, ok := c.cache.TimeToExpiry(ctx, method, requestURL, opt.Params, opt.Body); ok {
					c.scheduleExpiryAlert(method, requestURL, opt.Params, opt.Body, time.Now().Add(ttl))
				}
			}
		}

		return &Response{Data: data, Headers: headers, StatusCode: resp.StatusCode, FromCache: false}, nil
	}

	return nil, fmt.Errorf("%s %s: request failed after %d attempts", method, requestURL, retries)
}

// serveRevalidated answers a 304 from the cached entry, folding the
// fresh response headers in so the rewritten entry picks up the new
// expiry.
func (c *Client) serveRevalidated(ctx context.Context, method, path, requestURL string, opt *RequestOptions, cached *respcache.Entry, respHeader http.Header, groupKey string) (*Response, error) {
	c.logger.Debug("revalidated by upstream", "method", method, logging.Endpoint(path))
	c.limits.ResetBackoff(groupKey)

	if cached == nil {
		// 304 answering an If-None-Match the caller supplied; there
		// is nothing local to serve.
		return &Response{Headers: lowerHeaders(respHeader), StatusCode: http.StatusNotModified}, nil
	}

	merged := make(map[string]string, len(cached.Headers)+len(respHeader))
	maps.Copy(merged, cached.Headers)
	for k, vs := range respHeader {
		if len(vs) > 0 {
			merged[strings.ToLower(k)] = vs[0]
		}
	}
	if merged["etag"] == "" && cached.ETag != "" {
		merged["etag"] = cached.ETag
	}

	if err := c.cache.Store(ctx, method, requestURL, cached.Data, merged, opt.Params, opt.Body); err != nil {
		c.logger.Warn("cache rewrite failed", logging.Err(err))
	} else if ttl, ok := c.cache.TimeToExpiry(ctx, method, requestURL, opt.Params, opt.Body); ok {
		c.scheduleExpiryAlert(method, requestURL, opt.Params, opt.Body, time.Now().Add(ttl))
	}
	c.metrics.RecordCacheEvent(ctx, instrumentation.CacheRevalidated)

	return &Response{Data: cached.Data, Headers: merged, StatusCode: http.StatusOK, FromCache: true}, nil
}

func (c *Client) buildRequest(ctx context.Context, method, requestURL string, params url.Values, extra http.Header, body []byte, etag string, requiresAuth bool, characterID int64) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}

	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.compatDate != "" && req.Header.Get("X-Compatibility-Date") == "" {
		req.Header.Set("X-Compatibility-Date", c.compatDate)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Headers are rebuilt every attempt, so a refreshed token is
	// picked up here. Failures fall through unauthenticated and the
	// server reports the definitive auth error.
	if requiresAuth && characterID > 0 && c.auth != nil {
		token, err := c.auth.AccessToken(ctx, characterID)
		if err != nil {
			c.logger.Debug("could not obtain access token", logging.Character(characterID), logging.Err(err))
		} else {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) parseBody(reqID, method, requestURL string, status int, contentType string, body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "application/octet-stream") {
		return body
	}
	if !json.Valid(body) {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		c.logger.Warn("response body is not valid JSON",
			logging.RequestID(reqID), "method", method, "url", requestURL,
			"status", status, "content_type", contentType, "preview", string(preview))
		return nil
	}
	return body
}

func (c *Client) endpointMeta(method, path string) (apispec.Metadata, bool) {
	if c.spec == nil {
		return apispec.Metadata{}, false
	}
	return c.spec.Lookup(method, path)
}

// metricPath is the normalized path label for request metrics.
func (c *Client) metricPath(path, fullURL string) string {
	if fullURL != "" {
		if u, err := url.Parse(fullURL); err == nil {
			return apispec.NormalizePath(u.Path)
		}
	}
	return apispec.NormalizePath(path)
}

// rateKey scopes authenticated traffic to the character so one noisy
// character cannot starve the others.
func rateKey(group string, requiresAuth bool, characterID int64) string {
	if group == "" {
		return ""
	}
	if requiresAuth && characterID > 0 {
		return fmt.Sprintf("%s:%d", group, characterID)
	}
	return group
}

// Transient statuses the upstream emits during deploys and node drains.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

func lowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[strings.ToLower(k)] = vs[0]
		}
	}
	return out
}
