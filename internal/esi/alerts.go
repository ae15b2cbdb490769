package esi

import (
	"context"
	"net/url"
	"time"

	"github.com/teemow/evegate/internal/respcache"
)

// scheduleExpiryAlert arranges a log line shortly before a cache entry
// expires, so interactive sessions see stale data coming. One pending
// alert per cache key; scheduling again replaces it.
func (c *Client) scheduleExpiryAlert(method, requestURL string, params url.Values, body any, expiresAt time.Time) {
	if c.warnBefore <= 0 || expiresAt.IsZero() {
		return
	}

	key := respcache.Key(method, requestURL, params, body)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if cancel, ok := c.alerts[key]; ok {
		cancel()
		delete(c.alerts, key)
	}

	left := time.Until(expiresAt)
	if left <= 0 {
		c.mu.Unlock()
		return
	}
	if left <= c.warnBefore {
		c.mu.Unlock()
		c.logger.Info("cache entry expiring soon",
			"method", method, "url", requestURL,
			"expires_in", left.Round(time.Second))
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.alerts[key] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(left - c.warnBefore)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			c.logger.Info("cache entry expiring soon",
				"method", method, "url", requestURL,
				"expires_in", c.warnBefore.Round(time.Second))
		}
	}()
}
