package esi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/teemow/evegate/internal/logging"
)

// imageSizes is the ladder of rendered sizes the image service offers,
// largest first.
var imageSizes = []int{1024, 512, 256, 128, 64, 32}

// Image fetches one rendered image. Category is the entity kind
// (characters, corporations, alliances, types), variation the render
// (portrait, logo, icon, render). Images bypass the response cache and
// use their own on-disk store when the client has an image directory.
func (c *Client) Image(ctx context.Context, category string, id int64, variation string, size int, useCache bool) ([]byte, error) {
	cachePath := ""
	if c.imageDir != "" {
		cachePath = filepath.Join(c.imageDir, category, fmt.Sprintf("%d_%s_%d.png", id, variation, size))
		if useCache {
			data, err := os.ReadFile(cachePath)
			if err == nil {
				return data, nil
			}
			if !os.IsNotExist(err) {
				c.logger.Debug("reading cached image failed", "path", cachePath, logging.Err(err))
			}
		}
	}

	params := url.Values{"size": {strconv.Itoa(size)}}
	if c.datasource != "" {
		params.Set("tenant", c.datasource)
	}
	resp, err := c.Request(ctx, http.MethodGet, "", &RequestOptions{
		Params:  params,
		FullURL: fmt.Sprintf("%s/%s/%d/%s", c.imageBaseURL, category, id, variation),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty image response for %s/%d/%s size %d", category, id, variation, size)
	}

	if useCache && cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o700); err != nil {
			c.logger.Debug("creating image cache directory failed", "path", cachePath, logging.Err(err))
		} else if err := os.WriteFile(cachePath, resp.Data, 0o600); err != nil {
			c.logger.Debug("caching image failed", "path", cachePath, logging.Err(err))
		}
	}
	return resp.Data, nil
}

// ImageWithFallback fetches an image trying the preferred size first,
// then progressively larger renders, then smaller ones. Returns the
// image and the size that was actually served.
func (c *Client) ImageWithFallback(ctx context.Context, category string, id int64, variation string, preferredSize int, useCache bool) ([]byte, int, error) {
	idx := slices.Index(imageSizes, preferredSize)
	if idx < 0 {
		idx = 3 // anchor unknown sizes at 128
	}

	order := make([]int, 0, len(imageSizes)+1)
	for i := idx; i >= 0; i-- {
		order = append(order, imageSizes[i])
	}
	order = append(order, preferredSize)
	order = append(order, imageSizes[idx+1:]...)

	seen := make(map[int]bool, len(order))
	var lastErr error
	for _, size := range order {
		if seen[size] {
			continue
		}
		seen[size] = true
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		data, err := c.Image(ctx, category, id, variation, size, useCache)
		if err != nil {
			lastErr = err
			c.logger.Debug("image size unavailable",
				"category", category, "id", id, "variation", variation,
				"size", size, logging.Err(err))
			continue
		}
		return data, size, nil
	}
	return nil, 0, fmt.Errorf("no image available for %s/%d/%s: %w", category, id, variation, lastErr)
}
