package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
)

// Keys cursor endpoints use for their payload list, probed in order on
// the first page.
var pageListKeys = [...]string{"projects", "data", "items", "results"}

// PageOptions controls a paginated request sequence.
type PageOptions struct {
	Params      url.Values
	UseCache    bool
	MaxRetries  int
	CharacterID int64
	FullURL     string
}

// Pages is a sequence over all pages of a response. The pagination
// style is detected from the first response: an X-Pages header drives
// numbered pages, a cursor object in the body drives cursor following,
// anything else is a single page. Iteration stops at the first error,
// which is yielded last.
func (c *Client) Pages(ctx context.Context, method, path string, opt *PageOptions) iter.Seq2[json.RawMessage, error] {
	if opt == nil {
		opt = &PageOptions{UseCache: true}
	}

	request := func(params url.Values) (*Response, error) {
		return c.Request(ctx, method, path, &RequestOptions{
			Params:      params,
			UseCache:    opt.UseCache,
			MaxRetries:  opt.MaxRetries,
			CharacterID: opt.CharacterID,
			FullURL:     opt.FullURL,
		})
	}

	return func(yield func(json.RawMessage, error) bool) {
		// Probe with page 1 so numbered pagination shows its header.
		params := cloneValues(opt.Params)
		params.Set("page", "1")
		first, err := request(params)
		if err != nil {
			yield(nil, err)
			return
		}

		if xPages := first.Headers["x-pages"]; xPages != "" {
			c.yieldNumbered(first, xPages, opt, request, yield)
			return
		}

		obj, isObject := asObject(first.Data)
		if isObject {
			if _, ok := obj["cursor"]; ok {
				c.yieldCursor(first, obj, request, yield)
				return
			}
			// Neither style: re-request without the speculative page
			// parameter so the cached entry is clean.
			clean, err := request(opt.Params)
			if err != nil {
				yield(nil, err)
				return
			}
			yield(clean.Data, nil)
			return
		}

		yield(first.Data, nil)
	}
}

func (c *Client) yieldNumbered(first *Response, xPages string, opt *PageOptions, request func(url.Values) (*Response, error), yield func(json.RawMessage, error) bool) {
	if !yield(first.Data, nil) {
		return
	}
	total, err := strconv.Atoi(xPages)
	if err != nil {
		yield(nil, fmt.Errorf("bad x-pages header %q: %w", xPages, err))
		return
	}
	for page := 2; page <= total; page++ {
		params := cloneValues(opt.Params)
		params.Set("page", strconv.Itoa(page))
		resp, err := request(params)
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(resp.Data, nil) {
			return
		}
	}
}

func (c *Client) yieldCursor(first *Response, obj map[string]json.RawMessage, request func(url.Values) (*Response, error), yield func(json.RawMessage, error) bool) {
	// The list key found on the first page applies to all of them.
	listKey := ""
	for _, k := range pageListKeys {
		if raw, ok := obj[k]; ok && isArray(raw) {
			listKey = k
			break
		}
	}

	emit := func(whole json.RawMessage, page map[string]json.RawMessage) bool {
		if listKey != "" {
			if raw, ok := page[listKey]; ok {
				return yield(raw, nil)
			}
		}
		return yield(whole, nil)
	}

	if !emit(first.Data, obj) {
		return
	}

	cursor := cursorToken(obj)
	for cursor != "" {
		resp, err := request(url.Values{"after": {cursor}})
		if err != nil {
			yield(nil, err)
			return
		}
		page, isObject := asObject(resp.Data)
		if !isObject {
			yield(resp.Data, nil)
			return
		}
		cursor = cursorToken(page)
		if !emit(resp.Data, page) {
			return
		}
	}
}

// CollectPages drains a page sequence, decoding every page as a JSON
// array of T and concatenating the results.
func CollectPages[T any](seq iter.Seq2[json.RawMessage, error]) ([]T, error) {
	var out []T
	for page, err := range seq {
		if err != nil {
			return nil, err
		}
		var chunk []T
		if err := json.Unmarshal(page, &chunk); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// cursorToken pulls the continuation token out of a page, empty when
// pagination ends.
func cursorToken(page map[string]json.RawMessage) string {
	raw, ok := page["cursor"]
	if !ok {
		return ""
	}
	var cur struct {
		After string `json:"after"`
		Next  string `json:"next"`
	}
	if err := json.Unmarshal(raw, &cur); err != nil {
		return ""
	}
	if cur.After != "" {
		return cur.After
	}
	return cur.Next
}
