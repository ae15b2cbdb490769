// Package respcache persists upstream HTTP responses in a local SQLite
// database, keyed by a hash over method, URL, query parameters and
// request body.
//
// Entries carry the expiry the server declared (Expires header, with a
// configurable fallback TTL) plus the response's ETag. An entry past
// its expiry is not discarded immediately: it survives inside a grace
// window and is handed back stale, so callers can revalidate with
// If-None-Match and turn a 304 into a cheap refresh. Rows past the
// grace window are evicted lazily on lookup and by a periodic sweeper.
//
// Unreadable rows are deleted and reported as a miss; the cache never
// fails a request on its own account.
package respcache
