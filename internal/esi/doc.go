// Package esi is the upstream request engine. Every endpoint group goes
// through one code path that layers response caching with ETag
// revalidation, rate-limit pacing, token refresh and bounded retries
// around a pluggable HTTP transport.
package esi
