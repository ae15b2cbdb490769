// Package ratelimit tracks the two rate-limit protocols the game API
// answers with: a per-group token bucket (X-Ratelimit-*) on migrated
// endpoints and a global error budget (X-Esi-Error-Limit-*) on legacy
// ones.
//
// The tracker never assumes server policy. Token cost per request is
// inferred by diffing successive used counters, and availability is
// projected forward between observations from the bucket's regeneration
// rate. When a bucket falls below a percentage-of-limit threshold,
// requests are slowed gradually, scaling with scarcity, instead of
// being cut off.
//
// Tracker state is persisted after every mutation so nearly exhausted
// buckets are still respected after a restart.
package ratelimit
