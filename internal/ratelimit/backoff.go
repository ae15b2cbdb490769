package ratelimit

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/teemow/evegate/internal/logging"
)

// graduatedBase is the delay at full scarcity and backoff level zero.
const graduatedBase = 2 * time.Second

// minGraduatedDelay keeps jittered slowdowns from rounding to nothing.
const minGraduatedDelay = 100 * time.Millisecond

// WaitIfNeeded sleeps when the group is close to exhaustion. The delay
// is chosen in order of available signal:
//
//  1. legacy budget with a known reset instant: sleep exactly until it;
//  2. tracked bucket below threshold: graduated slowdown, scaling
//     linearly with scarcity and the group's backoff level;
//  3. otherwise: exponential backoff.
//
// Cancelling ctx aborts the sleep and returns its error.
func (t *Tracker) WaitIfNeeded(ctx context.Context, groupKey string) error {
	t.mu.Lock()

	if !t.shouldBackoffLocked(groupKey) {
		t.mu.Unlock()
		return nil
	}

	if groupKey == "" && !t.errorBudget.ResetAt.IsZero() {
		if wait := t.errorBudget.ResetAt.Sub(t.now()); wait > 0 {
			remaining := t.errorBudget.Remaining
			t.mu.Unlock()
			t.logger.Info("error budget low, waiting for reset",
				"remaining", optionalInt(remaining),
				"wait", wait.Round(time.Millisecond))
			t.notifyWait(groupKey, WaitReasonReset)
			return t.sleep(ctx, wait)
		}
	}

	if groupKey != "" {
		available, haveTokens := t.availableTokensLocked(groupKey)
		threshold, haveThreshold := t.thresholdTokensLocked(t.buckets[groupKey])
		if haveTokens && haveThreshold && available < threshold {
			level := t.backoffLevels[groupKey]
			t.mu.Unlock()

			// Scarcity runs from 0.0 at the threshold to 1.0 at empty.
			scarcity := float64(threshold-available) / float64(threshold)
			if scarcity > 1 {
				scarcity = 1
			}
			delay := time.Duration(float64(graduatedBase) * scarcity * float64(1+level))
			if delay > t.maxBackoff {
				delay = t.maxBackoff
			}
			delay = withJitter(delay, 0.10)
			if delay < minGraduatedDelay {
				delay = minGraduatedDelay
			}

			t.logger.Debug("graduated slowdown",
				logging.RateGroup(groupKey),
				"available", available,
				"threshold", threshold,
				"level", level,
				"delay", delay.Round(time.Millisecond))
			t.notifyWait(groupKey, WaitReasonGraduated)
			return t.sleep(ctx, delay)
		}
	}

	t.mu.Unlock()
	return t.exponentialBackoff(ctx, orLegacy(groupKey))
}

// Handle429 reacts to a 429 response: an explicit Retry-After header is
// honored verbatim, otherwise exponential backoff applies. Either path
// raises the group's backoff level so persistent 429s escalate.
func (t *Tracker) Handle429(ctx context.Context, retryAfter, groupKey string) error {
	key := orLegacy(groupKey)

	if retryAfter != "" {
		seconds, err := strconv.Atoi(retryAfter)
		if err == nil && seconds >= 0 {
			t.logger.Warn("rate limited by server, honoring Retry-After",
				logging.RateGroup(key), "retry_after_seconds", seconds)
			t.notifyWait(key, WaitReasonRetryAfter)
			if err := t.sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
				return err
			}
			t.mu.Lock()
			t.incrementBackoffLocked(key)
			t.persistLocked()
			t.mu.Unlock()
			return nil
		}
		t.logger.Warn("rate limited by server, Retry-After unparseable",
			logging.RateGroup(key), "retry_after", retryAfter)
	} else {
		t.logger.Warn("rate limited by server, no Retry-After given",
			logging.RateGroup(key))
	}

	return t.exponentialBackoff(ctx, key)
}

// ResetBackoff lowers the group's backoff level by one after a clean
// response. Levels decay step by step so a single success does not
// erase the memory of recent trouble.
func (t *Tracker) ResetBackoff(groupKey string) {
	key := orLegacy(groupKey)

	t.mu.Lock()
	defer t.mu.Unlock()

	level, ok := t.backoffLevels[key]
	if !ok || level == 0 {
		return
	}
	t.backoffLevels[key] = level - 1
	t.persistLocked()
}

func (t *Tracker) exponentialBackoff(ctx context.Context, key string) error {
	t.mu.Lock()
	level := t.backoffLevels[key]
	t.mu.Unlock()

	delay := time.Duration(1<<level) * time.Second
	if delay > t.maxBackoff {
		delay = t.maxBackoff
	}
	delay = withJitter(delay, 0.25)

	t.logger.Info("backing off",
		logging.RateGroup(key),
		"level", level,
		"delay", delay.Round(time.Millisecond))
	t.notifyWait(key, WaitReasonExponential)
	if err := t.sleep(ctx, delay); err != nil {
		return err
	}

	t.mu.Lock()
	t.incrementBackoffLocked(key)
	t.persistLocked()
	t.mu.Unlock()
	return nil
}

func (t *Tracker) incrementBackoffLocked(key string) {
	level := t.backoffLevels[key] + 1
	if level > maxBackoffLevel {
		level = maxBackoffLevel
	}
	t.backoffLevels[key] = level
}

func (t *Tracker) notifyWait(groupKey, reason string) {
	if t.onWait != nil {
		t.onWait(orLegacy(groupKey), reason)
	}
}

func orLegacy(groupKey string) string {
	if groupKey == "" {
		return legacyKey
	}
	return groupKey
}

// withJitter spreads d by up to ±fraction so synchronized clients do
// not retry in lockstep.
func withJitter(d time.Duration, fraction float64) time.Duration {
	jitter := float64(d) * fraction * (2*rand.Float64() - 1)
	return d + time.Duration(jitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// optionalInt renders a possibly missing counter for log output.
func optionalInt(v *int) any {
	if v == nil {
		return "unknown"
	}
	return *v
}
