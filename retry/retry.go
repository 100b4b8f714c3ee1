// Package retry drives one operation's retry loop: it asks a Strategy
// whether a failed attempt should be retried, waits out the computed
// backoff (or the caller's deadline, whichever comes first), and tries
// again.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// Info is what a Strategy needs to decide on the next attempt.
type Info struct {
	OpName    string
	Attempt   int // attempts made so far: 1 once the first attempt has failed
	LastError error
	// Idempotent marks whether resending this operation cannot change the
	// outcome beyond what one successful execution would: true for reads
	// and whole-value writes, false for counters/append-prepend/other
	// operations that accumulate. A non-idempotent operation is never
	// retried on an ambiguous error, since the previous attempt may already
	// have applied server-side.
	Idempotent bool
}

// Strategy decides whether an operation should be retried and how long to
// wait before the next attempt.
type Strategy interface {
	// ShouldRetry reports whether attempt should happen at all.
	ShouldRetry(info Info) bool
	// Backoff returns how long to wait before the next attempt.
	Backoff(info Info) time.Duration
}

// ExponentialBackoff doubles the delay every attempt up to Max, jittered by
// +/-Jitter fraction so a thundering herd of clients retrying the same
// failure don't all retry in lockstep.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // 0..1, fraction of the computed delay to randomize by
}

// DefaultBackoff matches the interval ranges seen in the wild for this kind
// of client: a quick first retry, capped growth so a long-outage doesn't
// turn into minutes-long waits between attempts.
var DefaultBackoff = ExponentialBackoff{
	Base:   10 * time.Millisecond,
	Max:    2 * time.Second,
	Jitter: 0.2,
}

func (b ExponentialBackoff) Backoff(info Info) time.Duration {
	d := b.Base << uint(info.Attempt)
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		delta := float64(d) * b.Jitter
		d = d - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
	}
	return d
}

func (b ExponentialBackoff) ShouldRetry(info Info) bool {
	cerr, ok := info.LastError.(*corebase.Error)
	if !ok {
		return false
	}
	if !cerr.Kind.IsRetryable() {
		return false
	}
	if cerr.Ambiguous && !info.Idempotent {
		return false
	}
	return true
}

// Orchestrate runs op, retrying per strategy until it succeeds, ctx is
// done, or strategy declines a further attempt. idempotent must be true
// only if resending op cannot change the outcome beyond a single successful
// execution; it gates retries of ambiguous errors (see Info.Idempotent). A
// context deadline expiring mid-retry surfaces as corebase.NewTimeout
// wrapping the last observed error, with Ambiguous set whenever the last
// attempt's error itself carried an ambiguous outcome (e.g. a durable write
// that may have applied server-side before the timeout).
func Orchestrate[T any](ctx context.Context, strategy Strategy, opName string, idempotent bool, op func(ctx context.Context) (T, error)) (T, error) {
	info := Info{OpName: opName, Idempotent: idempotent}
	for {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		info.Attempt++
		info.LastError = err

		if ctx.Err() != nil {
			var zero T
			return zero, corebase.NewTimeout(isAmbiguous(err), asCorebaseError(err))
		}
		if !strategy.ShouldRetry(info) {
			var zero T
			return zero, err
		}

		wait := strategy.Backoff(info)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, corebase.NewTimeout(isAmbiguous(err), asCorebaseError(err))
		}
	}
}

func isAmbiguous(err error) bool {
	cerr, ok := err.(*corebase.Error)
	return ok && cerr.Ambiguous
}

func asCorebaseError(err error) *corebase.Error {
	cerr, _ := err.(*corebase.Error)
	return cerr
}
