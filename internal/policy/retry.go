// Package policy holds the composable wrappers around an api.ExecuteFunc:
// retry with backoff, TTL caching, a busy reference count and user
// notifications.
//
// Each wrapper has the same contract as the function it wraps, so they
// compose in any order. Retry must sit inside cache so a cached value is
// never retried and a retried call is stored once.
package policy

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
)

// Default retry settings.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryOption configures WithRetry.
type RetryOption func(*retrier)

// WithSleep replaces the backoff wait. Tests use it to observe delays
// without sleeping.
func WithSleep(fn SleepFunc) RetryOption {
	return func(r *retrier) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithRetrySink sends one retry event per scheduled retry to s.
func WithRetrySink(s telemetry.Sink) RetryOption {
	return func(r *retrier) { r.sink = s }
}

type retrier struct {
	next         api.ExecuteFunc
	maxRetries   int
	initialDelay time.Duration
	sleep        SleepFunc
	sink         telemetry.Sink
}

// WithRetry retries next on network errors and 5xx responses, waiting
// initialDelay·2^n before retry n. At most maxRetries+1 attempts are made
// and the last error is returned unchanged. Any other error fails at once.
func WithRetry(next api.ExecuteFunc, maxRetries int, initialDelay time.Duration, opts ...RetryOption) api.ExecuteFunc {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	r := &retrier{
		next:         next,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		sleep:        sleepWithContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r.execute
}

func (r *retrier) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.initialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
	}
	b.Reset()
	return b
}

func (r *retrier) execute(ctx context.Context, path string, opts api.Options) (json.RawMessage, error) {
	opts, err := api.BufferBody(opts)
	if err != nil {
		return nil, err
	}
	var lc api.Lifecycle
	b := r.newBackOff()

	for {
		_ = lc.Advance(api.StateSending)
		attempt := lc.Attempts()

		result, err := r.next(api.WithAttempt(ctx, attempt), path, opts)
		if err == nil {
			_ = lc.Advance(api.StateSuccess)
			return result, nil
		}
		if attempt > r.maxRetries || !api.IsRetryable(err) {
			_ = lc.Advance(api.StateFailed)
			return nil, err
		}

		_ = lc.Advance(api.StateRetrying)
		delay := b.NextBackOff()
		telemetry.Emit(ctx, r.sink, telemetry.Event{
			Type:    telemetry.EventRetry,
			Method:  opts.HTTPMethod(),
			Path:    path,
			Attempt: attempt,
			Status:  api.Classify(err).HTTPStatus,
			Delay:   delay,
			State:   lc.State().String(),
			Err:     err,
		})

		if waitErr := r.sleep(ctx, delay); waitErr != nil {
			return nil, &api.NetworkError{Method: opts.HTTPMethod(), Path: path, Err: waitErr}
		}
	}
}

// sleepWithContext waits for the duration or returns early on context cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
