package runner

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/mdwillman/dedalus/pkg/dedalus"
)

var _ Completions = (*RetryingCompletions)(nil)

// RetryingCompletions wraps a Completions client with retry on HTTP 429,
// using exponential backoff with jitter and honoring Retry-After when the
// server provides one. Only the initial request is retried for streams;
// failures mid-stream surface to the caller.
type RetryingCompletions struct {
	inner      Completions
	maxRetries int
	baseDelay  time.Duration

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// RetryOpts configures a RetryingCompletions.
type RetryOpts struct {
	MaxRetries int           // Max retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// WithRetry wraps a Completions client with rate limit retries.
func WithRetry(inner Completions, opts RetryOpts) *RetryingCompletions {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RetryingCompletions{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryingCompletions) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RetryingCompletions) SetRandFunc(fn func() float64) { r.randFunc = fn }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter applies ±25% random jitter to a duration.
func (r *RetryingCompletions) jitter(d time.Duration) time.Duration {
	// Scale factor in [0.75, 1.25).
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// CreateChatCompletion implements Completions with 429 retry.
func (r *RetryingCompletions) CreateChatCompletion(ctx context.Context, req dedalus.ChatRequest) (*dedalus.ChatResponse, error) {
	var resp *dedalus.ChatResponse

	err := r.retry(ctx, func() error {
		var err error
		resp, err = r.inner.CreateChatCompletion(ctx, req)
		return err
	})

	return resp, err
}

// StreamChatCompletion implements Completions with 429 retry on the dial.
func (r *RetryingCompletions) StreamChatCompletion(ctx context.Context, req dedalus.ChatRequest) (*dedalus.Stream, error) {
	var stream *dedalus.Stream

	err := r.retry(ctx, func() error {
		var err error
		stream, err = r.inner.StreamChatCompletion(ctx, req)
		return err
	})

	return stream, err
}

// retry runs fn, backing off and retrying while it returns *RateLimitError.
// Other errors return immediately. The last rate limit error is returned
// once retries are exhausted.
func (r *RetryingCompletions) retry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *dedalus.RateLimitError
		if !errors.As(err, &rle) {
			return err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		// Backoff: baseDelay * 2^attempt, but use Retry-After if larger. Apply jitter.
		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			rle.RetryAfter,
		))

		if err := r.sleepFunc(ctx, backoff); err != nil {
			return err
		}
	}

	return lastErr
}
