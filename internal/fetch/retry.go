package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// RetryPolicy implements jittered exponential backoff for transient network
// failures.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds a policy allowing maxAttempts total attempts.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    10 * time.Second,
	}
}

// ShouldRetry decides whether the error is retryable given the number of
// attempts already made.
func (p *RetryPolicy) ShouldRetry(err error, attempts int) bool {
	if err == nil {
		return false
	}
	if attempts >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff returns the wait duration before the next attempt, randomized
// within half the exponential window.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleep pauses for d, returning false if the context finished first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
