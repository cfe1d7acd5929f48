package mirror

import (
	"context"
	"sync"
	"time"
)

// RetryPolicy controls the fetcher's exponential backoff. MaxRetries counts
// retries, so a request is attempted at most MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

var (
	defaultPolicyMu sync.RWMutex
	defaultPolicy   = RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}
)

// DefaultRetryPolicy returns the process-wide policy new clients start from.
func DefaultRetryPolicy() RetryPolicy {
	defaultPolicyMu.RLock()
	defer defaultPolicyMu.RUnlock()
	return defaultPolicy
}

// SetDefaultRetryPolicy replaces the process-wide policy. Existing clients
// keep the policy they were built with.
func SetDefaultRetryPolicy(p RetryPolicy) {
	defaultPolicyMu.Lock()
	defer defaultPolicyMu.Unlock()
	defaultPolicy = p.normalized()
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.MaxDelay > 0 && p.InitialDelay > p.MaxDelay {
		p.InitialDelay = p.MaxDelay
	}
	return p
}

// nextDelay multiplies d by the backoff factor, capped at MaxDelay.
func (p RetryPolicy) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * p.BackoffFactor)
	if p.MaxDelay > 0 && next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
