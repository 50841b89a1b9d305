package api

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"
)

// RetryPolicy retries idempotent requests after a transport error or a
// transient status. POST is never retried, so a password verification or a
// password change reaches the server at most once per call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// allows reports whether attempt may be followed by another one. A nil
// policy never retries.
func (r *RetryPolicy) allows(method string, attempt int) bool {
	if r == nil || attempt >= r.MaxRetries {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// wait sleeps BaseDelay doubled per attempt, capped at MaxDelay, plus up to
// 20% jitter, or until ctx is done.
func (r *RetryPolicy) wait(ctx context.Context, attempt int) error {
	delay := r.BaseDelay << attempt
	if delay <= 0 || delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	if j := int64(delay) / 5; j > 0 {
		delay += time.Duration(rand.Int64N(j))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
