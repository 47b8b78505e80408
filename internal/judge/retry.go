package judge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pagevet/pagevet/internal/audit"
)

// RetryPolicy bounds retries on rate-limit errors. Non-rate-limit errors
// are never retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used in production: up to 4
// attempts, exponential backoff from 1s doubling to a 30s ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the wait before retry number attempt (zero-based). The
// sequence is non-decreasing and capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// RateLimitError carries an optional explicit retry-after hint from the
// provider. It matches audit.ErrRateLimited under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "oracle rate limited"
	}
	return fmt.Sprintf("oracle rate limited: %s", e.Message)
}

// Is reports the audit sentinel so callers classify without type checks.
func (e *RateLimitError) Is(target error) bool {
	return target == audit.ErrRateLimited
}

var rateLimitPhrases = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"429",
	"throttl",
}

// IsRateLimit detects rate-limit signals by sentinel or by known phrases in
// the error text.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, audit.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// Matches "retry after 2.5s", "retry in 30 seconds", "retry-after: 7".
var retryAfterPattern = regexp.MustCompile(`(?i)retry[ -]?(?:after|in)[:\s]*([0-9]+(?:\.[0-9]+)?)\s*(?:s\b|sec\b|second)?`)

// RetryAfterHint extracts an explicit retry-after duration from the error,
// converted to milliseconds and rounded up.
func RetryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	m := retryAfterPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	seconds, perr := strconv.ParseFloat(m[1], 64)
	if perr != nil || seconds <= 0 {
		return 0, false
	}
	ms := math.Ceil(seconds * 1000)
	return time.Duration(ms) * time.Millisecond, true
}

// sleepCtx waits for d or until the context finishes.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
