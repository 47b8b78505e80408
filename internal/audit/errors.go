package audit

import "errors"

// Error taxonomy for the scan pipeline. Input validation fails the whole
// scan; everything else degrades to a per-rule or per-batch result.
var (
	// ErrInvalidInput marks bad URLs or rule schemas, rejected before any
	// rendering or judging work begins.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidURL marks a URL whose scheme is not http or https.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNavigation means every navigation strategy was exhausted.
	ErrNavigation = errors.New("navigation failed")

	// ErrMalformedResponse means the oracle output could not be parsed into
	// a verdict.
	ErrMalformedResponse = errors.New("malformed oracle response")

	// ErrRateLimited is retried with backoff up to a cap.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuotaExceeded is not retried.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrCreditsExhausted is not retried.
	ErrCreditsExhausted = errors.New("credits exhausted")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
