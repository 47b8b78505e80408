package audit

import (
	"fmt"
	"net/url"
	"strings"
)

// Validation boundaries enforced before any rendering or judging work.
const (
	MaxRulesPerScan   = 100
	MaxTitleLength    = 200
	MaxDescriptionLen = 5000
	MaxReasonLength   = 500
	DefaultScheme     = "https"
)

// NormalizeScanURL prefixes a missing scheme with https:// and rejects
// non-HTTP(S) schemes.
func NormalizeScanURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = DefaultScheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

// ValidateRule enforces the rule schema boundaries.
func ValidateRule(r Rule) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule id must not be empty", ErrInvalidInput)
	}
	if len(r.Title) == 0 || len(r.Title) > MaxTitleLength {
		return fmt.Errorf("%w: rule %q title must be 1..%d chars", ErrInvalidInput, r.ID, MaxTitleLength)
	}
	if len(r.Description) == 0 || len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: rule %q description must be 1..%d chars", ErrInvalidInput, r.ID, MaxDescriptionLen)
	}
	return nil
}

// ValidateScanInput checks the full scan request and returns the normalized
// URL. It fails fast: violations are rejected before any work begins.
func ValidateScanInput(rawURL string, rules []Rule) (string, error) {
	normalized, err := NormalizeScanURL(rawURL)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "", fmt.Errorf("%w: at least one rule required", ErrInvalidInput)
	}
	if len(rules) > MaxRulesPerScan {
		return "", fmt.Errorf("%w: at most %d rules per scan, got %d", ErrInvalidInput, MaxRulesPerScan, len(rules))
	}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return "", err
		}
		if _, dup := seen[r.ID]; dup {
			return "", fmt.Errorf("%w: duplicate rule id %q", ErrInvalidInput, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return normalized, nil
}
