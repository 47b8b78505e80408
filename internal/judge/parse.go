package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pagevet/pagevet/internal/audit"
)

// Verdict is the strict schema the oracle must return.
type Verdict struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// ExtractVerdict locates the first balanced JSON object in the raw oracle
// output, tolerating surrounding prose and markdown code fences, and
// validates it against the verdict schema.
func ExtractVerdict(raw string) (Verdict, error) {
	obj := firstJSONObject(stripFences(raw))
	if obj == "" {
		return Verdict{}, fmt.Errorf("%w: no JSON object in %q", audit.ErrMalformedResponse, clip(raw, 120))
	}
	var payload struct {
		Passed *bool   `json:"passed"`
		Reason *string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", audit.ErrMalformedResponse, err)
	}
	if payload.Passed == nil || payload.Reason == nil {
		return Verdict{}, fmt.Errorf("%w: missing passed or reason field", audit.ErrMalformedResponse)
	}
	return Verdict{Passed: *payload.Passed, Reason: *payload.Reason}, nil
}

// stripFences removes a wrapping markdown code fence. Models often wrap JSON
// in ```json ... ``` blocks.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstJSONObject returns the first balanced {...} span, honoring string
// literals and escapes, or "" when none exists.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
