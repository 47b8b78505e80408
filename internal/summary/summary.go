// Package summary reduces a rendered page context into a token-bounded
// textual block suitable for the judging oracle.
package summary

import (
	"strings"

	"github.com/pagevet/pagevet/internal/audit"
)

// Character budgets. Truncation is always from the tail and never reorders
// content, so the summarizer stays deterministic for identical input.
const (
	VisibleTextBudget = 4000
	OverallBudget     = 6000
	RuleSliceBudget   = 2500
	TruncationMarker  = "...[truncated]"
)

// Summarize concatenates the capped visible text with the structured-signals
// block and applies the overall budget. Pure and deterministic.
func Summarize(pc audit.PageContext) string {
	var b strings.Builder
	b.WriteString("PAGE: ")
	b.WriteString(pc.URL)
	b.WriteString("\n\nVISIBLE TEXT:\n")
	b.WriteString(Truncate(pc.VisibleText, VisibleTextBudget))
	if pc.StructuredSignals != "" {
		b.WriteString("\n\nPAGE SIGNALS:\n")
		b.WriteString(pc.StructuredSignals)
	}
	return Truncate(b.String(), OverallBudget)
}

// RuleSlice takes the still-smaller per-rule slice of a summary to control
// token cost on each judging call.
func RuleSlice(s string) string {
	return Truncate(s, RuleSliceBudget)
}

// Truncate hard-caps s at limit characters, replacing the tail with the
// truncation marker when it does not fit.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= len(TruncationMarker) {
		return s[:limit]
	}
	return s[:limit-len(TruncationMarker)] + TruncationMarker
}
