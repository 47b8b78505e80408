// Package aggregate folds per-batch verdicts into the final scan summary.
package aggregate

import "github.com/pagevet/pagevet/internal/audit"

// Dedup removes duplicate verdicts for the same rule, keeping the first
// occurrence. Batch results arrive in processing order, so after a resume
// the checkpointed verdict wins over any re-run of the same rule.
func Dedup(results []audit.ScanResult) []audit.ScanResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]audit.ScanResult, 0, len(results))
	for _, r := range results {
		if _, dup := seen[r.RuleID]; dup {
			continue
		}
		seen[r.RuleID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Build produces the summary for a completed scan. It is idempotent:
// aggregating an already-deduplicated slice yields the same summary.
func Build(results []audit.ScanResult) audit.Summary {
	deduped := Dedup(results)
	s := audit.Summary{
		Results: deduped,
		Total:   len(deduped),
	}
	for _, r := range deduped {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}
