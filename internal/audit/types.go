// Package audit defines core types shared across subsystems.
package audit

import "time"

// Rule is a human-authored assertion about a webpage, checked by the judging
// oracle. Rules are immutable once issued to a scan; the scan only borrows a
// read-only snapshot.
type Rule struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PageContext is the per-render snapshot handed to the summarizer and judge.
// It lives for the duration of a scan and is discarded afterwards.
type PageContext struct {
	URL               string `json:"url"`
	VisibleText       string `json:"visible_text"`
	StructuredSignals string `json:"structured_signals"`
}

// ScanResult is the verdict recorded for a single rule.
type ScanResult struct {
	RuleID    string `json:"rule_id"`
	RuleTitle string `json:"rule_title"`
	Passed    bool   `json:"passed"`
	Reason    string `json:"reason"`
}

// Batch is a bounded sub-list of rules processed together before
// checkpointing. BatchIndex defines strict processing order.
type Batch struct {
	BatchID      string    `json:"batch_id"`
	URL          string    `json:"url"`
	Rules        []Rule    `json:"rules"`
	BatchIndex   int       `json:"batch_index"`
	TotalBatches int       `json:"total_batches"`
	Timestamp    time.Time `json:"timestamp"`
}

// Checkpoint is the persisted (remaining batches, accumulated results) pair
// that makes a half-finished scan resumable. The invariant is that the
// accumulated results plus the results still owed by the remaining batches
// cover the full rule set exactly once.
type Checkpoint struct {
	ScanID  string       `json:"scan_id"`
	URL     string       `json:"url"`
	Batches []Batch      `json:"batches"`
	Results []ScanResult `json:"results"`
}

// ScanStatus represents the lifecycle state of a scan.
type ScanStatus string

// Scan status values persisted in the scan store.
const (
	ScanStatusQueued    ScanStatus = "queued"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusSucceeded ScanStatus = "succeeded"
	ScanStatusPartial   ScanStatus = "partial"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanCounters tracks per-scan statistics.
type ScanCounters struct {
	RulesPassed      int `json:"rules_passed"`
	RulesFailed      int `json:"rules_failed"`
	BatchesCompleted int `json:"batches_completed"`
	OracleRetries    int `json:"oracle_retries"`
}

// Scan represents the metadata persisted for each submitted scan request.
type Scan struct {
	ID        string       `json:"id"`
	URL       string       `json:"url"`
	Status    ScanStatus   `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	RuleCount int          `json:"rule_count"`
	Counters  ScanCounters `json:"counters"`
}

// Summary is the aggregated, deduplicated outcome of a scan.
type Summary struct {
	Results []ScanResult `json:"results"`
	Total   int          `json:"total"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
}
