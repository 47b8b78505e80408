// Package notify carries best-effort scan lifecycle events. Emission never
// blocks the scan and a lost event never fails it.
package notify

import (
	"errors"
	"fmt"
	"time"
)

// Kind denotes the lifecycle milestone an Event represents.
type Kind string

// Supported event kinds.
const (
	KindScanStarted    Kind = "SCAN_STARTED"
	KindBatchCompleted Kind = "BATCH_COMPLETED"
	KindScanFinished   Kind = "SCAN_FINISHED"
	KindScanFailed     Kind = "SCAN_FAILED"
)

// Event captures a single scan milestone.
type Event struct {
	Kind         Kind          `json:"kind"`
	ScanID       string        `json:"scan_id"`
	URL          string        `json:"url"`
	TS           time.Time     `json:"ts"`
	BatchIndex   int           `json:"batch_index,omitempty"`
	TotalBatches int           `json:"total_batches,omitempty"`
	RulesPassed  int           `json:"rules_passed,omitempty"`
	RulesFailed  int           `json:"rules_failed,omitempty"`
	Dur          time.Duration `json:"dur,omitempty"`
	Note         string        `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.ScanID == "" {
		return errors.New("scan id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindScanStarted, KindScanFinished, KindScanFailed:
	case KindBatchCompleted:
		if e.TotalBatches <= 0 {
			return errors.New("batch completed requires total batches")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
