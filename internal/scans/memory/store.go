// Package memory provides an in-memory scan store for development/testing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pagevet/pagevet/internal/audit"
)

// Store holds scan records and summaries in memory.
type Store struct {
	mu        sync.RWMutex
	scans     map[string]audit.Scan
	summaries map[string]audit.Summary
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{
		scans:     make(map[string]audit.Scan),
		summaries: make(map[string]audit.Summary),
	}
}

// CreateScan stores a new scan record.
func (s *Store) CreateScan(_ context.Context, scan audit.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s already exists", scan.ID)
	}
	s.scans[scan.ID] = scan
	return nil
}

// UpdateScanStatus updates the status, error text and counters for a scan.
func (s *Store) UpdateScanStatus(
	_ context.Context,
	scanID string,
	status audit.ScanStatus,
	errText string,
	counters audit.ScanCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("scan %s: %w", scanID, audit.ErrNotFound)
	}
	scan.Status = status
	scan.ErrorText = errText
	scan.Counters = counters
	now := time.Now().UTC()
	if status == audit.ScanStatusRunning && scan.Started == nil {
		scan.Started = pointerTime(now)
	}
	if isTerminal(status) {
		scan.Finished = pointerTime(now)
	}
	s.scans[scanID] = scan
	return nil
}

// GetScan fetches a scan by ID.
func (s *Store) GetScan(_ context.Context, scanID string) (audit.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[scanID]
	if !ok {
		return audit.Scan{}, fmt.Errorf("scan %s: %w", scanID, audit.ErrNotFound)
	}
	return scan, nil
}

// SetSummary stores the aggregated summary for a scan.
func (s *Store) SetSummary(_ context.Context, scanID string, summary audit.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scans[scanID]; !ok {
		return fmt.Errorf("scan %s: %w", scanID, audit.ErrNotFound)
	}
	s.summaries[scanID] = summary
	return nil
}

// GetSummary fetches the stored summary for a scan.
func (s *Store) GetSummary(_ context.Context, scanID string) (audit.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[scanID]
	if !ok {
		return audit.Summary{}, fmt.Errorf("summary for scan %s: %w", scanID, audit.ErrNotFound)
	}
	return summary, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status audit.ScanStatus) bool {
	switch status {
	case audit.ScanStatusSucceeded, audit.ScanStatusPartial, audit.ScanStatusFailed:
		return true
	default:
		return false
	}
}
