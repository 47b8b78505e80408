// Package memory keeps scan checkpoints in-memory for development/testing.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagevet/pagevet/internal/audit"
)

// Store provides an in-memory checkpoint store.
type Store struct {
	mu          sync.RWMutex
	checkpoints map[string]audit.Checkpoint
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{checkpoints: make(map[string]audit.Checkpoint)}
}

// Save upserts the checkpoint for its scan.
func (s *Store) Save(_ context.Context, cp audit.Checkpoint) error {
	if cp.ScanID == "" {
		return fmt.Errorf("%w: checkpoint scan id is required", audit.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.ScanID] = clone(cp)
	return nil
}

// Load fetches the checkpoint for a scan.
func (s *Store) Load(_ context.Context, scanID string) (audit.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[scanID]
	if !ok {
		return audit.Checkpoint{}, fmt.Errorf("checkpoint for scan %s: %w", scanID, audit.ErrNotFound)
	}
	return clone(cp), nil
}

// Clear removes the checkpoint for a scan. Clearing a missing checkpoint is
// not an error.
func (s *Store) Clear(_ context.Context, scanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, scanID)
	return nil
}

func clone(cp audit.Checkpoint) audit.Checkpoint {
	out := cp
	out.Batches = append([]audit.Batch(nil), cp.Batches...)
	out.Results = append([]audit.ScanResult(nil), cp.Results...)
	return out
}
