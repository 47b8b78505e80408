package audit

import (
	"context"
	"time"
)

// Renderer fetches a page with a headless browser and extracts its context.
type Renderer interface {
	Render(ctx context.Context, url string) (PageContext, error)
	Close(ctx context.Context) error
}

// Oracle maps a judging prompt to the raw model response text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CheckpointStore persists scan checkpoints across invocations. Load returns
// ErrNotFound when no checkpoint exists for the scan.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, scanID string) (Checkpoint, error)
	Clear(ctx context.Context, scanID string) error
}

// ScanStore persists scan metadata and final results.
type ScanStore interface {
	CreateScan(ctx context.Context, scan Scan) error
	UpdateScanStatus(ctx context.Context, scanID string, status ScanStatus, errText string, counters ScanCounters) error
	GetScan(ctx context.Context, scanID string) (Scan, error)
	SetSummary(ctx context.Context, scanID string, summary Summary) error
	GetSummary(ctx context.Context, scanID string) (Summary, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes scan events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan and batch IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
