package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagevet/pagevet/internal/audit"
)

func TestScanLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateScan(ctx, audit.Scan{
		ID:     "scan-1",
		URL:    "https://example.com",
		Status: audit.ScanStatusQueued,
	}))
	require.Error(t, store.CreateScan(ctx, audit.Scan{ID: "scan-1"}))

	require.NoError(t, store.UpdateScanStatus(ctx, "scan-1",
		audit.ScanStatusRunning, "", audit.ScanCounters{}))
	scan, err := store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, scan.Started)
	require.Nil(t, scan.Finished)

	counters := audit.ScanCounters{RulesPassed: 3, RulesFailed: 1, BatchesCompleted: 1}
	require.NoError(t, store.UpdateScanStatus(ctx, "scan-1",
		audit.ScanStatusSucceeded, "", counters))
	scan, err = store.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	require.NotNil(t, scan.Finished)
	require.Equal(t, counters, scan.Counters)
}

func TestUnknownScanIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.GetScan(ctx, "nope")
	require.ErrorIs(t, err, audit.ErrNotFound)

	err = store.UpdateScanStatus(ctx, "nope", audit.ScanStatusRunning, "", audit.ScanCounters{})
	require.ErrorIs(t, err, audit.ErrNotFound)

	err = store.SetSummary(ctx, "nope", audit.Summary{})
	require.ErrorIs(t, err, audit.ErrNotFound)
}

func TestSummaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateScan(ctx, audit.Scan{ID: "scan-1"}))

	_, err := store.GetSummary(ctx, "scan-1")
	require.ErrorIs(t, err, audit.ErrNotFound)

	want := audit.Summary{
		Results: []audit.ScanResult{{RuleID: "r1", Passed: true}},
		Total:   1,
		Passed:  1,
	}
	require.NoError(t, store.SetSummary(ctx, "scan-1", want))
	got, err := store.GetSummary(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
