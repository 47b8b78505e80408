package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validEvent(kind Kind) Event {
	return Event{
		Kind:         kind,
		ScanID:       "scan-1",
		URL:          "https://example.com",
		TS:           time.Now().UTC(),
		TotalBatches: 2,
	}
}

func TestHubDeliversToAllSinks(t *testing.T) {
	first := NewMemorySink()
	second := NewMemorySink()
	h := NewHub(Config{}, first, second)

	h.Emit(validEvent(KindScanStarted))
	h.Emit(validEvent(KindBatchCompleted))
	require.NoError(t, h.Close(context.Background()))

	require.Len(t, first.Events(), 2)
	require.Len(t, second.Events(), 2)
	require.Equal(t, KindScanStarted, first.Events()[0].Kind)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	sink := NewMemorySink()
	h := NewHub(Config{}, sink)

	// Missing scan id, then an unknown kind.
	h.Emit(Event{Kind: KindScanStarted})
	h.Emit(Event{ScanID: "s", TS: time.Now(), Kind: "BOGUS"})
	require.NoError(t, h.Close(context.Background()))

	require.Empty(t, sink.Events())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	sink := NewMemorySink()
	h := NewHub(Config{}, sink)
	require.NoError(t, h.Close(context.Background()))

	h.Emit(validEvent(KindScanFinished))
	require.Empty(t, sink.Events())
}

func TestHubNilSafe(t *testing.T) {
	var h *Hub
	h.Emit(validEvent(KindScanStarted))
	require.NoError(t, h.Close(context.Background()))
}

type failingSink struct{ calls int }

func (s *failingSink) Handle(context.Context, Event) error {
	s.calls++
	return errors.New("sink unavailable")
}

func (s *failingSink) Close(context.Context) error { return nil }

func TestHubSurvivesSinkErrors(t *testing.T) {
	bad := &failingSink{}
	good := NewMemorySink()
	h := NewHub(Config{}, bad, good)

	h.Emit(validEvent(KindScanStarted))
	require.NoError(t, h.Close(context.Background()))

	require.Equal(t, 1, bad.calls)
	require.Len(t, good.Events(), 1)
}

func TestEventValidate(t *testing.T) {
	require.NoError(t, validEvent(KindScanFailed).Validate())

	evt := validEvent(KindBatchCompleted)
	evt.TotalBatches = 0
	require.Error(t, evt.Validate())

	evt = validEvent(KindScanStarted)
	evt.TS = time.Time{}
	require.Error(t, evt.Validate())
}
