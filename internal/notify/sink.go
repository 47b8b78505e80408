package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
)

// Sink receives lifecycle events from the Hub.
type Sink interface {
	Handle(ctx context.Context, evt Event) error
	Close(ctx context.Context) error
}

// LogSink emits structured logs for each event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Handle logs the event with structured fields.
func (s *LogSink) Handle(_ context.Context, evt Event) error {
	s.logger.Info("scan event",
		zap.String("kind", string(evt.Kind)),
		zap.String("scan_id", evt.ScanID),
		zap.String("url", evt.URL),
		zap.Int("batch_index", evt.BatchIndex),
		zap.Int("total_batches", evt.TotalBatches),
		zap.Int("rules_passed", evt.RulesPassed),
		zap.Int("rules_failed", evt.RulesFailed),
		zap.Duration("dur", evt.Dur),
		zap.String("note", evt.Note),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

// PublishSink forwards events to a message publisher, one message per event.
type PublishSink struct {
	publisher audit.Publisher
	topic     string
}

// NewPublishSink wires a publisher and topic to the sink interface.
func NewPublishSink(publisher audit.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic}
}

// Handle publishes the event as a JSON payload.
func (s *PublishSink) Handle(ctx context.Context, evt Event) error {
	_, err := s.publisher.Publish(ctx, s.topic, evt)
	return err
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

// MemorySink records events for assertions in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink constructs an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Handle appends the event to the in-memory log.
func (s *MemorySink) Handle(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
