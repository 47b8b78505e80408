// Package memory provides an in-memory publisher for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one recorded publish call.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher records published payloads instead of sending them anywhere.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	nextID   int
}

// New constructs an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the in-memory log.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("mem-%d", p.nextID), nil
}

// Messages returns a copy of the recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
