// Package memory contains the in-memory notification publisher used when no
// Pub/Sub topic is configured.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultLimit is the number of notifications a server-wired Publisher retains.
const DefaultLimit = 256

// Publisher keeps published notifications for inspection. A positive limit
// keeps only the most recent publishes.
type Publisher struct {
	mu       sync.RWMutex
	limit    int
	seq      int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call. Data is the JSON encoding of
// the payload, matching what a broker would receive.
type PublishedMessage struct {
	Topic   string
	Payload any
	Data    []byte
}

// New returns a memory Publisher that retains every message.
func New() *Publisher {
	return &Publisher{}
}

// NewWithLimit returns a memory Publisher that retains at most limit messages,
// dropping the oldest first. A limit <= 0 retains everything.
func NewWithLimit(limit int) *Publisher {
	return &Publisher{limit: limit}
}

// Publish encodes and records the message and returns a pseudo ID. IDs keep
// increasing after older messages are dropped.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	if p.limit > 0 && len(p.messages) > p.limit {
		drop := len(p.messages) - p.limit
		clear(p.messages[:drop])
		p.messages = append(p.messages[:0], p.messages[drop:]...)
	}
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Messages returns the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
