// Package memory keeps published alerts in process. It is the default alert
// transport for local runs and the one tests inspect.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultHistory is how many messages New retains.
const DefaultHistory = 1000

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("memory publisher closed")

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher records payloads, keeping the most recent history entries.
type Publisher struct {
	mu      sync.RWMutex
	history int
	seq     int
	msgs    []PublishedMessage
	closed  bool
}

// New returns a Publisher retaining DefaultHistory messages.
func New() *Publisher {
	return NewWithHistory(DefaultHistory)
}

// NewWithHistory returns a Publisher retaining at most n messages; n <= 0
// keeps everything.
func NewWithHistory(n int) *Publisher {
	return &Publisher{history: n}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("publish to %s: %w", topic, ErrClosed)
	}
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.msgs = append(p.msgs, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	if p.history > 0 && len(p.msgs) > p.history {
		p.msgs = append(p.msgs[:0:0], p.msgs[len(p.msgs)-p.history:]...)
	}
	return id, nil
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.msgs...)
}

// Topic returns the retained messages published to topic.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []PublishedMessage
	for _, msg := range p.msgs {
		if msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

// Close stops accepting messages. Retained messages stay readable.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
