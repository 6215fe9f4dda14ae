package service

import (
	"sync"

	"minirag/internal/domain"
)

// Conversation is the process-wide transcript shared by every request. It
// only grows; the mutex keeps concurrent appends memory-safe but does not
// order turns across requests.
type Conversation struct {
	mu    sync.Mutex
	turns []domain.Message
}

// NewConversation starts a transcript with the given turns.
func NewConversation(seed ...domain.Message) *Conversation {
	return &Conversation{turns: append([]domain.Message(nil), seed...)}
}

// Append adds turns in order.
func (c *Conversation) Append(turns ...domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turns...)
}

// Snapshot returns a copy of the transcript.
func (c *Conversation) Snapshot() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
