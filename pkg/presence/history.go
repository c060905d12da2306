package presence

import (
	"sync"

	"lounge/pkg/protocol"
)

// DefaultHistoryLimit bounds the rolling chat history.
const DefaultHistoryLimit = 100

// History is a bounded rolling log of chat messages; the oldest entry is
// dropped when a new one exceeds the limit.
type History struct {
	mu      sync.Mutex
	entries []protocol.ChatMessage
	limit   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{
		entries: make([]protocol.ChatMessage, 0, limit),
		limit:   limit,
	}
}

// Append records a message, evicting the oldest past the limit.
func (h *History) Append(msg protocol.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) >= h.limit {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, msg)
}

// Messages returns a copy of the history, oldest first.
func (h *History) Messages() []protocol.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.ChatMessage, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the number of retained messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear empties the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}
