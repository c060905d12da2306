// Package presence carries the client-local social state around the
// position feed: idle/away status derivation, the typing indicator, chat
// command parsing and a bounded chat history.
package presence

import (
	"context"
	"sync"
	"time"

	"lounge/pkg/protocol"
)

const (
	// DefaultCheckInterval is how often the status tracker reclassifies.
	DefaultCheckInterval = 5 * time.Second

	// DefaultIdleAfter is the inactivity span before idle.
	DefaultIdleAfter = 60 * time.Second

	// DefaultAwayAfter is the inactivity span before away.
	DefaultAwayAfter = 300 * time.Second
)

// StatusFunc observes a derived status change for the local player.
type StatusFunc func(status string)

// StatusTracker derives the local player's status from input activity.
// Touch records activity; a periodic check classifies the elapsed quiet
// span and fires the callback only when the classification moves.
type StatusTracker struct {
	mu        sync.Mutex
	lastInput time.Time
	status    string

	idleAfter time.Duration
	awayAfter time.Duration
	onChange  StatusFunc

	now func() time.Time
}

func NewStatusTracker(onChange StatusFunc) *StatusTracker {
	t := &StatusTracker{
		status:    protocol.StatusActive,
		idleAfter: DefaultIdleAfter,
		awayAfter: DefaultAwayAfter,
		onChange:  onChange,
		now:       time.Now,
	}
	t.lastInput = t.now()
	return t
}

// Touch records input activity. Activity that ends an idle or away spell
// flips the status back to active immediately, without waiting for the
// next periodic check.
func (t *StatusTracker) Touch() {
	t.mu.Lock()
	t.lastInput = t.now()
	changed := t.setLocked(protocol.StatusActive)
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(protocol.StatusActive)
	}
}

// Check reclassifies based on time since the last input and reports the
// current status. The callback fires only on a transition.
func (t *StatusTracker) Check() string {
	t.mu.Lock()
	elapsed := t.now().Sub(t.lastInput)
	next := classify(elapsed, t.idleAfter, t.awayAfter)
	changed := t.setLocked(next)
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(next)
	}
	return next
}

// Status returns the current classification without reclassifying.
func (t *StatusTracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Run checks periodically until the context ends.
func (t *StatusTracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Check()
		}
	}
}

func (t *StatusTracker) setLocked(next string) bool {
	if t.status == next {
		return false
	}
	t.status = next
	return true
}

func classify(elapsed, idleAfter, awayAfter time.Duration) string {
	switch {
	case elapsed >= awayAfter:
		return protocol.StatusAway
	case elapsed >= idleAfter:
		return protocol.StatusIdle
	default:
		return protocol.StatusActive
	}
}
