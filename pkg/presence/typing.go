package presence

import (
	"sync"
	"time"
)

// DefaultTypingQuiet is how long after the last keystroke the typing flag
// auto-clears.
const DefaultTypingQuiet = 3 * time.Second

// TypingFunc observes typing indicator transitions; it runs only when the
// flag actually flips, never per keystroke.
type TypingFunc func(typing bool)

// TypingTracker maintains the local typing indicator. Keystroke marks
// typing and resets the quiet timer; the indicator clears itself after the
// quiet period, or immediately via Stop (message sent, input cleared).
type TypingTracker struct {
	mu       sync.Mutex
	typing   bool
	quiet    time.Duration
	timer    *time.Timer
	onChange TypingFunc
}

func NewTypingTracker(onChange TypingFunc) *TypingTracker {
	return &TypingTracker{
		quiet:    DefaultTypingQuiet,
		onChange: onChange,
	}
}

// Keystroke records input into the chat box. The first keystroke raises
// the flag; every keystroke while typing pushes the auto-clear out.
func (t *TypingTracker) Keystroke() {
	t.mu.Lock()
	raised := !t.typing
	t.typing = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, t.autoClear)
	t.mu.Unlock()

	if raised && t.onChange != nil {
		t.onChange(true)
	}
}

// Stop clears the flag immediately, e.g. when the message is sent.
func (t *TypingTracker) Stop() {
	t.clear()
}

// Typing reports the current flag.
func (t *TypingTracker) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *TypingTracker) autoClear() {
	t.clear()
}

func (t *TypingTracker) clear() {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(false)
	}
}
