package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lounge/pkg/protocol"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"hello everyone", Command{Action: ActionSend, Content: "hello everyone", Handled: true}},
		{"  spaced out  ", Command{Action: ActionSend, Content: "spaced out", Handled: true}},
		{"", Command{Action: ActionNone, Handled: true}},
		{"/me waves", Command{Action: ActionEmote, Content: "waves", Handled: true}},
		{"/me does a little dance", Command{Action: ActionEmote, Content: "does a little dance", Handled: true}},
		{"/me", Command{Action: ActionLocal, Content: "Usage: /me <action>", Handled: false}},
		{"/w bob hello there", Command{Action: ActionWhisper, Target: "bob", Content: "hello there", Handled: true}},
		{"/whisper bob hi", Command{Action: ActionWhisper, Target: "bob", Content: "hi", Handled: true}},
		{"/msg bob hi", Command{Action: ActionWhisper, Target: "bob", Content: "hi", Handled: true}},
		{"/tell bob hi", Command{Action: ActionWhisper, Target: "bob", Content: "hi", Handled: true}},
		{"/w bob", Command{Action: ActionLocal, Content: "Usage: /w <player> <message>", Handled: false}},
		{"/dance", Command{Action: ActionLocal, Content: "Unknown command: /dance", Handled: false}},
		{"/W bob hi", Command{Action: ActionWhisper, Target: "bob", Content: "hi", Handled: true}},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseCommand(tc.input))
		})
	}
}

func TestParseCommand_HelpIsLocalOnly(t *testing.T) {
	cmd := ParseCommand("/help")
	assert.Equal(t, ActionLocal, cmd.Action)
	assert.True(t, cmd.Handled)
	assert.Contains(t, cmd.Content, "/me")
	assert.Contains(t, cmd.Content, "/w")
}

func TestStatusTracker_Classification(t *testing.T) {
	var changes []string
	tr := NewStatusTracker(func(s string) { changes = append(changes, s) })

	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }
	tr.Touch()
	changes = nil

	assert.Equal(t, protocol.StatusActive, tr.Check())

	now = now.Add(61 * time.Second)
	assert.Equal(t, protocol.StatusIdle, tr.Check())

	now = now.Add(240 * time.Second) // 301s since input
	assert.Equal(t, protocol.StatusAway, tr.Check())

	assert.Equal(t, []string{protocol.StatusIdle, protocol.StatusAway}, changes)
}

func TestStatusTracker_CheckFiresOnlyOnTransition(t *testing.T) {
	fired := 0
	tr := NewStatusTracker(func(string) { fired++ })

	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }
	tr.Touch()
	fired = 0

	now = now.Add(90 * time.Second)
	tr.Check()
	tr.Check()
	tr.Check()
	assert.Equal(t, 1, fired, "repeated checks in the same band stay silent")
}

func TestStatusTracker_TouchRestoresActive(t *testing.T) {
	var changes []string
	tr := NewStatusTracker(func(s string) { changes = append(changes, s) })

	now := time.Unix(1000, 0)
	tr.now = func() time.Time { return now }
	tr.Touch()
	changes = nil

	now = now.Add(90 * time.Second)
	require.Equal(t, protocol.StatusIdle, tr.Check())

	tr.Touch()
	assert.Equal(t, protocol.StatusActive, tr.Status())
	assert.Equal(t, []string{protocol.StatusIdle, protocol.StatusActive}, changes)
}

func TestTypingTracker_EdgeTransitionsOnly(t *testing.T) {
	var mu sync.Mutex
	var flips []bool
	tr := NewTypingTracker(func(v bool) {
		mu.Lock()
		flips = append(flips, v)
		mu.Unlock()
	})

	tr.Keystroke()
	tr.Keystroke()
	tr.Keystroke()
	assert.True(t, tr.Typing())

	tr.Stop()
	assert.False(t, tr.Typing())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, flips, "one raise and one clear regardless of keystroke count")
}

func TestTypingTracker_AutoClear(t *testing.T) {
	var mu sync.Mutex
	var flips []bool
	tr := NewTypingTracker(func(v bool) {
		mu.Lock()
		flips = append(flips, v)
		mu.Unlock()
	})
	tr.quiet = 20 * time.Millisecond

	tr.Keystroke()
	require.Eventually(t, func() bool {
		return !tr.Typing()
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, flips)
}

func TestTypingTracker_KeystrokeResetsQuietTimer(t *testing.T) {
	tr := NewTypingTracker(nil)
	tr.quiet = 60 * time.Millisecond

	tr.Keystroke()
	time.Sleep(40 * time.Millisecond)
	tr.Keystroke() // pushes the deadline out
	time.Sleep(40 * time.Millisecond)
	assert.True(t, tr.Typing(), "still inside the reset quiet window")

	require.Eventually(t, func() bool {
		return !tr.Typing()
	}, time.Second, 5*time.Millisecond)
}

func TestHistory_RollsPastLimit(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(protocol.ChatMessage{ID: fmt.Sprintf("m%d", i)})
	}

	msgs := h.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m4", msgs[2].ID)
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(0) // default limit
	h.Append(protocol.ChatMessage{ID: "a"})
	require.Equal(t, 1, h.Len())

	h.Clear()
	assert.Equal(t, 0, h.Len())
}
