package scenarios

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lounge/pkg/protocol"
	"lounge/tests/fixtures"
)

const tick = 33 * time.Millisecond

func TestConnect_AssignsUniqueIdentities(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	a, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer a.Close()
	b, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEmpty(t, a.ID)
	assert.NotEmpty(t, b.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestJoin_RosterAndPresenceFlow(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	roster, err := alice.Join("alice")
	require.NoError(t, err)
	require.Len(t, roster.Players, 1)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer bob.Close()
	roster, err = bob.Join("bob")
	require.NoError(t, err)
	require.Len(t, roster.Players, 2, "second joiner sees the full roster")

	// Alice observes bob's arrival.
	env, err := alice.Expect(protocol.TypePlayerJoin, 2*time.Second)
	require.NoError(t, err)
	var join protocol.JoinPayload
	require.NoError(t, env.Decode(&join))
	assert.Equal(t, "bob", join.Player.Username)
	assert.Equal(t, bob.ID, join.Player.ID)
}

func TestPositionUpdate_ReachesOthersWithinOneTick(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer bob.Close()
	_, err = bob.Join("bob")
	require.NoError(t, err)

	pos := protocol.Vector3{X: 4.5, Y: 0, Z: -2}
	require.NoError(t, alice.Send(protocol.TypePlayerPosition, protocol.PositionPayload{Position: pos}))

	env, err := bob.Expect(protocol.TypePlayerBatchPosition, time.Second)
	require.NoError(t, err)
	var batch protocol.BatchPositionPayload
	require.NoError(t, env.Decode(&batch))

	found := false
	for _, u := range batch.Updates {
		if u.ID == alice.ID {
			found = true
			assert.Equal(t, pos, u.Position)
			assert.NotZero(t, u.Timestamp)
		}
	}
	assert.True(t, found, "alice's update must appear in bob's batch")
	assert.NotZero(t, batch.TickTime)
}

func TestPositionUpdate_SenderGetsNoEcho(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	require.NoError(t, alice.Send(protocol.TypePlayerPosition, protocol.PositionPayload{
		Position: protocol.Vector3{X: 1},
	}))

	// With only alice connected every batch filters down to empty, so
	// nothing is sent at all.
	require.NoError(t, alice.ExpectNone(protocol.TypePlayerBatchPosition, 200*time.Millisecond))
}

func TestPositionUpdates_CoalescePerTick(t *testing.T) {
	h := fixtures.StartServer(t, 50*time.Millisecond)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer bob.Close()
	_, err = bob.Join("bob")
	require.NoError(t, err)

	// Burst several updates inside one tick window; only the latest value
	// should ride the next batch.
	for x := 1; x <= 5; x++ {
		require.NoError(t, alice.Send(protocol.TypePlayerPosition, protocol.PositionPayload{
			Position: protocol.Vector3{X: float64(x)},
		}))
	}

	env, err := bob.Expect(protocol.TypePlayerBatchPosition, time.Second)
	require.NoError(t, err)
	var batch protocol.BatchPositionPayload
	require.NoError(t, env.Decode(&batch))
	require.Len(t, batch.Updates, 1)
	assert.Equal(t, 5.0, batch.Updates[0].Position.X)
}

func TestChat_BroadcastReachesEveryone(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer bob.Close()
	_, err = bob.Join("bob")
	require.NoError(t, err)

	require.NoError(t, alice.Send(protocol.TypeChatSend, protocol.ChatSendPayload{Content: "hello lounge"}))

	for _, tc := range []*fixtures.TestClient{alice, bob} {
		for {
			env, err := tc.Expect(protocol.TypeChatMessage, 2*time.Second)
			require.NoError(t, err)
			var msg protocol.ChatMessage
			require.NoError(t, env.Decode(&msg))
			if msg.Kind != protocol.ChatKindChat {
				continue // join announcements
			}
			assert.Equal(t, "hello lounge", msg.Content)
			assert.Equal(t, alice.ID, msg.SenderID)
			assert.Equal(t, "alice", msg.SenderName)
			break
		}
	}
}

func TestWhisper_DeliveredToTargetAndEchoedToSender(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer bob.Close()
	_, err = bob.Join("bob")
	require.NoError(t, err)

	carol, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer carol.Close()
	_, err = carol.Join("carol")
	require.NoError(t, err)

	require.NoError(t, alice.Send(protocol.TypeChatWhisper, protocol.WhisperPayload{
		Target:  "bob",
		Content: "between us",
	}))

	whisperOf := func(tc *fixtures.TestClient) protocol.ChatMessage {
		for {
			env, err := tc.Expect(protocol.TypeChatMessage, 2*time.Second)
			require.NoError(t, err)
			var msg protocol.ChatMessage
			require.NoError(t, env.Decode(&msg))
			if msg.Kind == protocol.ChatKindWhisper {
				return msg
			}
		}
	}

	got := whisperOf(bob)
	assert.Equal(t, "between us", got.Content)
	assert.Equal(t, bob.ID, got.TargetID)

	echo := whisperOf(alice)
	assert.Equal(t, got.ID, echo.ID, "sender echo carries the same message")

	// Third parties never see it; carol only holds join announcements.
	for _, env := range carol.Collect(protocol.TypeChatMessage, 200*time.Millisecond) {
		var msg protocol.ChatMessage
		require.NoError(t, env.Decode(&msg))
		assert.NotEqual(t, protocol.ChatKindWhisper, msg.Kind)
	}
}

func TestDisconnect_AnnouncedToRemainingPlayers(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()
	_, err = alice.Join("alice")
	require.NoError(t, err)

	bob, err := fixtures.Dial(h)
	require.NoError(t, err)
	_, err = bob.Join("bob")
	require.NoError(t, err)
	bobID := bob.ID

	bob.Close()

	env, err := alice.Expect(protocol.TypePlayerLeave, 2*time.Second)
	require.NoError(t, err)
	var leave protocol.LeavePayload
	require.NoError(t, env.Decode(&leave))
	assert.Equal(t, bobID, leave.ID)
	assert.Equal(t, "bob", leave.Username)

	require.Eventually(t, func() bool {
		return h.Players.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHeartbeat_PingPongRoundTrip(t *testing.T) {
	h := fixtures.StartServer(t, tick)

	alice, err := fixtures.Dial(h)
	require.NoError(t, err)
	defer alice.Close()

	require.NoError(t, alice.Send(protocol.TypeSystemPing, protocol.PingPayload{Seq: 42}))

	env, err := alice.Expect(protocol.TypeSystemPong, 2*time.Second)
	require.NoError(t, err)
	var pong protocol.PongPayload
	require.NoError(t, env.Decode(&pong))
	assert.Equal(t, 42, pong.Seq)
	assert.NotZero(t, pong.ServerTime)
}
