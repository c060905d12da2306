package fixtures

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lounge/pkg/protocol"
)

// TestClient is a raw lounge client for scenario tests: it dials the
// harness, records the assigned session id, and collects every inbound
// envelope for assertion.
type TestClient struct {
	ID string

	conn     *websocket.Conn
	inbox    chan *protocol.Envelope
	done     chan struct{}
	closeOne sync.Once
}

// Dial connects to the harness and waits for the identity assignment.
func Dial(h *Harness) (*TestClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", h.URL, err)
	}

	tc := &TestClient{
		conn:  conn,
		inbox: make(chan *protocol.Envelope, 256),
		done:  make(chan struct{}),
	}
	go tc.readLoop()

	env, err := tc.Expect(protocol.TypeSystemConnect, 2*time.Second)
	if err != nil {
		tc.Close()
		return nil, err
	}
	var connect protocol.ConnectPayload
	if err := env.Decode(&connect); err != nil {
		tc.Close()
		return nil, fmt.Errorf("connect payload: %w", err)
	}
	tc.ID = connect.ID
	return tc, nil
}

// Join sends player:join and waits for the roster reply.
func (tc *TestClient) Join(username string) (protocol.FullStatePayload, error) {
	var roster protocol.FullStatePayload
	if err := tc.Send(protocol.TypePlayerJoin, protocol.JoinRequest{Username: username}); err != nil {
		return roster, err
	}
	env, err := tc.Expect(protocol.TypePlayerState, 2*time.Second)
	if err != nil {
		return roster, err
	}
	return roster, env.Decode(&roster)
}

// Send publishes one envelope with this client's session id as sender.
func (tc *TestClient) Send(msgType string, payload interface{}) error {
	env, err := protocol.NewEnvelope(msgType, payload, tc.ID)
	if err != nil {
		return err
	}
	data, err := env.Serialize()
	if err != nil {
		return err
	}
	return tc.conn.WriteMessage(websocket.TextMessage, data)
}

// SendRaw writes a frame verbatim, for malformed-input scenarios.
func (tc *TestClient) SendRaw(data []byte) error {
	return tc.conn.WriteMessage(websocket.TextMessage, data)
}

// Expect consumes inbound envelopes until one of the wanted type arrives;
// envelopes of other types are discarded.
func (tc *TestClient) Expect(msgType string, timeout time.Duration) (*protocol.Envelope, error) {
	deadline := time.After(timeout)
	for {
		select {
		case env := <-tc.inbox:
			if env.Type == msgType {
				return env, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("no %s envelope within %v", msgType, timeout)
		}
	}
}

// ExpectNone asserts no envelope of the given type arrives in the window.
func (tc *TestClient) ExpectNone(msgType string, window time.Duration) error {
	deadline := time.After(window)
	for {
		select {
		case env := <-tc.inbox:
			if env.Type == msgType {
				return fmt.Errorf("unexpected %s envelope", msgType)
			}
		case <-deadline:
			return nil
		}
	}
}

// Collect gathers every envelope of one type for the duration of the window.
func (tc *TestClient) Collect(msgType string, window time.Duration) []*protocol.Envelope {
	var got []*protocol.Envelope
	deadline := time.After(window)
	for {
		select {
		case env := <-tc.inbox:
			if env.Type == msgType {
				got = append(got, env)
			}
		case <-deadline:
			return got
		}
	}
}

// Close tears the client down.
func (tc *TestClient) Close() {
	tc.closeOne.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = tc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = tc.conn.Close()
		close(tc.done)
	})
}

func (tc *TestClient) readLoop() {
	for {
		_, data, err := tc.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Parse(data)
		if err != nil {
			continue
		}
		select {
		case tc.inbox <- env:
		case <-tc.done:
			return
		}
	}
}
