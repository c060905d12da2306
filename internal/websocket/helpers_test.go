package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"lounge/pkg/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSocketPair dials a throwaway server and returns the server side wrapped
// as a Conn plus the raw client socket for observing frames.
func newSocketPair(t *testing.T, id string) (*Conn, *websocket.Conn) {
	t.Helper()

	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	var server *websocket.Conn
	select {
	case server = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of socket pair never arrived")
	}

	conn := NewConn(id, server)
	t.Cleanup(func() { conn.Close(protocol.CloseNormal, "") })
	return conn, client
}

// readEnvelope reads and parses the next frame off a raw client socket.
func readEnvelope(t *testing.T, ws *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Parse(data)
	require.NoError(t, err)
	return env
}

// expectNoFrame asserts nothing arrives on the socket within the window.
func expectNoFrame(t *testing.T, ws *websocket.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(window)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected no frame, got one")
}
