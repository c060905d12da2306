package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"lounge/internal/players"
	"lounge/internal/websocket"
	"lounge/pkg/protocol"
)

var testUpgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bench wires a router over real socket pairs, with the client side of
// each socket available for frame assertions.
type bench struct {
	router   *Router
	sessions *websocket.Registry
	players  *players.Registry
}

func newBench(t *testing.T) *bench {
	t.Helper()
	sessions := websocket.NewRegistry(zerolog.Nop())
	reg := players.NewRegistry(zerolog.Nop())
	return &bench{
		router:   NewRouter(sessions, reg, zerolog.Nop()),
		sessions: sessions,
		players:  reg,
	}
}

// connect adds one session and returns its server-side Conn plus the raw
// client socket for reading what the router sent it.
func (b *bench) connect(t *testing.T, id string) (*websocket.Conn, *gorilla.Conn) {
	t.Helper()

	serverSide := make(chan *gorilla.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	var server *gorilla.Conn
	select {
	case server = <-serverSide:
	case <-time.After(2 * time.Second):
		t.Fatal("server socket never arrived")
	}

	conn := websocket.NewConn(id, server)
	t.Cleanup(func() { conn.Close(protocol.CloseNormal, "") })
	require.NoError(t, b.sessions.Add(conn))
	return conn, client
}

// join runs the player:join flow for a session and consumes the two frames
// it produces on each listed client socket (roster plus announcement for
// the joiner, join event plus announcement for everyone else).
func (b *bench) join(t *testing.T, conn *websocket.Conn, username string, drain ...*gorilla.Conn) {
	t.Helper()
	b.router.Route(conn, mustEnvelope(t, protocol.TypePlayerJoin, protocol.JoinRequest{Username: username}, conn.ID()))
	for _, ws := range drain {
		readEnvelope(t, ws)
		readEnvelope(t, ws)
	}
}

func mustEnvelope(t *testing.T, msgType string, payload interface{}, sender string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, payload, sender)
	require.NoError(t, err)
	return env
}

func readEnvelope(t *testing.T, ws *gorilla.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Parse(data)
	require.NoError(t, err)
	return env
}

// readUntil reads frames until one of the wanted type arrives; anything
// else is discarded.
func readUntil(t *testing.T, ws *gorilla.Conn, msgType string) *protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, ws)
		if env.Type == msgType {
			return env
		}
	}
	t.Fatalf("no %s frame arrived", msgType)
	return nil
}

// expectNoFrame asserts silence on the socket. The timeout poisons the
// gorilla connection, so this must be the last read on it.
func expectNoFrame(t *testing.T, ws *gorilla.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(window)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err, "expected silence, got a frame")
}
