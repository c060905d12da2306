package websocket

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lounge/internal/metrics"
	"lounge/pkg/protocol"
)

// Coordinator is the hub surface the transport needs: lifecycle events and
// inbound dispatch. Defined here so the transport does not import the hub.
type Coordinator interface {
	Register(conn *Conn) error
	Unregister(conn *Conn) error
	Dispatch(conn *Conn, env *protocol.Envelope) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The lounge is served to browsers on arbitrary origins; access
	// control is not part of this layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	readLimit    = 64 * 1024
	readDeadline = 90 * time.Second
)

// Handler accepts WebSocket upgrades and owns each socket's read loop.
type Handler struct {
	coordinator Coordinator
	logger      zerolog.Logger
}

func NewHandler(coordinator Coordinator, logger zerolog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		logger:      logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP upgrades the request, assigns the session identity, and replies
// with a system:connect envelope carrying the id and server time before any
// other traffic. That id is the socket's sender identity from then on.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	conn := NewConn(uuid.NewString(), ws)

	connect, err := protocol.NewEnvelope(protocol.TypeSystemConnect, protocol.ConnectPayload{
		ID:         conn.ID(),
		ServerTime: time.Now().UnixMilli(),
	}, protocol.SenderServer)
	if err != nil || conn.Send(connect) != nil {
		h.logger.Error().Err(err).Msg("connect envelope failed")
		_ = conn.Close(protocol.CloseInternalError, "connect failed")
		return
	}

	if err := h.coordinator.Register(conn); err != nil {
		h.logger.Error().Err(err).Msg("session registration rejected")
		_ = conn.Close(protocol.CloseInternalError, "registration rejected")
		return
	}

	h.logger.Info().Str("id", conn.ID()).Str("remote", r.RemoteAddr).Msg("session connected")
	go h.readLoop(conn)
}

// readLoop consumes frames until the socket dies, then tears the session
// down exactly once.
func (h *Handler) readLoop(conn *Conn) {
	defer func() {
		if err := h.coordinator.Unregister(conn); err != nil {
			h.logger.Debug().Err(err).Str("id", conn.ID()).Msg("unregister failed")
		}
		_ = conn.Close(protocol.CloseNormal, "")
		h.logger.Info().Str("id", conn.ID()).Msg("session disconnected")
	}()

	conn.conn.SetReadLimit(readLimit)
	_ = conn.conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.conn.SetPongHandler(func(string) error {
		conn.MarkAlive()
		return conn.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		msgType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("id", conn.ID()).Msg("read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env, err := protocol.Parse(data)
		if err != nil {
			// Malformed frames get a typed error reply, never a dropped
			// connection.
			metrics.InvalidMessages.Inc()
			h.logger.Warn().Err(err).Str("id", conn.ID()).Msg("invalid envelope")
			h.sendInvalidMessage(conn)
			continue
		}

		if err := h.coordinator.Dispatch(conn, env); err != nil {
			h.logger.Warn().Err(err).Str("id", conn.ID()).Str("type", env.Type).Msg("dispatch failed")
		}
	}
}

func (h *Handler) sendInvalidMessage(conn *Conn) {
	env, err := protocol.NewEnvelope(protocol.TypeSystemError, protocol.ErrorPayload{
		Code:    protocol.ErrCodeInvalidMessage,
		Message: "message could not be parsed",
	}, protocol.SenderServer)
	if err != nil {
		return
	}
	_ = conn.Send(env)
}
