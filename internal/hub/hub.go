package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"lounge/internal/router"
	"lounge/internal/websocket"
	"lounge/pkg/protocol"
)

// Hub is the single coordination loop between the transport layer and the
// router. Session registration, teardown, and message routing all execute
// on one goroutine, so the session map and player map are only ever mutated
// from a single place and teardown removes both in the same step.
type Hub struct {
	messageCh    chan *inbound
	registerCh   chan *websocket.Conn
	unregisterCh chan *websocket.Conn
	shutdownCh   chan struct{}

	sessions *websocket.Registry
	router   *router.Router
	logger   zerolog.Logger

	running bool
	mu      sync.RWMutex
}

type inbound struct {
	conn *websocket.Conn
	env  *protocol.Envelope
}

const (
	messageBuffer   = 1024
	lifecycleBuffer = 64
)

func NewHub(sessions *websocket.Registry, r *router.Router, logger zerolog.Logger) *Hub {
	return &Hub{
		messageCh:    make(chan *inbound, messageBuffer),
		registerCh:   make(chan *websocket.Conn, lifecycleBuffer),
		unregisterCh: make(chan *websocket.Conn, lifecycleBuffer),
		shutdownCh:   make(chan struct{}),
		sessions:     sessions,
		router:       r,
		logger:       logger.With().Str("component", "hub").Logger(),
	}
}

// Start launches the processing loop.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.logger.Info().Msg("hub started")
	go h.run(ctx)
	return nil
}

// Stop shuts the loop down. Queued events are dropped, not drained; by the
// time Stop runs the transport has already stopped accepting sockets.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}
	return nil
}

// Register queues a freshly accepted session.
func (h *Hub) Register(conn *websocket.Conn) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.registerCh <- conn:
		return nil
	default:
		return ErrChannelFull
	}
}

// Unregister queues session teardown.
func (h *Hub) Unregister(conn *websocket.Conn) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.unregisterCh <- conn:
		return nil
	default:
		return ErrChannelFull
	}
}

// Dispatch queues an inbound envelope for routing.
func (h *Hub) Dispatch(conn *websocket.Conn, env *protocol.Envelope) error {
	if !h.isRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.messageCh <- &inbound{conn: conn, env: env}:
		return nil
	default:
		return ErrChannelFull
	}
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context) {
	defer h.logger.Info().Msg("hub stopped")

	for {
		select {
		case in := <-h.messageCh:
			h.router.Route(in.conn, in.env)

		case conn := <-h.registerCh:
			if conn == nil {
				continue
			}
			if err := h.sessions.Add(conn); err != nil {
				h.logger.Error().Err(err).Msg("session registration failed")
				_ = conn.Close(protocol.CloseInternalError, "registration failed")
				continue
			}
			h.logger.Info().Str("id", conn.ID()).Msg("session registered")

		case conn := <-h.unregisterCh:
			if conn == nil {
				continue
			}
			// Session and player state leave together; a half-removed
			// player would keep showing up in tick batches.
			h.sessions.Remove(conn)
			h.router.Disconnected(conn)
			h.logger.Info().Str("id", conn.ID()).Msg("session unregistered")

		case <-h.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
