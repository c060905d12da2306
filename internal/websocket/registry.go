package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lounge/internal/metrics"
	"lounge/pkg/protocol"
)

// Registry tracks every connected session by its assigned id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Conn
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Conn),
		logger:   logger.With().Str("component", "sessions").Logger(),
	}
}

// Add registers a session under its assigned id.
func (r *Registry) Add(conn *Conn) error {
	if conn == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn.ID()] = conn
	metrics.SessionsConnected.Inc()
	return nil
}

// Remove deletes a session. Idempotent, and a stale wrapper cannot remove a
// newer session registered under the same id.
func (r *Registry) Remove(conn *Conn) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[conn.ID()]; ok && current == conn {
		delete(r.sessions, conn.ID())
		metrics.SessionsConnected.Dec()
	}
}

// Get returns the session for an id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.sessions[id]
	return conn, ok
}

// List returns a snapshot of all sessions.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.sessions))
	for _, c := range r.sessions {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SendTo delivers an envelope to one session.
func (r *Registry) SendTo(id string, env *protocol.Envelope) error {
	conn, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return conn.Send(env)
}

// Broadcast serializes the envelope once and fans it out to every session
// except exceptID (pass "" to include everyone). Per-socket failures are
// logged and skipped so one slow client cannot block the rest.
func (r *Registry) Broadcast(env *protocol.Envelope, exceptID string) {
	data, err := env.Serialize()
	if err != nil {
		r.logger.Error().Err(err).Str("type", env.Type).Msg("broadcast encode failed")
		return
	}
	for _, conn := range r.List() {
		if conn.ID() == exceptID {
			continue
		}
		if err := conn.SendRaw(data); err != nil {
			r.logger.Debug().Err(err).Str("id", conn.ID()).Str("type", env.Type).Msg("broadcast send failed")
		}
	}
}

// RunSweeper enforces liveness until the context is cancelled. Each sweep
// terminates every session that has not ponged since the previous sweep,
// then clears the alive flag on the survivors and pings them. onEvict runs
// for each terminated session so the caller can retire its player state in
// the same step.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration, onEvict func(conn *Conn)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("liveness sweeper started")
	for {
		select {
		case <-ticker.C:
			r.sweep(onEvict)
		case <-ctx.Done():
			r.logger.Info().Msg("liveness sweeper stopped")
			return
		}
	}
}

func (r *Registry) sweep(onEvict func(conn *Conn)) {
	for _, conn := range r.List() {
		if !conn.IsAlive() {
			r.logger.Warn().Str("id", conn.ID()).Msg("session unresponsive, terminating")
			metrics.SessionsEvicted.Inc()
			onEvict(conn)
			_ = conn.Close(protocol.CloseGoingAway, "liveness timeout")
			continue
		}
		conn.ClearAlive()
		if err := conn.Ping(); err != nil {
			r.logger.Debug().Err(err).Str("id", conn.ID()).Msg("liveness ping failed")
		}
	}
}
