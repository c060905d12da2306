package players

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lounge/internal/metrics"
	"lounge/pkg/protocol"
)

// TickInterval is the period of the position broadcast loop (30 Hz).
const TickInterval = 33 * time.Millisecond

// Palette cycled through for avatar colors as players join.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
}

// Player is the authoritative server-side record for one connected session.
// LastUpdate and dirty exist only here; clients see protocol.PlayerState.
type Player struct {
	State      protocol.PlayerState
	LastUpdate int64
	dirty      bool
}

// BroadcastFunc receives the dirty-player batch collected by one tick plus
// the tick's wall-clock time in epoch ms.
type BroadcastFunc func(updates []protocol.PositionUpdate, tickTime int64)

// Registry is the authoritative per-player position/status store. Exactly
// one Player exists per connected session id; removal is immediate, no
// tombstoning.
type Registry struct {
	mu      sync.RWMutex
	players map[string]*Player
	joined  int // monotonically increasing, drives color assignment
	logger  zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		players: make(map[string]*Player),
		logger:  logger.With().Str("component", "players").Logger(),
	}
}

// Add creates state for a new session with default position/rotation and
// marks it dirty so it is included in the very next tick. Re-adding an
// existing id replaces the previous state.
func (r *Registry) Add(id, username string) protocol.PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := protocol.PlayerState{
		ID:       id,
		Username: username,
		Status:   protocol.StatusActive,
		Color:    palette[r.joined%len(palette)],
	}
	r.joined++
	r.players[id] = &Player{
		State:      state,
		LastUpdate: time.Now().UnixMilli(),
		dirty:      true,
	}

	metrics.PlayersTracked.Set(float64(len(r.players)))
	r.logger.Info().Str("id", id).Str("username", username).Msg("player added")
	return state
}

// UpdatePosition mutates position/rotation in place, stamps LastUpdate and
// marks the player dirty for the next tick. Unknown ids are ignored.
func (r *Registry) UpdatePosition(id string, pos, rot protocol.Vector3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.State.Position = pos
	p.State.Rotation = rot
	p.LastUpdate = time.Now().UnixMilli()
	p.dirty = true
	return true
}

// UpdateStatus mutates the activity status. Status changes are broadcast
// through their own message type, so this does not mark the player dirty.
func (r *Registry) UpdateStatus(id, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return false
	}
	p.State.Status = status
	p.LastUpdate = time.Now().UnixMilli()
	return true
}

// Remove deletes the player immediately, returning its last state.
func (r *Registry) Remove(id string) (protocol.PlayerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if !ok {
		return protocol.PlayerState{}, false
	}
	delete(r.players, id)
	metrics.PlayersTracked.Set(float64(len(r.players)))
	r.logger.Info().Str("id", id).Msg("player removed")
	return p.State, true
}

// Get returns a copy of one player's state.
func (r *Registry) Get(id string) (protocol.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[id]
	if !ok {
		return protocol.PlayerState{}, false
	}
	return p.State, true
}

// FindByUsername resolves a player by case-insensitive username match.
func (r *Registry) FindByUsername(name string) (protocol.PlayerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.players {
		if strings.EqualFold(p.State.Username, name) {
			return p.State, true
		}
	}
	return protocol.PlayerState{}, false
}

// List returns a copy of every player's state, the full-roster payload.
func (r *Registry) List() []protocol.PlayerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]protocol.PlayerState, 0, len(r.players))
	for _, p := range r.players {
		states = append(states, p.State)
	}
	return states
}

// Count returns the number of tracked players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Run drives the fixed-rate broadcast tick until the context is cancelled.
// Each tick collects every dirty player into one batch, clears the flags,
// and invokes broadcast only when the batch is non-empty. Multiple updates
// from one player within a tick collapse to the latest value.
func (r *Registry) Run(ctx context.Context, interval time.Duration, broadcast BroadcastFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("broadcast tick started")
	for {
		select {
		case <-ticker.C:
			if updates := r.CollectDirty(); len(updates) > 0 {
				broadcast(updates, time.Now().UnixMilli())
			}
		case <-ctx.Done():
			r.logger.Info().Msg("broadcast tick stopped")
			return
		}
	}
}

// CollectDirty gathers {id, position, rotation, timestamp} for every dirty
// player and clears their flags. Clean players are never included.
func (r *Registry) CollectDirty() []protocol.PositionUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updates []protocol.PositionUpdate
	for id, p := range r.players {
		if !p.dirty {
			continue
		}
		updates = append(updates, protocol.PositionUpdate{
			ID:        id,
			Position:  p.State.Position,
			Rotation:  p.State.Rotation,
			Timestamp: p.LastUpdate,
		})
		p.dirty = false
	}
	return updates
}
