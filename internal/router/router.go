package router

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"lounge/internal/metrics"
	"lounge/internal/players"
	"lounge/internal/websocket"
	"lounge/pkg/protocol"
)

// Router classifies inbound envelopes by type prefix and dispatches them to
// system, player, or chat handling. Unrecognized application-level types
// fall through to a verbatim broadcast to all other sessions, which keeps
// the protocol extensible without server changes.
type Router struct {
	sessions *websocket.Registry
	players  *players.Registry
	logger   zerolog.Logger
}

func NewRouter(sessions *websocket.Registry, reg *players.Registry, logger zerolog.Logger) *Router {
	return &Router{
		sessions: sessions,
		players:  reg,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Route handles one inbound envelope from an established session. The
// sender identity is always the id assigned at connect time; any id the
// payload claims is overwritten here before routing.
func (r *Router) Route(conn *websocket.Conn, env *protocol.Envelope) {
	env.SenderID = conn.ID()
	metrics.MessagesReceived.WithLabelValues(protocol.Domain(env.Type)).Inc()

	switch protocol.Domain(env.Type) {
	case protocol.DomainSystem:
		r.handleSystem(conn, env)
	case protocol.DomainPlayer:
		r.handlePlayer(conn, env)
	case protocol.DomainChat:
		r.handleChat(conn, env)
	default:
		r.sessions.Broadcast(env, conn.ID())
	}
}

func (r *Router) handleSystem(conn *websocket.Conn, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSystemPing:
		var ping protocol.PingPayload
		if err := env.Decode(&ping); err != nil {
			r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed ping payload")
			return
		}
		conn.SetLastPingSeq(ping.Seq)
		r.reply(conn, protocol.TypeSystemPong, protocol.PongPayload{
			Seq:        ping.Seq,
			ServerTime: time.Now().UnixMilli(),
		})
	case protocol.TypeSystemDisconnect:
		_ = conn.Close(protocol.CloseNormal, "client disconnect")
	default:
		// Remaining system types are server-originated; ignore echoes.
	}
}

func (r *Router) handlePlayer(conn *websocket.Conn, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypePlayerJoin:
		r.handleJoin(conn, env)

	case protocol.TypePlayerPosition:
		var pos protocol.PositionPayload
		if err := env.Decode(&pos); err != nil {
			r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed position payload")
			return
		}
		r.players.UpdatePosition(conn.ID(), pos.Position, pos.Rotation)

	case protocol.TypePlayerStatusChange:
		var status protocol.StatusChangePayload
		if err := env.Decode(&status); err != nil {
			r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed status payload")
			return
		}
		r.players.UpdateStatus(conn.ID(), status.Status)
		r.sessions.Broadcast(env, conn.ID())

	case protocol.TypePlayerTyping:
		// Typing is transient; relay without touching player state.
		r.sessions.Broadcast(env, conn.ID())

	case protocol.TypePlayerRequestFullState:
		r.reply(conn, protocol.TypePlayerState, protocol.FullStatePayload{
			Players: r.players.List(),
		})

	default:
		// player:state, player:batch_position and player:leave are
		// server-originated; a client echoing them is dropped.
		r.logger.Debug().Str("type", env.Type).Str("sender", conn.ID()).Msg("dropped server-origin player type")
	}
}

func (r *Router) handleJoin(conn *websocket.Conn, env *protocol.Envelope) {
	var req protocol.JoinRequest
	if err := env.Decode(&req); err != nil {
		r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed join payload")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = "guest-" + conn.ID()[:8]
	}
	conn.SetUsername(username)
	state := r.players.Add(conn.ID(), username)

	// Roster to the joiner, announcement to everyone else.
	r.reply(conn, protocol.TypePlayerState, protocol.FullStatePayload{Players: r.players.List()})
	if join, err := protocol.NewEnvelope(protocol.TypePlayerJoin, protocol.JoinPayload{Player: state}, protocol.SenderServer); err == nil {
		r.sessions.Broadcast(join, conn.ID())
	}
	r.broadcastChatSystem(username + " joined the lounge")
}

func (r *Router) handleChat(conn *websocket.Conn, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChatSend:
		var send protocol.ChatSendPayload
		if err := env.Decode(&send); err != nil {
			r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed chat payload")
			return
		}
		content := strings.TrimSpace(send.Content)
		if content == "" {
			return
		}
		msg := r.newChatMessage(conn, content, protocol.ChatKindChat)
		metrics.ChatMessages.WithLabelValues(protocol.ChatKindChat).Inc()
		if out, err := protocol.NewEnvelope(protocol.TypeChatMessage, msg, protocol.SenderServer); err == nil {
			r.sessions.Broadcast(out, "")
		}

	case protocol.TypeChatEmote:
		var emote protocol.EmotePayload
		if err := env.Decode(&emote); err != nil {
			r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed emote payload")
			return
		}
		action := strings.TrimSpace(emote.Action)
		if action == "" {
			return
		}
		msg := r.newChatMessage(conn, action, protocol.ChatKindEmote)
		metrics.ChatMessages.WithLabelValues(protocol.ChatKindEmote).Inc()
		if out, err := protocol.NewEnvelope(protocol.TypeChatMessage, msg, protocol.SenderServer); err == nil {
			r.sessions.Broadcast(out, "")
		}

	case protocol.TypeChatWhisper:
		r.handleWhisper(conn, env)

	default:
		r.sessions.Broadcast(env, conn.ID())
	}
}

// handleWhisper resolves the target by session id first, then by
// case-insensitive username. A miss produces exactly one PLAYER_NOT_FOUND
// error to the sender and nothing to anyone else. On a hit the message goes
// to the target and a duplicate goes back to the sender so the chat UI can
// render the outgoing whisper.
func (r *Router) handleWhisper(conn *websocket.Conn, env *protocol.Envelope) {
	var whisper protocol.WhisperPayload
	if err := env.Decode(&whisper); err != nil {
		r.sendSystemError(conn, protocol.ErrCodeInvalidMessage, "malformed whisper payload")
		return
	}

	target, ok := r.players.Get(whisper.Target)
	if !ok {
		target, ok = r.players.FindByUsername(whisper.Target)
	}
	if !ok {
		r.sendChatError(conn, protocol.ErrCodePlayerNotFound, "player not found: "+whisper.Target)
		return
	}

	msg := r.newChatMessage(conn, whisper.Content, protocol.ChatKindWhisper)
	msg.TargetID = target.ID
	msg.TargetName = target.Username
	metrics.ChatMessages.WithLabelValues(protocol.ChatKindWhisper).Inc()

	out, err := protocol.NewEnvelope(protocol.TypeChatMessage, msg, protocol.SenderServer)
	if err != nil {
		return
	}
	if err := r.sessions.SendTo(target.ID, out); err != nil {
		r.logger.Debug().Err(err).Str("target", target.ID).Msg("whisper delivery failed")
	}
	if err := conn.Send(out); err != nil {
		r.logger.Debug().Err(err).Str("sender", conn.ID()).Msg("whisper echo failed")
	}
}

// BroadcastPositions fans one tick's dirty batch out to every session,
// excluding each recipient's own entry from the copy it receives. A
// recipient whose filtered batch is empty gets nothing that tick.
func (r *Router) BroadcastPositions(updates []protocol.PositionUpdate, tickTime int64) {
	metrics.BroadcastTicks.Inc()
	metrics.PositionUpdatesSent.Add(float64(len(updates)))

	for _, conn := range r.sessions.List() {
		filtered := make([]protocol.PositionUpdate, 0, len(updates))
		for _, u := range updates {
			if u.ID != conn.ID() {
				filtered = append(filtered, u)
			}
		}
		if len(filtered) == 0 {
			continue
		}
		env, err := protocol.NewEnvelope(protocol.TypePlayerBatchPosition, protocol.BatchPositionPayload{
			Updates:  filtered,
			TickTime: tickTime,
		}, protocol.SenderServer)
		if err != nil {
			continue
		}
		if err := conn.Send(env); err != nil {
			r.logger.Debug().Err(err).Str("id", conn.ID()).Msg("batch send failed")
		}
	}
}

// Disconnected retires a session's player state and announces the
// departure. Called exactly once per session teardown so the session map
// and player map stay consistent.
func (r *Router) Disconnected(conn *websocket.Conn) {
	state, ok := r.players.Remove(conn.ID())
	if !ok {
		return // never joined as a player
	}
	if leave, err := protocol.NewEnvelope(protocol.TypePlayerLeave, protocol.LeavePayload{
		ID:       state.ID,
		Username: state.Username,
	}, protocol.SenderServer); err == nil {
		r.sessions.Broadcast(leave, conn.ID())
	}
	r.broadcastChatSystem(state.Username + " left the lounge")
}

func (r *Router) newChatMessage(conn *websocket.Conn, content, kind string) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:         ulid.Make().String(),
		SenderID:   conn.ID(),
		SenderName: conn.Username(),
		Content:    content,
		Timestamp:  time.Now().UnixMilli(),
		Kind:       kind,
	}
}

func (r *Router) broadcastChatSystem(content string) {
	msg := protocol.ChatMessage{
		ID:        ulid.Make().String(),
		SenderID:  protocol.SenderServer,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		Kind:      protocol.ChatKindSystem,
	}
	if env, err := protocol.NewEnvelope(protocol.TypeChatMessage, msg, protocol.SenderServer); err == nil {
		r.sessions.Broadcast(env, "")
	}
}

func (r *Router) reply(conn *websocket.Conn, msgType string, payload interface{}) {
	env, err := protocol.NewEnvelope(msgType, payload, protocol.SenderServer)
	if err != nil {
		r.logger.Error().Err(err).Str("type", msgType).Msg("reply encode failed")
		return
	}
	if err := conn.Send(env); err != nil {
		r.logger.Debug().Err(err).Str("id", conn.ID()).Str("type", msgType).Msg("reply send failed")
	}
}

func (r *Router) sendSystemError(conn *websocket.Conn, code, message string) {
	r.reply(conn, protocol.TypeSystemError, protocol.ErrorPayload{Code: code, Message: message})
}

func (r *Router) sendChatError(conn *websocket.Conn, code, message string) {
	r.reply(conn, protocol.TypeChatError, protocol.ErrorPayload{Code: code, Message: message})
}
