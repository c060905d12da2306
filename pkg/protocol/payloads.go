package protocol

// Vector3 is a position or Euler rotation in world space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Lerp returns the component-wise linear interpolation between v and o at
// fraction t. Callers clamp t; Lerp itself does not.
func (v Vector3) Lerp(o Vector3, t float64) Vector3 {
	return Vector3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// Player status values derived from input activity.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusAway   = "away"
)

// PlayerState is the public projection of one connected player.
type PlayerState struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
	Status   string  `json:"status"`
	Color    string  `json:"color"`
}

// ConnectPayload is sent by the server immediately after a socket is
// accepted; ID becomes the authoritative sender identity for the socket.
type ConnectPayload struct {
	ID         string `json:"id"`
	ServerTime int64  `json:"serverTime"`
}

// PingPayload carries a client heartbeat sequence number.
type PingPayload struct {
	Seq int `json:"seq"`
}

// PongPayload echoes the heartbeat sequence along with server time.
type PongPayload struct {
	Seq        int   `json:"seq"`
	ServerTime int64 `json:"serverTime"`
}

// ErrorPayload is a typed application error returned to a single client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JoinRequest is sent by a client to enter the lounge under a username.
type JoinRequest struct {
	Username string `json:"username"`
}

// JoinPayload announces a new player, carrying its full initial state.
type JoinPayload struct {
	Player PlayerState `json:"player"`
}

// LeavePayload announces a departed player.
type LeavePayload struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
}

// PositionPayload is a client position sample for the local player.
type PositionPayload struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

// PositionUpdate is one player's entry in a batch broadcast. Timestamp is
// the server-side lastUpdate stamp, which interpolation keys on.
type PositionUpdate struct {
	ID        string  `json:"id"`
	Position  Vector3 `json:"position"`
	Rotation  Vector3 `json:"rotation"`
	Timestamp int64   `json:"timestamp"`
}

// BatchPositionPayload carries every dirty player collected in one tick.
type BatchPositionPayload struct {
	Updates  []PositionUpdate `json:"updates"`
	TickTime int64            `json:"tickTime"`
}

// FullStatePayload is the complete roster, sent on join and on request.
type FullStatePayload struct {
	Players []PlayerState `json:"players"`
}

// StatusChangePayload reports an activity status transition.
type StatusChangePayload struct {
	Status string `json:"status"`
}

// TypingPayload reports a typing-indicator edge transition.
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// ChatSendPayload is outbound chat content from a client.
type ChatSendPayload struct {
	Content string `json:"content"`
}

// WhisperPayload targets a single recipient by id or username.
type WhisperPayload struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

// EmotePayload is a third-person action line ("/me ...").
type EmotePayload struct {
	Action string `json:"action"`
}

// Chat message kinds as rendered by the client.
const (
	ChatKindChat    = "chat"
	ChatKindSystem  = "system"
	ChatKindWhisper = "whisper"
	ChatKindEmote   = "emote"
)

// ChatMessage is a fully-attributed chat line. Immutable once created; the
// server assigns ID and never stores it.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	Kind       string `json:"type"`
	TargetID   string `json:"targetId,omitempty"`
	TargetName string `json:"targetName,omitempty"`
}
