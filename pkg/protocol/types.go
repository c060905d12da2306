package protocol

import "strings"

// Message types are namespaced by a colon-separated domain prefix. Receivers
// dispatch by exact match; the server additionally routes by prefix.
const (
	DomainSystem = "system"
	DomainPlayer = "player"
	DomainChat   = "chat"
)

const (
	TypeSystemPing       = "system:ping"
	TypeSystemPong       = "system:pong"
	TypeSystemConnect    = "system:connect"
	TypeSystemDisconnect = "system:disconnect"
	TypeSystemError      = "system:error"
	TypeSystemAck        = "system:ack"

	TypePlayerJoin             = "player:join"
	TypePlayerLeave            = "player:leave"
	TypePlayerState            = "player:state"
	TypePlayerPosition         = "player:position"
	TypePlayerBatchPosition    = "player:batch_position"
	TypePlayerRequestFullState = "player:request_full_state"
	TypePlayerStatusChange     = "player:status_change"
	TypePlayerTyping           = "player:typing"

	TypeChatSend    = "chat:send"
	TypeChatWhisper = "chat:whisper"
	TypeChatEmote   = "chat:emote"
	TypeChatMessage = "chat:message"
	TypeChatSystem  = "chat:system"
	TypeChatError   = "chat:error"
)

// TypeWildcard subscribes to every non-system message type.
const TypeWildcard = "*"

// Domain returns the colon-separated prefix of a message type, or "" when
// the type carries no namespace.
func Domain(msgType string) string {
	if i := strings.IndexByte(msgType, ':'); i > 0 {
		return msgType[:i]
	}
	return ""
}

// IsSystemType reports whether the type belongs to the system domain.
// System messages are excluded from wildcard dispatch.
func IsSystemType(msgType string) bool {
	return Domain(msgType) == DomainSystem
}
