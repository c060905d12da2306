package protocol

// Reserved WebSocket close codes (RFC 6455) plus application codes in the
// 4000-4999 private range.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseInvalidData     = 1003
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011

	CloseHeartbeatTimeout = 4000
	CloseAuthFailure      = 4001
	CloseKick             = 4002
)

// Application error codes carried in ErrorPayload.
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodePlayerNotFound = "PLAYER_NOT_FOUND"
)
