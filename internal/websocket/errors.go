package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteBufferFull  = errors.New("write buffer full")
)

// Registry-related errors
var (
	ErrNilConnection   = errors.New("connection cannot be nil")
	ErrSessionNotFound = errors.New("session not found")
)
