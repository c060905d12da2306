package protocol

import "errors"

var (
	ErrMalformedJSON   = errors.New("malformed JSON frame")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrInvalidPayload  = errors.New("invalid payload")
)
