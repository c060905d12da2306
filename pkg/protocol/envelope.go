package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the uniform wire wrapper for every message exchanged over the
// WebSocket transport. Payload stays opaque at this layer; receivers decode
// it according to Type.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // producer send time, epoch ms
	SenderID  string          `json:"senderId"`
}

// SenderServer is the SenderID used for envelopes originated by the server
// itself rather than relayed on behalf of a session.
const SenderServer = "server"

// NewEnvelope builds an envelope stamped with the current time. The payload
// is marshaled immediately so encoding failures surface at the call site
// instead of inside the transport.
func NewEnvelope(msgType string, payload interface{}, senderID string) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
		SenderID:  senderID,
	}, nil
}

// Parse validates and decodes a raw text frame into an envelope. Anything
// that is not JSON or is missing one of the four required fields yields an
// error value; Parse never panics on hostile input.
func Parse(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
	}
	if env.Timestamp == 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidEnvelope)
	}
	if env.SenderID == "" {
		return nil, fmt.Errorf("%w: missing senderId", ErrInvalidEnvelope)
	}
	return &env, nil
}

// Serialize encodes the envelope for transmission as a single text frame.
func (e *Envelope) Serialize() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.Type, err)
	}
	return data, nil
}

// Decode unmarshals the opaque payload into a typed struct.
func (e *Envelope) Decode(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidPayload, e.Type, err)
	}
	return nil
}
