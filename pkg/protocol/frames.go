package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is bumped whenever the frame envelope or handshake
// sequence changes in a way clients must be aware of.
const ProtocolVersion = 3

// Frame type discriminators. Every frame sent over the WebSocket connection
// is a UTF-8 JSON object carrying one of these as its top-level "type".
const (
	FrameTypeHello     = "hello"
	FrameTypeChallenge = "challenge"
	FrameTypeProof     = "proof"
	FrameTypeRequest   = "method_call"
	FrameTypeResponse  = "response"
	FrameTypeEvent     = "event"
	FrameTypeError     = "error"
)

// frameEnvelope is used only to sniff the "type" discriminator before
// unmarshaling into the concrete frame type.
type frameEnvelope struct {
	Type string `json:"type"`
}

// ParseFrameType extracts the "type" field from a raw frame without fully
// decoding it.
func ParseFrameType(raw []byte) (string, error) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", fmt.Errorf("frame missing type field")
	}
	return env.Type, nil
}

// HelloFrame is the client's opening handshake frame (spec §4.1 step 1).
type HelloFrame struct {
	Type      string `json:"type"`
	Role      string `json:"role"`                // "operator", "node", "channel", "read-only"
	PublicKey string `json:"publicKey,omitempty"`  // device role: hex ed25519 public key
	Token     string `json:"token,omitempty"`      // operator/channel role: pairing or bearer token
}

// ChallengeFrame carries the server's random nonce for the client to sign
// or otherwise answer.
type ChallengeFrame struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce"` // hex-encoded, >=128 bits of entropy
}

// ProofFrame is the client's handshake answer.
type ProofFrame struct {
	Type      string `json:"type"`
	Signature string `json:"signature,omitempty"` // device role: hex ed25519 signature over the nonce
	Token     string `json:"token,omitempty"`      // operator/channel role: bearer/pairing token
}

// RequestFrame is a method_call frame. IDs are unique per connection and
// monotonically increasing from the client's perspective; the server
// always echoes the request ID on its response.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorInfo is the structured body of a failed response or a top-level
// error frame, keyed by the error-kind taxonomy rather than free text.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ResponseFrame answers a RequestFrame by echoed ID. Exactly one of
// Payload/Error is meaningful, selected by OK.
type ResponseFrame struct {
	Type    string      `json:"type"`
	ID      string      `json:"id"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// EventFrame is an unsolicited server→client push. Event frames are never
// correlated to a request ID.
type EventFrame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorFrame is a connection-level error, used for handshake failures that
// terminate the connection rather than answering a specific request.
type ErrorFrame struct {
	Type  string    `json:"type"`
	Error ErrorInfo `json:"error"`
}

// NewEvent builds an EventFrame ready to send.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: name, Payload: payload}
}

// NewOKResponse builds a successful ResponseFrame for request id.
func NewOKResponse(id string, payload interface{}) ResponseFrame {
	return ResponseFrame{Type: FrameTypeResponse, ID: id, OK: true, Payload: payload}
}

// NewErrorResponse builds a failed ResponseFrame for request id.
func NewErrorResponse(id string, kind ErrorKind, message string) ResponseFrame {
	return ResponseFrame{
		Type: FrameTypeResponse,
		ID:   id,
		OK:   false,
		Error: &ErrorInfo{
			Kind:    string(kind),
			Message: message,
		},
	}
}

// NewErrorFrame builds a connection-terminating error frame (handshake
// failures: AuthFailed, PairingRequired, TokenExpired).
func NewErrorFrame(kind ErrorKind, message string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Error: ErrorInfo{Kind: string(kind), Message: message}}
}
