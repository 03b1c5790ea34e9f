// Package protocol defines the framed JSON messages exchanged with the relay
// proxy. Every transport frame is a single JSON object with a mandatory type
// discriminator and, for correlated messages, an id matching the originating
// command.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies a wire frame.
type Type string

const (
	// Server -> agent
	TypeHTTPRequest Type = "http_request"
	TypePong        Type = "pong"

	// Agent -> server
	TypeHTTPResponse Type = "http_response"
	TypeStreamStart  Type = "stream_start"
	TypeStreamChunk  Type = "stream_chunk"
	TypeStreamEnd    Type = "stream_end"
	TypeError        Type = "error"
	TypePing         Type = "ping"
)

// Error codes carried in error frames.
const (
	CodeFetchError = "fetch_error"
	CodeHTTPError  = "http_error"
)

var (
	// ErrMalformed marks frames that cannot be parsed or fail payload
	// validation. Such frames are logged and dropped, never fatal.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnknownType marks frames with an unrecognized type discriminator.
	ErrUnknownType = errors.New("unrecognized message type")
)

// Frame is the raw wire envelope.
type Frame struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is an agent -> server frame ready for JSON encoding.
type Outbound struct {
	Type    Type        `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// HTTPRequestPayload is the body of an inbound http_request command.
type HTTPRequestPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPResponsePayload carries a buffered upstream response.
type HTTPResponsePayload struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// StreamStartPayload opens a streamed result sequence.
type StreamStartPayload struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
}

// StreamChunkPayload carries one decoded chunk of a streamed body.
type StreamChunkPayload struct {
	Data string `json:"data"`
}

// ErrorPayload reports a per-command failure. HTTPResponse is attached when
// the upstream returned an error response whose content was recoverable.
type ErrorPayload struct {
	Code         string               `json:"code"`
	Message      string               `json:"message"`
	HTTPResponse *HTTPResponsePayload `json:"http_response,omitempty"`
}

// Inbound is a decoded server -> agent frame.
type Inbound struct {
	Type    Type
	ID      string
	Request *HTTPRequestPayload // set when Type is TypeHTTPRequest
}

// Decode parses a raw frame from the proxy. It returns ErrMalformed for
// unparseable or schema-invalid frames and ErrUnknownType for types the agent
// does not recognize; callers drop both without touching connection state.
func Decode(data []byte) (*Inbound, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch f.Type {
	case TypeHTTPRequest:
		if f.ID == "" {
			return nil, fmt.Errorf("%w: http_request without id", ErrMalformed)
		}
		if err := validateHTTPRequest(f.Payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		var req HTTPRequestPayload
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &Inbound{Type: TypeHTTPRequest, ID: f.ID, Request: &req}, nil

	case TypePong:
		return &Inbound{Type: TypePong}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// NewPing builds the liveness probe frame.
func NewPing() Outbound {
	return Outbound{Type: TypePing}
}

// NewHTTPResponse builds a buffered response frame.
func NewHTTPResponse(id string, status int, headers map[string]string, body string) Outbound {
	return Outbound{
		Type: TypeHTTPResponse,
		ID:   id,
		Payload: HTTPResponsePayload{
			Status:  status,
			Headers: headers,
			Body:    body,
		},
	}
}

// NewStreamStart builds the opening frame of a streamed result.
func NewStreamStart(id string, status int, headers map[string]string) Outbound {
	return Outbound{
		Type: TypeStreamStart,
		ID:   id,
		Payload: StreamStartPayload{
			Status:  status,
			Headers: headers,
		},
	}
}

// NewStreamChunk builds a single streamed body chunk.
func NewStreamChunk(id, data string) Outbound {
	return Outbound{
		Type:    TypeStreamChunk,
		ID:      id,
		Payload: StreamChunkPayload{Data: data},
	}
}

// NewStreamEnd closes a streamed result.
func NewStreamEnd(id string) Outbound {
	return Outbound{
		Type:    TypeStreamEnd,
		ID:      id,
		Payload: struct{}{},
	}
}

// NewError builds a per-command error frame.
func NewError(id, code, message string, resp *HTTPResponsePayload) Outbound {
	return Outbound{
		Type: TypeError,
		ID:   id,
		Payload: ErrorPayload{
			Code:         code,
			Message:      message,
			HTTPResponse: resp,
		},
	}
}
