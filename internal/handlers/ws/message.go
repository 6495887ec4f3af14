package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/service"
)

const (
	FrameMessage = "message"
	FramePing    = "ping"
	FramePong    = "pong"
	FrameAck     = "ack"
	FrameAcked   = "acked"
	FrameError   = "error"
)

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorResponse is sent when a client frame cannot be handled
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// AckRequest is the payload of an "ack" frame.
type AckRequest struct {
	ID uuid.UUID `json:"id"`
}

// Acker acknowledges messages on behalf of a connection's consumer.
type Acker interface {
	Ack(ctx context.Context, messageID uuid.UUID, consumer string) error
}

func Serialize(frameType string, payload interface{}) ([]byte, error) {
	wrapper := SerializedMessage{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		wrapper.Payload = data
	}
	return json.Marshal(wrapper)
}

func Deserialize(data []byte) (*SerializedMessage, error) {
	var wrapper SerializedMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Type == "" {
		return nil, errors.New("missing frame type")
	}
	return &wrapper, nil
}

func errorFrame(code, message, details string) []byte {
	data, _ := json.Marshal(ErrorResponse{
		Type:    FrameError,
		Error:   message,
		Code:    code,
		Details: details,
	})
	return data
}

// handleFrame answers one client frame. A nil reply means nothing to send.
func handleFrame(ctx context.Context, data []byte, consumer string, acker Acker) []byte {
	frame, err := Deserialize(data)
	if err != nil {
		return errorFrame("invalid_frame", "Invalid frame", err.Error())
	}

	switch frame.Type {
	case FramePing:
		reply, _ := Serialize(FramePong, nil)
		return reply
	case FramePong:
		return nil
	case FrameAck:
		return handleAck(ctx, frame.Payload, consumer, acker)
	default:
		return errorFrame("unknown_type", "Unknown frame type", fmt.Sprintf("type %q", frame.Type))
	}
}

func handleAck(ctx context.Context, payload json.RawMessage, consumer string, acker Acker) []byte {
	if consumer == "" {
		return errorFrame("missing_consumer", "consumer query parameter is required to ack", "")
	}
	if acker == nil {
		return errorFrame("ack_unavailable", "Ack not supported on this connection", "")
	}
	var req AckRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == uuid.Nil {
		return errorFrame("invalid_message_id", "Invalid message id", "")
	}

	if err := acker.Ack(ctx, req.ID, consumer); err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return errorFrame("invalid_request", "Invalid request", err.Error())
		case errors.Is(err, service.ErrNotFound):
			return errorFrame("message_not_found", "Message not found", "")
		case errors.Is(err, service.ErrTransient):
			return errorFrame("temporarily_unavailable", "Try again", "")
		default:
			return errorFrame("ack_failed", "Ack failed", "")
		}
	}

	reply, _ := Serialize(FrameAcked, req)
	return reply
}
