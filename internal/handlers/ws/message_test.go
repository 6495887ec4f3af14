package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/service"
)

type fakeAcker struct {
	err   error
	calls []string
}

func (a *fakeAcker) Ack(_ context.Context, id uuid.UUID, consumer string) error {
	a.calls = append(a.calls, consumer+"/"+id.String())
	return a.err
}

func frameCode(t *testing.T, reply []byte) (string, string) {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		t.Fatalf("reply %s: %v", reply, err)
	}
	return resp.Type, resp.Code
}

func ackFrame(id uuid.UUID) []byte {
	data, _ := Serialize(FrameAck, AckRequest{ID: id})
	return data
}

func TestHandleFrame(t *testing.T) {
	id := uuid.New()
	ping, _ := Serialize(FramePing, nil)
	pong, _ := Serialize(FramePong, nil)
	unknown, _ := Serialize("subscribe", nil)
	badAck, _ := Serialize(FrameAck, map[string]string{"id": "nope"})

	tests := []struct {
		name     string
		frame    []byte
		consumer string
		ackErr   error
		wantType string
		wantCode string
	}{
		{"ping", ping, "", nil, FramePong, ""},
		{"garbage", []byte("{"), "", nil, FrameError, "invalid_frame"},
		{"missing type", []byte(`{}`), "", nil, FrameError, "invalid_frame"},
		{"unknown type", unknown, "", nil, FrameError, "unknown_type"},
		{"ack without consumer", ackFrame(id), "", nil, FrameError, "missing_consumer"},
		{"ack bad id", badAck, "billing", nil, FrameError, "invalid_message_id"},
		{"ack nil id", ackFrame(uuid.Nil), "billing", nil, FrameError, "invalid_message_id"},
		{"ack ok", ackFrame(id), "billing", nil, FrameAcked, ""},
		{"ack not found", ackFrame(id), "billing", fmt.Errorf("%w: gone", service.ErrNotFound), FrameError, "message_not_found"},
		{"ack transient", ackFrame(id), "billing", fmt.Errorf("%w: busy", service.ErrTransient), FrameError, "temporarily_unavailable"},
		{"ack other", ackFrame(id), "billing", errors.New("boom"), FrameError, "ack_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &fakeAcker{err: tt.ackErr}
			reply := handleFrame(context.Background(), tt.frame, tt.consumer, acker)
			if reply == nil {
				t.Fatal("no reply")
			}
			gotType, gotCode := frameCode(t, reply)
			if gotType != tt.wantType {
				t.Errorf("type = %q, want %q (reply %s)", gotType, tt.wantType, reply)
			}
			if gotCode != tt.wantCode {
				t.Errorf("code = %q, want %q", gotCode, tt.wantCode)
			}
		})
	}

	if reply := handleFrame(context.Background(), pong, "", nil); reply != nil {
		t.Errorf("pong reply = %s, want none", reply)
	}
}

func TestHandleAckPassesConsumer(t *testing.T) {
	id := uuid.New()
	acker := &fakeAcker{}
	handleFrame(context.Background(), ackFrame(id), "billing", acker)
	if len(acker.calls) != 1 || acker.calls[0] != "billing/"+id.String() {
		t.Errorf("calls = %v", acker.calls)
	}
}
