package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMessageToResponse(t *testing.T) {
	publishedAt := time.Now()
	message := &Message{
		ID:          uuid.New(),
		Channel:     "orders",
		Seq:         7,
		Payload:     Payload(`{"i":1}`),
		PublishedAt: publishedAt,
	}

	response := message.ToResponse()

	if response.ID != message.ID {
		t.Errorf("ToResponse ID = %s, want %s", response.ID, message.ID)
	}
	if response.Channel != message.Channel {
		t.Errorf("ToResponse Channel = %q, want %q", response.Channel, message.Channel)
	}
	if response.Seq != message.Seq {
		t.Errorf("ToResponse Seq = %d, want %d", response.Seq, message.Seq)
	}
	if string(response.Payload) != string(message.Payload) {
		t.Errorf("ToResponse Payload = %s, want %s", response.Payload, message.Payload)
	}
	if !response.PublishedAt.Equal(publishedAt) {
		t.Errorf("ToResponse PublishedAt = %v, want %v", response.PublishedAt, publishedAt)
	}
}

func TestToResponsesEmptyIsNotNil(t *testing.T) {
	out := ToResponses(nil)
	if out == nil {
		t.Fatal("ToResponses(nil) = nil, want empty slice")
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Marshal(ToResponses(nil)) = %s, want []", data)
	}
}

func TestNewPayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"Object", `{"i": 0}`, `{"i":0}`, false},
		{"Nested object", ` {"a": {"b": [1, 2]}} `, `{"a":{"b":[1,2]}}`, false},
		{"Empty object", `{}`, `{}`, false},
		{"Array", `[1,2]`, "", true},
		{"String", `"x"`, "", true},
		{"Null", `null`, "", true},
		{"Empty", ``, "", true},
		{"Broken", `{"i":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPayload([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPayload(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("NewPayload(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestPayloadScan(t *testing.T) {
	var p Payload
	if err := p.Scan([]byte(`{"k":"v"}`)); err != nil {
		t.Fatalf("Scan([]byte) error: %v", err)
	}
	if string(p) != `{"k":"v"}` {
		t.Errorf("Scan([]byte) = %s", p)
	}
	if err := p.Scan(`{"k":1}`); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if string(p) != `{"k":1}` {
		t.Errorf("Scan(string) = %s", p)
	}
	if err := p.Scan(42); err == nil {
		t.Error("Scan(int) expected error")
	}
}

func TestPayloadEmbedsAsRawJSON(t *testing.T) {
	response := MessageResponse{Channel: "orders", Payload: Payload(`{"i":2}`)}
	data, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded struct {
		Payload map[string]int `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Payload["i"] != 2 {
		t.Errorf("payload i = %d, want 2", decoded.Payload["i"])
	}
}

func TestTableNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Message", Message{}.TableName(), "messages"},
		{"ChannelCounter", ChannelCounter{}.TableName(), "channel_counters"},
		{"ReadMark", ReadMark{}.TableName(), "read_marks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("TableName = %q, want %q", tt.got, tt.want)
			}
		})
	}
}
