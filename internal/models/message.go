package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of a channel log. Rows are never updated after insert.
type Message struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id" msgpack:"id"`
	Channel     string    `gorm:"type:text;not null;uniqueIndex:idx_messages_channel_seq,priority:1" json:"channel" msgpack:"channel"`
	Seq         int64     `gorm:"not null;uniqueIndex:idx_messages_channel_seq,priority:2" json:"seq" msgpack:"seq"`
	Payload     Payload   `gorm:"type:jsonb;not null" json:"payload" msgpack:"payload"`
	PublishedAt time.Time `gorm:"type:timestamptz;not null" json:"published_at" msgpack:"published_at"`
}

func (Message) TableName() string { return "messages" }

type MessageResponse struct {
	ID          uuid.UUID `json:"id"`
	Channel     string    `json:"channel"`
	Seq         int64     `json:"seq"`
	Payload     Payload   `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		Channel:     m.Channel,
		Seq:         m.Seq,
		Payload:     m.Payload,
		PublishedAt: m.PublishedAt,
	}
}

// ToResponses converts a page of messages, keeping order. Never returns nil so
// an empty page encodes as [].
func ToResponses(messages []Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].ToResponse())
	}
	return out
}

// ChannelCounter holds the last sequence number issued for a channel.
// It is the only row concurrent publishers of one channel contend on.
type ChannelCounter struct {
	Channel string `gorm:"type:text;primaryKey" json:"channel"`
	LastSeq int64  `gorm:"not null" json:"last_seq"`
}

func (ChannelCounter) TableName() string { return "channel_counters" }

// ReadMark records that a consumer acknowledged a message. Re-acknowledging
// refreshes ReadAt.
type ReadMark struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	Consumer  string    `gorm:"type:text;primaryKey;index:idx_read_marks_consumer" json:"consumer"`
	ReadAt    time.Time `gorm:"type:timestamptz;not null" json:"read_at"`
}

func (ReadMark) TableName() string { return "read_marks" }

// ChannelInfo is the high-water view of a channel.
type ChannelInfo struct {
	Channel string `json:"channel"`
	LastSeq int64  `json:"last_seq"`
	Empty   bool   `json:"empty"`
}
