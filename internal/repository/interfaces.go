package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match no row. It is gorm's own
// sentinel so callers can use errors.Is against either name.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrReadOnly is returned when a write is attempted inside a read-only transaction.
var ErrReadOnly = errors.New("write in read-only transaction")

// TxMode selects the access mode of a transaction.
type TxMode int

const (
	ReadWrite TxMode = iota
	ReadOnly
)

// Store opens transactions against the log. Transaction commits when fn
// returns nil and rolls back on an error, a panic or a done context; nothing
// fn did is visible to other transactions until commit.
type Store interface {
	Transaction(ctx context.Context, mode TxMode, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of log operations available inside one transaction.
type Tx interface {
	// Append assigns the next sequence number of msg.Channel to msg and
	// inserts it. The counter advance and the insert share the transaction.
	Append(msg *models.Message) error
	// MarkRead upserts the read mark of (messageID, consumer).
	MarkRead(messageID uuid.UUID, consumer string, readAt time.Time) error
	// ListUnread returns the channel's messages without a read mark for
	// consumer, ascending by seq.
	ListUnread(channel, consumer string) ([]models.Message, error)
	// ListFromSequence returns the channel's messages with seq >= fromSeq,
	// ascending by seq.
	ListFromSequence(channel string, fromSeq int64) ([]models.Message, error)
	FindMessage(id uuid.UUID) (*models.Message, error)
	ChannelInfo(channel string) (models.ChannelInfo, error)
}
