package repository

import (
	"time"

	"github.com/google/uuid"
)

// MarkRead is a bare upsert: it does not check that the message exists.
func (t *postgresTx) MarkRead(messageID uuid.UUID, consumer string, readAt time.Time) error {
	if t.readOnly {
		return ErrReadOnly
	}
	return t.db.Exec(`
		INSERT INTO read_marks (message_id, consumer, read_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id, consumer) DO UPDATE
		SET read_at = EXCLUDED.read_at
	`, messageID, consumer, readAt).Error
}
