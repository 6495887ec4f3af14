package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/models"
	"gorm.io/gorm"
)

type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Transaction(ctx context.Context, mode TxMode, fn func(tx Tx) error) error {
	opts := &sql.TxOptions{}
	if mode == ReadOnly {
		opts.ReadOnly = true
		opts.Isolation = sql.LevelRepeatableRead
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&postgresTx{db: tx, readOnly: mode == ReadOnly})
	}, opts)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type postgresTx struct {
	db       *gorm.DB
	readOnly bool
}

// The counter upsert takes the row lock on channel_counters and the insert
// consumes the returned value, so both commit or abort together.
const appendSQL = `
WITH next AS (
	INSERT INTO channel_counters (channel, last_seq)
	VALUES (@channel, 0)
	ON CONFLICT (channel) DO UPDATE SET last_seq = channel_counters.last_seq + 1
	RETURNING last_seq
)
INSERT INTO messages (id, channel, seq, payload, published_at)
SELECT @id, @channel, next.last_seq, CAST(@payload AS jsonb), @published_at
FROM next
RETURNING seq`

func (t *postgresTx) Append(msg *models.Message) error {
	if t.readOnly {
		return ErrReadOnly
	}
	var seq int64
	res := t.db.Raw(appendSQL, map[string]interface{}{
		"id":           msg.ID,
		"channel":      msg.Channel,
		"payload":      msg.Payload,
		"published_at": msg.PublishedAt,
	}).Scan(&seq)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return errors.New("append: no sequence returned")
	}
	msg.Seq = seq
	return nil
}

const unreadSQL = `
SELECT m.id, m.channel, m.seq, m.payload, m.published_at
FROM messages m
LEFT JOIN read_marks r
	ON r.message_id = m.id AND r.consumer = ?
WHERE m.channel = ?
	AND r.message_id IS NULL
ORDER BY m.seq ASC`

func (t *postgresTx) ListUnread(channel, consumer string) ([]models.Message, error) {
	var messages []models.Message
	err := t.db.Raw(unreadSQL, consumer, channel).Scan(&messages).Error
	return messages, err
}

func (t *postgresTx) ListFromSequence(channel string, fromSeq int64) ([]models.Message, error) {
	var messages []models.Message
	err := t.db.Where("channel = ? AND seq >= ?", channel, fromSeq).
		Order("seq ASC").
		Find(&messages).Error
	return messages, err
}

func (t *postgresTx) FindMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := t.db.First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

func (t *postgresTx) ChannelInfo(channel string) (models.ChannelInfo, error) {
	info := models.ChannelInfo{Channel: channel, LastSeq: -1, Empty: true}
	var counter models.ChannelCounter
	res := t.db.Where("channel = ?", channel).Limit(1).Find(&counter)
	if res.Error != nil {
		return info, res.Error
	}
	if res.RowsAffected == 0 {
		return info, nil
	}
	info.LastSeq = counter.LastSeq
	info.Empty = false
	return info, nil
}
