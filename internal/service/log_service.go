package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/models"
	"github.com/hesampakdaman/messaging/internal/repository"
	"github.com/hesampakdaman/messaging/internal/validation"
)

const defaultOpTimeout = 5 * time.Second

// Notifier is told about every message after its transaction commits.
// It must not block.
type Notifier interface {
	Published(msg models.Message)
}

// MessageCache holds messages by id. Messages never change, so entries
// never go stale.
type MessageCache interface {
	GetMessage(id uuid.UUID) (*models.Message, bool)
	SetMessage(msg *models.Message) error
}

type Options struct {
	// OpTimeout bounds every transaction. Zero means 5s.
	OpTimeout time.Duration
	// AckRequireExisting makes Ack fail with ErrNotFound for unknown ids
	// instead of storing a dangling read mark.
	AckRequireExisting bool
	Logger             *slog.Logger
	Notifier           Notifier
	Cache              MessageCache
	Now                func() time.Time
	NewID              func() uuid.UUID
}

// LogService runs each log operation as one bounded transaction.
type LogService struct {
	store           repository.Store
	timeout         time.Duration
	requireExisting bool
	logger          *slog.Logger
	notifier        Notifier
	cache           MessageCache
	now             func() time.Time
	newID           func() uuid.UUID
}

func NewLogService(store repository.Store, opts Options) *LogService {
	s := &LogService{
		store:           store,
		timeout:         opts.OpTimeout,
		requireExisting: opts.AckRequireExisting,
		logger:          opts.Logger,
		notifier:        opts.Notifier,
		cache:           opts.Cache,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if s.timeout <= 0 {
		s.timeout = defaultOpTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.New
	}
	return s
}

// run executes fn in one transaction bounded by the service timeout.
func (s *LogService) run(ctx context.Context, mode repository.TxMode, fn func(tx repository.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(s.store.Transaction(ctx, mode, fn))
}

func (s *LogService) Publish(ctx context.Context, channel string, payload models.Payload) (*models.Message, error) {
	channel = validation.NormalizeChannel(channel)
	if !validation.ValidateChannel(channel) {
		return nil, invalid("channel", "must be a non-empty name")
	}
	if len(payload) == 0 {
		return nil, invalid("payload", "is required")
	}

	msg := &models.Message{
		ID:          s.newID(),
		Channel:     channel,
		Payload:     payload,
		PublishedAt: s.now(),
	}
	log := s.logger.With("op", "publish", "channel", channel, "message_id", msg.ID)
	log.Info("publish.start")

	err := s.run(ctx, repository.ReadWrite, func(tx repository.Tx) error {
		return tx.Append(msg)
	})
	if err != nil {
		log.Warn("publish.failed", "error", err, "transient", errors.Is(err, ErrTransient))
		return nil, err
	}
	log.Info("publish.ok", "seq", msg.Seq)

	if s.cache != nil {
		if err := s.cache.SetMessage(msg); err != nil {
			log.Debug("cache.set_failed", "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Published(*msg)
	}
	return msg, nil
}

func (s *LogService) ListUnread(ctx context.Context, channel, consumer string) ([]models.Message, error) {
	channel = validation.NormalizeChannel(channel)
	consumer = validation.NormalizeConsumer(consumer)
	if !validation.ValidateChannel(channel) {
		return nil, invalid("channel", "must be a non-empty name")
	}
	if !validation.ValidateConsumer(consumer) {
		return nil, invalid("consumer", "is required")
	}

	log := s.logger.With("op", "list_unread", "channel", channel, "consumer", consumer)
	log.Debug("list_unread.start")

	var messages []models.Message
	err := s.run(ctx, repository.ReadOnly, func(tx repository.Tx) error {
		var err error
		messages, err = tx.ListUnread(channel, consumer)
		return err
	})
	if err != nil {
		log.Warn("list_unread.failed", "error", err)
		return nil, err
	}
	log.Debug("list_unread.ok", "count", len(messages))
	return messages, nil
}

func (s *LogService) ListFromSequence(ctx context.Context, channel string, fromSeq int64) ([]models.Message, error) {
	channel = validation.NormalizeChannel(channel)
	if !validation.ValidateChannel(channel) {
		return nil, invalid("channel", "must be a non-empty name")
	}
	if !validation.ValidateFromSeq(fromSeq) {
		return nil, invalid("from_seq", "must be >= 0")
	}

	log := s.logger.With("op", "list_from_sequence", "channel", channel, "from_seq", fromSeq)
	log.Debug("list_from_sequence.start")

	var messages []models.Message
	err := s.run(ctx, repository.ReadOnly, func(tx repository.Tx) error {
		var err error
		messages, err = tx.ListFromSequence(channel, fromSeq)
		return err
	})
	if err != nil {
		log.Warn("list_from_sequence.failed", "error", err)
		return nil, err
	}
	log.Debug("list_from_sequence.ok", "count", len(messages))
	return messages, nil
}

func (s *LogService) Ack(ctx context.Context, messageID uuid.UUID, consumer string) error {
	consumer = validation.NormalizeConsumer(consumer)
	if messageID == uuid.Nil {
		return invalid("message_id", "is required")
	}
	if !validation.ValidateConsumer(consumer) {
		return invalid("consumer", "is required")
	}

	log := s.logger.With("op", "ack", "message_id", messageID, "consumer", consumer)
	log.Debug("ack.start")

	checkExists := s.requireExisting
	if checkExists && s.cache != nil {
		if _, ok := s.cache.GetMessage(messageID); ok {
			checkExists = false
		}
	}

	readAt := s.now()
	err := s.run(ctx, repository.ReadWrite, func(tx repository.Tx) error {
		if checkExists {
			if _, err := tx.FindMessage(messageID); err != nil {
				return err
			}
		}
		return tx.MarkRead(messageID, consumer, readAt)
	})
	if err != nil {
		log.Warn("ack.failed", "error", err)
		return err
	}
	log.Debug("ack.ok")
	return nil
}

// GetMessage reads one message, through the cache when one is configured.
func (s *LogService) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	if id == uuid.Nil {
		return nil, invalid("message_id", "is required")
	}
	if s.cache != nil {
		if msg, ok := s.cache.GetMessage(id); ok {
			return msg, nil
		}
	}

	var msg *models.Message
	err := s.run(ctx, repository.ReadOnly, func(tx repository.Tx) error {
		var err error
		msg, err = tx.FindMessage(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetMessage(msg)
	}
	return msg, nil
}

func (s *LogService) ChannelInfo(ctx context.Context, channel string) (models.ChannelInfo, error) {
	channel = validation.NormalizeChannel(channel)
	if !validation.ValidateChannel(channel) {
		return models.ChannelInfo{}, invalid("channel", "must be a non-empty name")
	}
	var info models.ChannelInfo
	err := s.run(ctx, repository.ReadOnly, func(tx repository.Tx) error {
		var err error
		info, err = tx.ChannelInfo(channel)
		return err
	})
	return info, err
}

func (s *LogService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return classify(s.store.Ping(ctx))
}
