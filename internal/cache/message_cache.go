package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// MessageTTL only bounds memory; cached messages are immutable and never stale.
const MessageTTL = 30 * time.Minute

// Backend is the key/value surface MessageCache needs. *RedisCache satisfies it.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
}

// MessageCache caches messages by id. A nil cache or nil backend turns every
// call into a miss.
type MessageCache struct {
	backend Backend
}

// NewMessageCache creates a new message cache. Pass a nil *RedisCache to run
// without one.
func NewMessageCache(redis *RedisCache) *MessageCache {
	if redis == nil {
		return &MessageCache{}
	}
	return &MessageCache{backend: redis}
}

func NewMessageCacheWithBackend(b Backend) *MessageCache {
	return &MessageCache{backend: b}
}

func messageKey(id uuid.UUID) string {
	return "msg:" + id.String()
}

// GetMessage retrieves a cached message
func (mc *MessageCache) GetMessage(id uuid.UUID) (*models.Message, bool) {
	if mc == nil || mc.backend == nil {
		return nil, false
	}
	data, err := mc.backend.Get(messageKey(id))
	if err != nil || data == nil {
		return nil, false
	}

	var msg models.Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// SetMessage caches a committed message
func (mc *MessageCache) SetMessage(msg *models.Message) error {
	if mc == nil || mc.backend == nil || msg == nil {
		return nil
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return mc.backend.Set(messageKey(msg.ID), data, MessageTTL)
}
