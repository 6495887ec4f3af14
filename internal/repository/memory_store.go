package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/models"
)

var errStoreClosed = fmt.Errorf("%w: memory store closed", ErrStoreUnavailable)

type markKey struct {
	messageID uuid.UUID
	consumer  string
}

// MemoryStore is a non-persistent Store. Appends to one channel serialize on
// that channel's lock, which a transaction holds from its first append until
// it commits or rolls back, mirroring the row lock Postgres takes on
// channel_counters. Channels never share a lock.
type MemoryStore struct {
	mu       sync.RWMutex
	logs     map[string][]models.Message
	counters map[string]int64
	byID     map[uuid.UUID]models.Message
	marks    map[markKey]models.ReadMark
	closed   bool

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:     make(map[string][]models.Message),
		counters: make(map[string]int64),
		byID:     make(map[uuid.UUID]models.Message),
		marks:    make(map[markKey]models.ReadMark),
		locks:    make(map[string]chan struct{}),
	}
}

func (s *MemoryStore) Transaction(ctx context.Context, mode TxMode, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Ping(ctx); err != nil {
		return err
	}

	tx := &memoryTx{
		ctx:      ctx,
		store:    s,
		readOnly: mode == ReadOnly,
		next:     make(map[string]int64),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) channelLock(channel string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[channel]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[channel] = l
	}
	return l
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	for _, msg := range tx.appended {
		if _, dup := s.byID[msg.ID]; dup {
			return fmt.Errorf("duplicate message id %s", msg.ID)
		}
	}
	for _, msg := range tx.appended {
		s.logs[msg.Channel] = append(s.logs[msg.Channel], msg)
		s.byID[msg.ID] = msg
		s.counters[msg.Channel] = msg.Seq
	}
	for _, mark := range tx.marks {
		s.marks[markKey{messageID: mark.MessageID, consumer: mark.Consumer}] = mark
	}
	return nil
}

// memoryTx stages writes until commit. Its reads see committed state only;
// each operation runs in its own transaction so nothing reads its own writes.
type memoryTx struct {
	ctx      context.Context
	store    *MemoryStore
	readOnly bool

	held     []chan struct{}
	heldFor  map[string]bool
	next     map[string]int64
	appended []models.Message
	marks    []models.ReadMark
}

func (t *memoryTx) lockChannel(channel string) error {
	if t.heldFor[channel] {
		return nil
	}
	l := t.store.channelLock(channel)
	select {
	case l <- struct{}{}:
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
	if t.heldFor == nil {
		t.heldFor = make(map[string]bool)
	}
	t.heldFor[channel] = true
	t.held = append(t.held, l)
	return nil
}

func (t *memoryTx) release() {
	for _, l := range t.held {
		<-l
	}
	t.held = nil
	t.heldFor = nil
}

func (t *memoryTx) Append(msg *models.Message) error {
	if t.readOnly {
		return ErrReadOnly
	}
	if err := t.lockChannel(msg.Channel); err != nil {
		return err
	}

	seq, staged := t.next[msg.Channel]
	if staged {
		seq++
	} else {
		t.store.mu.RLock()
		last, ok := t.store.counters[msg.Channel]
		t.store.mu.RUnlock()
		if ok {
			seq = last + 1
		}
	}

	msg.Seq = seq
	t.next[msg.Channel] = seq
	stored := *msg
	stored.Payload = append(models.Payload(nil), msg.Payload...)
	t.appended = append(t.appended, stored)
	return nil
}

func (t *memoryTx) MarkRead(messageID uuid.UUID, consumer string, readAt time.Time) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.marks = append(t.marks, models.ReadMark{MessageID: messageID, Consumer: consumer, ReadAt: readAt})
	return nil
}

func (t *memoryTx) ListUnread(channel, consumer string) ([]models.Message, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var out []models.Message
	for _, msg := range t.store.logs[channel] {
		if _, read := t.store.marks[markKey{messageID: msg.ID, consumer: consumer}]; read {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (t *memoryTx) ListFromSequence(channel string, fromSeq int64) ([]models.Message, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	log := t.store.logs[channel]
	i := sort.Search(len(log), func(i int) bool { return log[i].Seq >= fromSeq })
	if i == len(log) {
		return nil, nil
	}
	out := make([]models.Message, len(log)-i)
	copy(out, log[i:])
	return out, nil
}

func (t *memoryTx) FindMessage(id uuid.UUID) (*models.Message, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	msg, ok := t.store.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &msg, nil
}

func (t *memoryTx) ChannelInfo(channel string) (models.ChannelInfo, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	last, ok := t.store.counters[channel]
	if !ok {
		return models.ChannelInfo{Channel: channel, LastSeq: -1, Empty: true}, nil
	}
	return models.ChannelInfo{Channel: channel, LastSeq: last}, nil
}
