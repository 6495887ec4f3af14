package ws

import (
	"bytes"
	"compress/gzip"
	"log"
	"sync"

	"github.com/hesampakdaman/messaging/internal/models"
)

// Subscriber receives encoded frames for one channel. Frames that do not fit
// in its buffer are dropped and the subscriber is closed; the live tail is
// best effort and consumers recover through the unread or replay queries.
type Subscriber struct {
	Channel      string
	SupportsGzip bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Frames yields encoded frames until the subscriber is closed.
func (s *Subscriber) Frames() <-chan []byte { return s.send }

// Done is closed when the hub drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub fans committed messages out to live-tail subscribers, per channel.
type Hub struct {
	mu         sync.RWMutex
	channels   map[string]map[*Subscriber]struct{}
	bufferSize int
}

// NewHub creates a new Hub instance
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		channels:   make(map[string]map[*Subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a subscriber for channel.
func (h *Hub) Subscribe(channel string, supportsGzip bool) *Subscriber {
	sub := &Subscriber{
		Channel:      channel,
		SupportsGzip: supportsGzip,
		send:         make(chan []byte, h.bufferSize),
		done:         make(chan struct{}),
	}
	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	count := len(subs)
	h.mu.Unlock()

	log.Printf("[ws] subscriber joined channel=%q (total: %d, gzip: %v)", channel, count, supportsGzip)
	return sub
}

// Unsubscribe removes sub and closes it. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.channels[sub.Channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.channels, sub.Channel)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Count returns the number of subscribers of channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Published implements service.Notifier. It never blocks on a subscriber.
func (h *Hub) Published(msg models.Message) {
	h.mu.RLock()
	subs := h.channels[msg.Channel]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Subscriber, 0, len(subs))
	for sub := range subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	frame, err := Serialize(FrameMessage, msg.ToResponse())
	if err != nil {
		log.Printf("[ws] encode message %s: %v", msg.ID, err)
		return
	}

	var slow []*Subscriber
	for _, sub := range targets {
		select {
		case <-sub.done:
		case sub.send <- frame:
		default:
			slow = append(slow, sub)
		}
	}
	for _, sub := range slow {
		log.Printf("[ws] dropping slow subscriber channel=%q", sub.Channel)
		h.Unsubscribe(sub)
	}
}

func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write(data); err != nil {
		return nil, err
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
