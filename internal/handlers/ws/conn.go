package ws

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/websocket/v2"
)

type ConnConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	AckTimeout   time.Duration
}

func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  90 * time.Second,
		WriteTimeout: 10 * time.Second,
		AckTimeout:   10 * time.Second,
	}
}

// Serve pumps sub's frames to conn and answers client frames until either
// side goes away. Only this goroutine writes to conn.
func Serve(conn *websocket.Conn, hub *Hub, sub *Subscriber, consumer string, acker Acker, cfg ConnConfig) {
	defer hub.Unsubscribe(sub)

	stop := make(chan struct{})
	defer close(stop)
	replies := make(chan []byte, 16)
	readerDone := make(chan struct{})

	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	go func() {
		defer close(readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))

			ctx, cancel := context.WithTimeout(context.Background(), cfg.AckTimeout)
			reply := handleFrame(ctx, data, consumer, acker)
			cancel()
			if reply == nil {
				continue
			}
			select {
			case replies <- reply:
			case <-stop:
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
				time.Now().Add(cfg.WriteTimeout))
			return
		case frame := <-sub.Frames():
			if err := write(conn, frame, sub.SupportsGzip, cfg.WriteTimeout); err != nil {
				log.Printf("[ws] write to channel=%q subscriber failed: %v", sub.Channel, err)
				return
			}
		case reply := <-replies:
			if err := write(conn, reply, false, cfg.WriteTimeout); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(cfg.WriteTimeout)); err != nil {
				log.Printf("[ws] ping failed channel=%q: %v", sub.Channel, err)
				return
			}
		}
	}
}

// write compresses frames over 512 bytes when the client asked for gzip.
func write(conn *websocket.Conn, data []byte, gzip bool, timeout time.Duration) error {
	frameType := websocket.TextMessage
	if gzip && len(data) > 512 {
		if compressed, err := compressData(data); err == nil && len(compressed) < len(data) {
			data = compressed
			frameType = websocket.BinaryMessage
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(frameType, data)
}
