package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/hesampakdaman/messaging/internal/handlers/ws"
	"github.com/hesampakdaman/messaging/internal/httpx"
	"github.com/hesampakdaman/messaging/internal/middleware"
	"github.com/hesampakdaman/messaging/internal/validation"
)

const (
	localChannel  = "ws_channel"
	localConsumer = "ws_consumer"
)

type WebSocketHandler struct {
	hub   *ws.Hub
	acker ws.Acker
	cfg   ws.ConnConfig
}

func NewWebSocketHandler(hub *ws.Hub, acker ws.Acker, cfg ws.ConnConfig) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, acker: acker, cfg: cfg}
}

// Upgrade validates the channel and consumer before the handshake, so bad
// requests get a normal HTTP error instead of a closed socket.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	channel := validation.NormalizeChannel(c.Params("channel"))
	if !validation.ValidateChannel(channel) {
		return httpx.Unprocessable(c, "invalid_channel", "invalid channel")
	}
	consumer := strings.TrimSpace(c.Query("consumer"))
	if consumer == "" {
		consumer = httpx.LocalString(c, middleware.LocalConsumer)
	} else if claim := httpx.LocalString(c, middleware.LocalConsumer); claim != "" && claim != consumer {
		return httpx.Forbidden(c, "consumer_mismatch", "consumer does not match token")
	}
	if consumer != "" && !validation.ValidateConsumer(validation.NormalizeConsumer(consumer)) {
		return httpx.Unprocessable(c, "invalid_consumer", "invalid consumer")
	}
	c.Locals(localChannel, channel)
	c.Locals(localConsumer, consumer)
	return c.Next()
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	channel, _ := c.Locals(localChannel).(string)
	consumer, _ := c.Locals(localConsumer).(string)

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	sub := h.hub.Subscribe(channel, supportsGzip)
	ws.Serve(c, h.hub, sub, consumer, h.acker, h.cfg)
}
