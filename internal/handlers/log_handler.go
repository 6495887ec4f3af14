package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/httpx"
	"github.com/hesampakdaman/messaging/internal/middleware"
	"github.com/hesampakdaman/messaging/internal/models"
	"github.com/hesampakdaman/messaging/internal/service"
)

const defaultMaxPayloadBytes = 1 << 20

type publishRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type publishResponse struct {
	ID  uuid.UUID `json:"id"`
	Seq int64     `json:"seq"`
}

type messagesResponse struct {
	Messages []models.MessageResponse `json:"messages"`
}

type LogHandler struct {
	logs            *service.LogService
	exports         *service.ExportService
	maxPayloadBytes int
}

// NewLogHandler wires the channel log routes. exports may be nil.
func NewLogHandler(logs *service.LogService, exports *service.ExportService, maxPayloadBytes int) *LogHandler {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = defaultMaxPayloadBytes
	}
	return &LogHandler{
		logs:            logs,
		exports:         exports,
		maxPayloadBytes: maxPayloadBytes,
	}
}

// Register mounts the routes on r. publishGuard runs in front of publish only.
func (h *LogHandler) Register(r fiber.Router, publishGuard ...fiber.Handler) {
	publish := append(append([]fiber.Handler{}, publishGuard...), h.Publish)
	r.Post("/channels/:channel/publish", publish...)
	r.Get("/channels/:channel/messages/unread", h.ListUnread)
	r.Get("/channels/:channel/messages/from/:from_seq", h.ListFromSequence)
	r.Get("/channels/:channel", h.ChannelInfo)
	r.Post("/channels/:channel/export", h.Export)
	r.Post("/messages/:id/ack", h.Ack)
	r.Get("/messages/:id", h.GetMessage)
}

func (h *LogHandler) Publish(c *fiber.Ctx) error {
	var input publishRequest
	if err := json.Unmarshal(c.Body(), &input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if len(input.Payload) == 0 || string(input.Payload) == "null" {
		return httpx.Unprocessable(c, "missing_payload", "payload is required")
	}
	if len(input.Payload) > h.maxPayloadBytes {
		return httpx.Error(c, fiber.StatusRequestEntityTooLarge, "payload_too_large", "payload exceeds "+strconv.Itoa(h.maxPayloadBytes)+" bytes")
	}
	payload, err := models.NewPayload(input.Payload)
	if err != nil {
		return httpx.Unprocessable(c, "invalid_payload", "payload must be a JSON object")
	}

	msg, err := h.logs.Publish(c.UserContext(), c.Params("channel"), payload)
	if err != nil {
		return writeServiceError(c, err, "publish_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(publishResponse{ID: msg.ID, Seq: msg.Seq})
}

func (h *LogHandler) ListUnread(c *fiber.Ctx) error {
	consumer, ok := consumerFrom(c)
	if !ok {
		return httpx.BadRequest(c, "missing_consumer", "X-Consumer header is required")
	}
	messages, err := h.logs.ListUnread(c.UserContext(), c.Params("channel"), consumer)
	if err != nil {
		return writeServiceError(c, err, "list_unread_failed")
	}
	return c.JSON(messagesResponse{Messages: models.ToResponses(messages)})
}

func (h *LogHandler) ListFromSequence(c *fiber.Ctx) error {
	fromSeq, err := strconv.ParseInt(c.Params("from_seq"), 10, 64)
	if err != nil || fromSeq < 0 {
		return httpx.Unprocessable(c, "invalid_from_seq", "from_seq must be an integer >= 0")
	}
	messages, err := h.logs.ListFromSequence(c.UserContext(), c.Params("channel"), fromSeq)
	if err != nil {
		return writeServiceError(c, err, "list_from_sequence_failed")
	}
	return c.JSON(messagesResponse{Messages: models.ToResponses(messages)})
}

func (h *LogHandler) Ack(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.Unprocessable(c, "invalid_message_id", "message id must be a UUID")
	}
	consumer, ok := consumerFrom(c)
	if !ok {
		return httpx.BadRequest(c, "missing_consumer", "X-Consumer header is required")
	}
	if err := h.logs.Ack(c.UserContext(), id, consumer); err != nil {
		return writeServiceError(c, err, "ack_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *LogHandler) GetMessage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httpx.Unprocessable(c, "invalid_message_id", "message id must be a UUID")
	}
	msg, err := h.logs.GetMessage(c.UserContext(), id)
	if err != nil {
		return writeServiceError(c, err, "get_message_failed")
	}
	return c.JSON(msg.ToResponse())
}

func (h *LogHandler) ChannelInfo(c *fiber.Ctx) error {
	info, err := h.logs.ChannelInfo(c.UserContext(), c.Params("channel"))
	if err != nil {
		return writeServiceError(c, err, "channel_info_failed")
	}
	return c.JSON(info)
}

func (h *LogHandler) Export(c *fiber.Ctx) error {
	res, err := h.exports.Export(c.UserContext(), c.Params("channel"))
	if err != nil {
		if errors.Is(err, service.ErrExportNotConfigured) {
			return httpx.ServiceUnavailable(c, "export_unavailable", "Object storage is not configured")
		}
		return writeServiceError(c, err, "export_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// consumerFrom prefers the X-Consumer header and falls back to the token's
// consumer claim.
func consumerFrom(c *fiber.Ctx) (string, bool) {
	if v := strings.TrimSpace(c.Get(middleware.ConsumerHeader)); v != "" {
		return v, true
	}
	if v := httpx.LocalString(c, middleware.LocalConsumer); v != "" {
		return v, true
	}
	return "", false
}

func writeServiceError(c *fiber.Ctx, err error, code string) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return httpx.Unprocessable(c, "invalid_"+verr.Field, verr.Error())
	case errors.Is(err, service.ErrValidation):
		return httpx.Unprocessable(c, "invalid_request", err.Error())
	case errors.Is(err, service.ErrNotFound):
		return httpx.NotFound(c, "not_found", "Message not found")
	case errors.Is(err, service.ErrTransient):
		c.Set(fiber.HeaderRetryAfter, "1")
		return httpx.ServiceUnavailable(c, code, "Temporarily unavailable, retry")
	default:
		log.Printf("[http] %s %s: %v", c.Method(), c.Path(), err)
		return httpx.Internal(c, code)
	}
}
