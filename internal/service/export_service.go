package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/hesampakdaman/messaging/internal/storage"
	"github.com/hesampakdaman/messaging/internal/validation"
)

// ObjectStore is the slice of storage.S3Storage the exporter needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error)
}

var ErrExportNotConfigured = errors.New("export storage not configured")

type ExportResult struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	ETag  string `json:"etag,omitempty"`
}

// ExportService writes a channel's full history to object storage as JSON
// lines, one message per line in seq order.
type ExportService struct {
	logs   *LogService
	store  ObjectStore
	logger *slog.Logger
	now    func() time.Time
}

func NewExportService(logs *LogService, store ObjectStore, logger *slog.Logger) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{
		logs:   logs,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExportService) Export(ctx context.Context, channel string) (*ExportResult, error) {
	if s == nil || s.store == nil {
		return nil, ErrExportNotConfigured
	}
	messages, err := s.logs.ListFromSequence(ctx, channel, 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range messages {
		if err := enc.Encode(messages[i].ToResponse()); err != nil {
			return nil, fmt.Errorf("encode message %s: %w", messages[i].ID, err)
		}
	}

	key := ExportKey(validation.NormalizeChannel(channel), s.now())
	st, err := s.store.PutObject(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson")
	if err != nil {
		s.logger.Warn("export.failed", "channel", channel, "key", key, "error", err)
		return nil, fmt.Errorf("upload export: %w", err)
	}
	s.logger.Info("export.ok", "channel", channel, "key", key, "count", len(messages))
	return &ExportResult{Key: key, Count: len(messages), ETag: st.ETag}, nil
}

// ExportKey names the object for a channel snapshot taken at t.
func ExportKey(channel string, t time.Time) string {
	return fmt.Sprintf("exports/%s/%s.jsonl", url.PathEscape(channel), t.UTC().Format("20060102T150405.000Z"))
}
