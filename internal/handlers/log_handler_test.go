package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hesampakdaman/messaging/internal/middleware"
	"github.com/hesampakdaman/messaging/internal/models"
	"github.com/hesampakdaman/messaging/internal/repository"
	"github.com/hesampakdaman/messaging/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app   *fiber.App
	store *repository.MemoryStore
}

func newTestServer(t *testing.T, opts service.Options, jwtSecret string) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	logs := service.NewLogService(store, opts)
	app := fiber.New()
	app.Use(middleware.AuthRequired(jwtSecret))
	NewLogHandler(logs, nil, 64).Register(app)
	return &testServer{app: app, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) publish(t *testing.T, channel, payload string) publishResponse {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/channels/"+channel+"/publish", `{"payload":`+payload+`}`, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var out publishResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func decodeMessages(t *testing.T, body []byte) []models.MessageResponse {
	t.Helper()
	var out messagesResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Messages
}

func TestUnreadAndReplayScenario(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")

	var published []publishResponse
	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		published = append(published, s.publish(t, "orders", p))
	}
	for i, p := range published {
		assert.Equal(t, int64(i), p.Seq)
	}

	consumer := map[string]string{"X-Consumer": "billing"}
	resp, body := s.do(t, http.MethodPost, "/messages/"+published[1].ID.String()+"/ack", "", consumer)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", consumer)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	unread := decodeMessages(t, body)
	require.Len(t, unread, 2)
	assert.Equal(t, published[0].ID, unread[0].ID)
	assert.Equal(t, published[2].ID, unread[1].ID)

	resp, body = s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", map[string]string{"X-Consumer": "audit"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decodeMessages(t, body), 3)

	resp, body = s.do(t, http.MethodGet, "/channels/orders/messages/from/1", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	replay := decodeMessages(t, body)
	require.Len(t, replay, 2)
	assert.Equal(t, int64(1), replay[0].Seq)
	assert.JSONEq(t, `{"n":2}`, string(replay[0].Payload))
	assert.Equal(t, int64(2), replay[1].Seq)

	resp, body = s.do(t, http.MethodGet, "/channels/orders", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"channel":"orders","last_seq":2,"empty":false}`, string(body))
}

func TestEmptyResultsEncodeAsArray(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")

	resp, body := s.do(t, http.MethodGet, "/channels/quiet/messages/from/0", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"messages":[]}`, string(body))

	resp, body = s.do(t, http.MethodGet, "/channels/quiet/messages/unread", "", map[string]string{"X-Consumer": "c"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"messages":[]}`, string(body))

	resp, body = s.do(t, http.MethodGet, "/channels/quiet", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"channel":"quiet","last_seq":-1,"empty":true}`, string(body))
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")
	id := uuid.NewString()

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"unread without consumer", http.MethodGet, "/channels/orders/messages/unread", "", nil, fiber.StatusBadRequest, "missing_consumer"},
		{"ack without consumer", http.MethodPost, "/messages/" + id + "/ack", "", nil, fiber.StatusBadRequest, "missing_consumer"},
		{"ack bad id", http.MethodPost, "/messages/nope/ack", "", map[string]string{"X-Consumer": "c"}, fiber.StatusUnprocessableEntity, "invalid_message_id"},
		{"from_seq not a number", http.MethodGet, "/channels/orders/messages/from/abc", "", nil, fiber.StatusUnprocessableEntity, "invalid_from_seq"},
		{"from_seq negative", http.MethodGet, "/channels/orders/messages/from/-1", "", nil, fiber.StatusUnprocessableEntity, "invalid_from_seq"},
		{"publish malformed body", http.MethodPost, "/channels/orders/publish", `{`, nil, fiber.StatusBadRequest, "invalid_request_body"},
		{"publish missing payload", http.MethodPost, "/channels/orders/publish", `{}`, nil, fiber.StatusUnprocessableEntity, "missing_payload"},
		{"publish array payload", http.MethodPost, "/channels/orders/publish", `{"payload":[1]}`, nil, fiber.StatusUnprocessableEntity, "invalid_payload"},
		{"publish oversized payload", http.MethodPost, "/channels/orders/publish", `{"payload":{"k":"` + strings.Repeat("x", 100) + `"}}`, nil, fiber.StatusRequestEntityTooLarge, "payload_too_large"},
		{"get unknown message", http.MethodGet, "/messages/" + id, "", nil, fiber.StatusNotFound, "not_found"},
		{"export without storage", http.MethodPost, "/channels/orders/export", "", nil, fiber.StatusServiceUnavailable, "export_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			var errResp struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Equal(t, tt.code, errResp.Code)
		})
	}
}

func TestMissingConsumerDetail(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")
	resp, body := s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "X-Consumer header is required")
}

func TestAckRequireExisting(t *testing.T) {
	s := newTestServer(t, service.Options{AckRequireExisting: true}, "")
	consumer := map[string]string{"X-Consumer": "billing"}

	resp, _ := s.do(t, http.MethodPost, "/messages/"+uuid.NewString()+"/ack", "", consumer)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	p := s.publish(t, "orders", `{"n":1}`)
	resp, _ = s.do(t, http.MethodPost, "/messages/"+p.ID.String()+"/ack", "", consumer)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestAckUnknownMessageByDefault(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")
	resp, _ := s.do(t, http.MethodPost, "/messages/"+uuid.NewString()+"/ack", "", map[string]string{"X-Consumer": "billing"})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestGetMessage(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")
	p := s.publish(t, "orders", `{ "n" : 1 }`)

	resp, body := s.do(t, http.MethodGet, "/messages/"+p.ID.String(), "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got models.MessageResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "orders", got.Channel)
	assert.Equal(t, `{"n":1}`, string(got.Payload))
}

func TestClosedStoreIsInternalError(t *testing.T) {
	s := newTestServer(t, service.Options{}, "")
	require.NoError(t, s.store.Close())

	resp, _ := s.do(t, http.MethodPost, "/channels/orders/publish", `{"payload":{}}`, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func signToken(t *testing.T, secret, consumer string) string {
	t.Helper()
	claims := middleware.Claims{
		Consumer: consumer,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestConsumerFromToken(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, service.Options{}, secret)

	resp, _ := s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	auth := map[string]string{"Authorization": "Bearer " + signToken(t, secret, "billing")}
	resp, body := s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", auth)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	auth["X-Consumer"] = "audit"
	resp, _ = s.do(t, http.MethodGet, "/channels/orders/messages/unread", "", auth)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
