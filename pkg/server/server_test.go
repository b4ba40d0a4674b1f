package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zonchen/homebot/pkg/line"
)

type recordingHandler struct {
	events []line.Event
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev line.Event) {
	h.events = append(h.events, ev)
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestCallbackDispatchesEvents(t *testing.T) {
	h := &recordingHandler{}
	srv := New("secret", h, 8080)

	body := `{
		"events": [
			{"type": "message", "replyToken": "t1",
			 "source": {"type": "user", "userId": "U1"},
			 "message": {"id": "m1", "type": "text", "text": "/help"}}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("secret", []byte(body)))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.Len(t, h.events, 1)
	require.Equal(t, "/help", h.events[0].Message.Text)
}

func TestCallbackRejectsBadSignature(t *testing.T) {
	h := &recordingHandler{}
	srv := New("secret", h, 8080)

	body := `{"events": []}`
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("wrong-secret", []byte(body)))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, h.events)
}

func TestCallbackRejectsBadPayload(t *testing.T) {
	h := &recordingHandler{}
	srv := New("secret", h, 8080)

	body := "not json"
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("secret", []byte(body)))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := New("secret", &recordingHandler{}, 8080)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestRoot(t *testing.T) {
	srv := New("secret", &recordingHandler{}, 8080)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "homebot is running!")
}
