package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)

	require.True(t, ValidateSignature("secret", body, sign("secret", body)))
	require.False(t, ValidateSignature("secret", body, sign("wrong", body)))
	require.False(t, ValidateSignature("secret", body, "garbage"))
}

func TestParseEvents(t *testing.T) {
	body := []byte(`{
		"events": [
			{
				"type": "message",
				"replyToken": "tok123",
				"source": {"type": "group", "userId": "U1", "groupId": "G1"},
				"message": {"id": "m1", "type": "text", "text": "/help"}
			}
		]
	}`)

	events, err := ParseEvents(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	require.Equal(t, "message", e.Type)
	require.Equal(t, "tok123", e.ReplyToken)
	require.Equal(t, "text", e.Message.Type)
	require.Equal(t, "/help", e.Message.Text)
	require.Equal(t, "G1", e.SenderID())
}

func TestSenderIDFallsBackToUser(t *testing.T) {
	var e Event
	e.Source.UserID = "U1"
	require.Equal(t, "U1", e.SenderID())
}

func TestParseEventsBadJSON(t *testing.T) {
	_, err := ParseEvents([]byte("not json"))
	require.Error(t, err)
}

func TestReplyAndPush(t *testing.T) {
	type call struct {
		path string
		auth string
		body map[string]any
	}
	var calls []call

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		calls = append(calls, call{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	require.NoError(t, c.Reply(context.Background(), "reply-token", "hello"))
	require.NoError(t, c.Push(context.Background(), "U1", "update"))

	require.Len(t, calls, 2)

	require.Equal(t, "/v2/bot/message/reply", calls[0].path)
	require.Equal(t, "Bearer tok", calls[0].auth)
	require.Equal(t, "reply-token", calls[0].body["replyToken"])

	require.Equal(t, "/v2/bot/message/push", calls[1].path)
	require.Equal(t, "U1", calls[1].body["to"])
}

func TestPushErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("bad")
	c.SetBaseURLs(srv.URL, srv.URL)

	err := c.Push(context.Background(), "U1", "update")
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
}

func TestMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/bot/message/m1/content", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	data, err := c.MessageContent(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, []byte("jpegbytes"), data)
}
