// Package line is a minimal client for the LINE Messaging API: reply and
// push of text messages, image content download and webhook event parsing.
package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIURL  = "https://api.line.me"
	defaultDataURL = "https://api-data.line.me"
)

// Event is one webhook event. Only the fields the bot consumes are modeled.
type Event struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
	} `json:"source"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// SenderID returns the conversation the event came from: the group when the
// message was sent in one, the user otherwise.
func (e Event) SenderID() string {
	if e.Source.GroupID != "" {
		return e.Source.GroupID
	}
	return e.Source.UserID
}

// Client talks to the LINE Messaging API.
type Client struct {
	client  *http.Client
	token   string
	apiURL  string
	dataURL string
}

// New creates a Client authenticated with the channel access token.
func New(token string) *Client {
	return &Client{
		client:  &http.Client{Timeout: 10 * time.Second},
		token:   token,
		apiURL:  defaultAPIURL,
		dataURL: defaultDataURL,
	}
}

// SetBaseURLs overrides the API endpoints. Used in tests.
func (c *Client) SetBaseURLs(apiURL, dataURL string) {
	c.apiURL = apiURL
	c.dataURL = dataURL
}

// Reply answers a webhook event with a text message.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   []map[string]string{{"type": "text", "text": text}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

// Push sends a text message to a user or group without a reply token. This
// is the delivery path the feed poller uses.
func (c *Client) Push(ctx context.Context, to, text string) error {
	payload := map[string]any{
		"to":       to,
		"messages": []map[string]string{{"type": "text", "text": text}},
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call line %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line %s status %d: %s", path, resp.StatusCode, msg)
	}
	return nil
}

// MessageContent downloads the binary content of a message (an image).
func (c *Client) MessageContent(ctx context.Context, messageID string) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message content %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("message content %s status %d", messageID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ValidateSignature checks the X-Line-Signature header against the request
// body: base64 of an HMAC-SHA256 over the raw body, keyed with the channel
// secret.
func ValidateSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ParseEvents decodes a webhook request body.
func ParseEvents(body []byte) ([]Event, error) {
	var payload struct {
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	return payload.Events, nil
}
