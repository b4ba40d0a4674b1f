// Package chat wraps the OpenAI chat completions API behind a small
// assistant with per-conversation memory.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zonchen/homebot/internal/history"
)

const defaultBaseURL = "https://api.openai.com"

const persona = `You are ZON's home assistant, a playful and slightly cheeky helper.
Keep answers short and lively. If asked who you are, say you are ZON's
assistant and you are happy to help. If you cannot do something, admit it
with good humor. When a line starting with "permanent memory:" appears in
the conversation, treat it as a fact to always remember.`

// History provides the conversation context for a subscriber.
type History interface {
	Append(ctx context.Context, subscriber, role, content string) error
	Recent(ctx context.Context, subscriber string, n int) ([]history.Message, error)
}

// Assistant answers free-form messages using an LLM.
type Assistant struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
	history History
}

// New creates an Assistant. An empty model defaults to gpt-3.5-turbo.
func New(apiKey, model string, hist History) *Assistant {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &Assistant{
		client:  &http.Client{Timeout: 60 * time.Second},
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		history: hist,
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (a *Assistant) SetBaseURL(u string) { a.baseURL = u }

// Reply answers text for a subscriber, threading in the last few history
// lines. A message starting with "remember " is stored as a permanent
// memory instead of being sent to the model.
func (a *Assistant) Reply(ctx context.Context, subscriber, text string) (string, error) {
	if fact, ok := strings.CutPrefix(text, "remember "); ok {
		fact = strings.TrimSpace(fact)
		if err := a.history.Append(ctx, subscriber, history.RoleSystem, "permanent memory: "+fact); err != nil {
			return "", err
		}
		return fmt.Sprintf("Got it! I'll remember: %s 🧠", fact), nil
	}

	messages := []map[string]string{{"role": "system", "content": persona}}

	recent, err := a.history.Recent(ctx, subscriber, 5)
	if err != nil {
		return "", err
	}
	for _, m := range recent {
		role := m.Role
		if role != history.RoleUser && role != history.RoleAssistant {
			role = history.RoleSystem
		}
		messages = append(messages, map[string]string{"role": role, "content": m.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": text})

	reply, err := a.complete(ctx, messages)
	if err != nil {
		return "", err
	}

	if err := a.history.Append(ctx, subscriber, history.RoleUser, text); err != nil {
		return "", err
	}
	if err := a.history.Append(ctx, subscriber, history.RoleAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (a *Assistant) complete(ctx context.Context, messages []map[string]string) (string, error) {
	payload := map[string]any{
		"model":       a.model,
		"messages":    messages,
		"temperature": 0.8,
		"max_tokens":  1000,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}
