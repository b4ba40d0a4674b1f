// Package news wraps the NewsAPI top headlines endpoint.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://newsapi.org"

// Service calls the news provider.
type Service struct {
	client  *http.Client
	apiKey  string
	country string
	baseURL string
}

// New creates a news Service for a country code.
func New(apiKey, country string) *Service {
	if country == "" {
		country = "tw"
	}
	return &Service{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		country: country,
		baseURL: defaultBaseURL,
	}
}

// SetBaseURL overrides the provider endpoint. Used in tests.
func (s *Service) SetBaseURL(u string) { s.baseURL = u }

// TopHeadlines returns a reply listing the top five headlines.
func (s *Service) TopHeadlines(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("country", s.country)
	q.Set("apiKey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v2/top-headlines?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create news request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch news: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news status %d", resp.StatusCode)
	}

	var result struct {
		Status   string `json:"status"`
		Articles []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode news: %w", err)
	}
	if result.Status != "ok" {
		return "", fmt.Errorf("news status %q", result.Status)
	}
	if len(result.Articles) == 0 {
		return "No headlines right now.", nil
	}

	articles := result.Articles
	if len(articles) > 5 {
		articles = articles[:5]
	}

	var b strings.Builder
	b.WriteString("Top headlines:\n\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, a.Title, a.URL)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
