// Package feed fetches and parses RSS/Atom feeds.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry is one item within a feed. Published is nil when the feed omits a
// parsable timestamp.
type Entry struct {
	Title     string
	Link      string
	Published *time.Time
}

// Feed is a parsed syndication document.
type Feed struct {
	Title   string
	Entries []Entry
}

// Fetcher retrieves and parses feeds over HTTP with a bounded timeout.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewFetcher creates a Fetcher. A non-positive timeout defaults to 15s.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves the feed at url. A network timeout, a non-200 status and a
// structural parse error are all reported the same way: as an error for this
// attempt.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "homebot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", url, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	out := &Feed{Title: parsed.Title}
	for _, item := range parsed.Items {
		entry := Entry{Title: item.Title, Link: item.Link}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			entry.Published = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			entry.Published = &t
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}
