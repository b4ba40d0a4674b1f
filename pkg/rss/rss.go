// Package rss implements feed subscriptions and the recurring update check.
package rss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zonchen/homebot/internal/store"
	"github.com/zonchen/homebot/pkg/feed"
)

// ErrInvalidFeed is returned by Add when the address does not parse as a feed.
var ErrInvalidFeed = errors.New("invalid feed address")

// Fetcher retrieves and parses a feed at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*feed.Feed, error)
}

// Notifier delivers a text message to a subscriber. Delivery is best-effort:
// a failed push is logged and not retried, so the missed entries will not
// reappear on the next cycle.
type Notifier interface {
	Push(ctx context.Context, to, text string) error
}

// Service owns the subscription registry and the per-feed watermarks.
type Service struct {
	store    store.Store
	fetcher  Fetcher
	notifier Notifier
	now      func() time.Time

	checking atomic.Bool
}

// New creates a Service.
func New(st store.Store, fetcher Fetcher, notifier Notifier) *Service {
	return &Service{
		store:    st,
		fetcher:  fetcher,
		notifier: notifier,
		now:      time.Now,
	}
}

// Add validates the feed at url, subscribes subscriber to it and initializes
// the feed's watermark to the current time, so entries published before
// subscribing are never surfaced. When name is empty the feed's own title is
// used, falling back to the raw URL.
func (s *Service) Add(ctx context.Context, subscriber, url, name string) (string, error) {
	parsed, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidFeed, url)
	}

	if name == "" {
		name = parsed.Title
	}
	if name == "" {
		name = url
	}

	if err := s.store.AddSubscription(subscriber, store.Subscription{URL: url, Name: name}); err != nil {
		return "", err
	}
	// Registry and watermark are two separate writes. A crash in between
	// leaves the watermark missing; CheckUpdates re-initializes it to "now"
	// on the next cycle.
	if err := s.store.InitWatermark(url, s.now()); err != nil {
		return "", fmt.Errorf("init watermark: %w", err)
	}
	return name, nil
}

// Remove unsubscribes by zero-based position in the subscriber's current
// list and returns the removed feed's display name. Indices are ephemeral;
// two racing removals can target the wrong entry, accepted for this
// single-writer deployment.
func (s *Service) Remove(subscriber string, index int) (string, error) {
	removed, err := s.store.RemoveSubscription(subscriber, index)
	if err != nil {
		return "", err
	}
	return removed.Name, nil
}

// List returns the subscriber's feeds in insertion order.
func (s *Service) List(subscriber string) []store.Subscription {
	return s.store.Subscriptions(subscriber)
}

// CheckUpdates runs one poll cycle over every subscriber and every one of
// their feeds. One feed's failure never aborts the cycle for the others. If
// a cycle is still running when the next one is requested, the new request
// is skipped.
func (s *Service) CheckUpdates(ctx context.Context) {
	if !s.checking.CompareAndSwap(false, true) {
		fmt.Fprintln(os.Stderr, "rss: previous check still running, skipping")
		return
	}
	defer s.checking.Store(false)

	for subscriber, subs := range s.store.AllSubscriptions() {
		for _, sub := range subs {
			s.checkFeed(ctx, subscriber, sub)
		}
	}
}

func (s *Service) checkFeed(ctx context.Context, subscriber string, sub store.Subscription) {
	parsed, err := s.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		// Malformed or unreachable feed: no watermark advance, retried
		// next cycle.
		fmt.Fprintf(os.Stderr, "rss: check %s: %v\n", sub.URL, err)
		return
	}

	watermark, ok := s.store.Watermark(sub.URL)
	if !ok {
		// Registry got ahead of the watermark map (crash between the two
		// writes in Add). Start from now, same default as subscribe time.
		watermark = s.now()
		if err := s.store.SetWatermark(sub.URL, watermark); err != nil {
			fmt.Fprintf(os.Stderr, "rss: init watermark %s: %v\n", sub.URL, err)
		}
		return
	}

	var fresh []feed.Entry
	for _, entry := range parsed.Entries {
		if entry.Published == nil {
			fmt.Fprintf(os.Stderr, "rss: %s: entry %q has no parsable timestamp, skipping\n", sub.URL, entry.Title)
			continue
		}
		if entry.Published.After(watermark) {
			fresh = append(fresh, entry)
		}
	}

	if len(fresh) > 0 {
		msg := formatUpdate(sub.Name, fresh)
		if err := s.notifier.Push(ctx, subscriber, msg); err != nil {
			// At-most-once delivery: the watermark advances below anyway.
			fmt.Fprintf(os.Stderr, "rss: notify %s: %v\n", subscriber, err)
		}
	}

	// Advance regardless of whether anything was new, one durable write per
	// feed, so a crash mid-cycle leaves processed feeds advanced and the
	// rest untouched for the next cycle.
	if err := s.store.SetWatermark(sub.URL, s.now()); err != nil {
		fmt.Fprintf(os.Stderr, "rss: advance watermark %s: %v\n", sub.URL, err)
	}
}

// formatUpdate renders a notification with at most the five most recent
// entries.
func formatUpdate(name string, entries []feed.Entry) string {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Published.After(*entries[j].Published)
	})
	if len(entries) > 5 {
		entries = entries[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New from %s:\n", name)
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s\n%s\n", e.Title, e.Link)
	}
	return b.String()
}
