package store

import (
	"errors"
	"time"
)

// Subscription is one feed a subscriber follows. URL is the identity key
// within a subscriber's list.
type Subscription struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

var (
	// ErrAlreadySubscribed is returned when a subscriber already follows the URL.
	ErrAlreadySubscribed = errors.New("already subscribed to this feed")
	// ErrNotFound is returned for an unknown subscriber or an out-of-range index.
	ErrNotFound = errors.New("subscription not found")
)

// Store persists feed subscriptions and per-feed watermarks. Implementations
// must serialize mutations so a subscribe/unsubscribe request never races
// with a concurrent persist from the poller.
type Store interface {
	// Subscriptions returns a subscriber's feeds in insertion order.
	Subscriptions(subscriber string) []Subscription
	// AllSubscriptions returns every subscriber's feed list.
	AllSubscriptions() map[string][]Subscription
	// AddSubscription appends sub to the subscriber's list and persists the
	// registry. Returns ErrAlreadySubscribed on a duplicate URL; the list is
	// left unchanged in that case.
	AddSubscription(subscriber string, sub Subscription) error
	// RemoveSubscription removes the subscription at the zero-based index
	// and persists the registry. Returns ErrNotFound when the subscriber is
	// unknown or the index is out of bounds. The feed's watermark is left
	// untouched; orphaned watermarks are harmless.
	RemoveSubscription(subscriber string, index int) (Subscription, error)

	// Watermark returns the last-seen time for a feed URL. The second
	// return is false when no watermark exists yet.
	Watermark(url string) (time.Time, bool)
	// SetWatermark records the last-seen time for a feed URL and persists
	// the watermark map immediately.
	SetWatermark(url string, t time.Time) error
	// InitWatermark sets the watermark only if the URL has none yet.
	InitWatermark(url string, t time.Time) error

	Close() error
}
