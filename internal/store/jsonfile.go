package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JSONFileStore implements Store using two JSON files: one for the
// subscriber registry and one for the watermark map. Each file holds a
// single top-level JSON object and is rewritten in full on every mutation.
type JSONFileStore struct {
	mu sync.Mutex

	feedsPath      string
	watermarksPath string

	feeds      map[string][]Subscription
	watermarks map[string]int64 // feed URL -> unix seconds, UTC
}

// NewJSONFileStore loads both files, treating a missing file as an empty map.
func NewJSONFileStore(feedsPath, watermarksPath string) (*JSONFileStore, error) {
	s := &JSONFileStore{
		feedsPath:      feedsPath,
		watermarksPath: watermarksPath,
		feeds:          make(map[string][]Subscription),
		watermarks:     make(map[string]int64),
	}
	if err := loadJSON(feedsPath, &s.feeds); err != nil {
		return nil, fmt.Errorf("load feeds %s: %w", feedsPath, err)
	}
	if err := loadJSON(watermarksPath, &s.watermarks); err != nil {
		return nil, fmt.Errorf("load watermarks %s: %w", watermarksPath, err)
	}
	return s, nil
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONFileStore) Subscriptions(subscriber string) []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.feeds[subscriber]
	out := make([]Subscription, len(subs))
	copy(out, subs)
	return out
}

func (s *JSONFileStore) AllSubscriptions() map[string][]Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Subscription, len(s.feeds))
	for subscriber, subs := range s.feeds {
		cp := make([]Subscription, len(subs))
		copy(cp, subs)
		out[subscriber] = cp
	}
	return out
}

func (s *JSONFileStore) AddSubscription(subscriber string, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.feeds[subscriber] {
		if existing.URL == sub.URL {
			return ErrAlreadySubscribed
		}
	}
	s.feeds[subscriber] = append(s.feeds[subscriber], sub)
	if err := writeJSON(s.feedsPath, s.feeds); err != nil {
		return fmt.Errorf("persist feeds: %w", err)
	}
	return nil
}

func (s *JSONFileStore) RemoveSubscription(subscriber string, index int) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs, ok := s.feeds[subscriber]
	if !ok || index < 0 || index >= len(subs) {
		return Subscription{}, ErrNotFound
	}
	removed := subs[index]
	s.feeds[subscriber] = append(subs[:index], subs[index+1:]...)
	if err := writeJSON(s.feedsPath, s.feeds); err != nil {
		return Subscription{}, fmt.Errorf("persist feeds: %w", err)
	}
	return removed, nil
}

func (s *JSONFileStore) Watermark(url string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.watermarks[url]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

func (s *JSONFileStore) SetWatermark(url string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[url] = t.UTC().Unix()
	if err := writeJSON(s.watermarksPath, s.watermarks); err != nil {
		return fmt.Errorf("persist watermarks: %w", err)
	}
	return nil
}

func (s *JSONFileStore) InitWatermark(url string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watermarks[url]; ok {
		return nil
	}
	s.watermarks[url] = t.UTC().Unix()
	if err := writeJSON(s.watermarksPath, s.watermarks); err != nil {
		return fmt.Errorf("persist watermarks: %w", err)
	}
	return nil
}

func (s *JSONFileStore) Close() error { return nil }
