// Package backup mirrors group album images into cloud storage and keeps a
// JSON manifest of what was backed up alongside them.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/zonchen/homebot/pkg/dropbox"
)

const manifestName = "albums_record.json"

// Storage is the cloud storage the backups land in.
type Storage interface {
	Upload(ctx context.Context, path string, data []byte, overwrite bool) error
	Download(ctx context.Context, path string) ([]byte, error)
	EnsureFolder(ctx context.Context, path string) error
	SharedLink(ctx context.Context, path string) (string, error)
}

// Image is one backed-up image record.
type Image struct {
	Filename    string    `json:"filename"`
	OriginalURL string    `json:"original_url"`
	BackupPath  string    `json:"backup_path"`
	BackedUpAt  time.Time `json:"backed_up_at"`
}

// Album is the manifest record for one album.
type Album struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Images    []Image   `json:"images"`
}

// Service backs up album images and answers status queries.
type Service struct {
	mu       sync.Mutex
	storage  Storage
	client   *http.Client
	root     string
	manifest map[string]map[string]*Album // group -> album ID -> record
}

// New creates a Service rooted at root and loads the manifest from storage.
// A missing manifest is an empty one.
func New(ctx context.Context, storage Storage, root string) (*Service, error) {
	s := &Service{
		storage:  storage,
		client:   &http.Client{Timeout: 30 * time.Second},
		root:     root,
		manifest: make(map[string]map[string]*Album),
	}

	data, err := storage.Download(ctx, path.Join(root, manifestName))
	if errors.Is(err, dropbox.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	if err := json.Unmarshal(data, &s.manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return s, nil
}

// Backup downloads the image at imageURL and stores it under the group's
// album folder. Images already recorded for the album are skipped.
func (s *Service) Backup(ctx context.Context, group, albumID, albumName, imageURL string) (string, error) {
	filename := path.Base(imageURL)
	if i := strings.IndexByte(filename, '?'); i >= 0 {
		filename = filename[:i]
	}

	s.mu.Lock()
	backed := s.isBackedUp(group, albumID, filename)
	s.mu.Unlock()
	if backed {
		return "This image is already backed up.", nil
	}

	albumPath := path.Join(s.root, group, albumName)
	for _, p := range []string{s.root, path.Join(s.root, group), albumPath} {
		if err := s.storage.EnsureFolder(ctx, p); err != nil {
			return "", fmt.Errorf("ensure folder %s: %w", p, err)
		}
	}

	data, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	uploadPath := path.Join(albumPath, filename)
	if err := s.storage.Upload(ctx, uploadPath, data, false); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	s.mu.Lock()
	if s.manifest[group] == nil {
		s.manifest[group] = make(map[string]*Album)
	}
	album := s.manifest[group][albumID]
	if album == nil {
		album = &Album{Name: albumName, CreatedAt: time.Now().UTC()}
		s.manifest[group][albumID] = album
	}
	album.Images = append(album.Images, Image{
		Filename:    filename,
		OriginalURL: imageURL,
		BackupPath:  uploadPath,
		BackedUpAt:  time.Now().UTC(),
	})
	saveErr := s.saveManifestLocked(ctx)
	s.mu.Unlock()

	if saveErr != nil {
		return "", saveErr
	}
	return "Backup complete.", nil
}

// Status reports what has been backed up for a group, or for one album when
// albumID is non-empty.
func (s *Service) Status(group, albumID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	albums := s.manifest[group]
	if len(albums) == 0 {
		return "No albums backed up for this group yet."
	}

	if albumID != "" {
		album, ok := albums[albumID]
		if !ok {
			return "No backup record for this album."
		}
		return fmt.Sprintf("Album: %s\nCreated: %s\nImages backed up: %d",
			album.Name, album.CreatedAt.Format(time.RFC3339), len(album.Images))
	}

	var b strings.Builder
	b.WriteString("Album backups:\n\n")
	for _, album := range albums {
		fmt.Fprintf(&b, "📁 %s\nCreated: %s\nImages backed up: %d\n\n",
			album.Name, album.CreatedAt.Format(time.RFC3339), len(album.Images))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Link returns a shared link to the album's backup folder.
func (s *Service) Link(ctx context.Context, group, albumID string) (string, error) {
	s.mu.Lock()
	album, ok := s.manifest[group][albumID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no backup record for album %s", albumID)
	}

	url, err := s.storage.SharedLink(ctx, path.Join(s.root, group, album.Name))
	if err != nil {
		return "", fmt.Errorf("create shared link: %w", err)
	}
	return fmt.Sprintf("Backup link for %s:\n%s", album.Name, url), nil
}

func (s *Service) isBackedUp(group, albumID, filename string) bool {
	album, ok := s.manifest[group][albumID]
	if !ok {
		return false
	}
	for _, img := range album.Images {
		if img.Filename == filename {
			return true
		}
	}
	return false
}

func (s *Service) saveManifestLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := s.storage.Upload(ctx, path.Join(s.root, manifestName), data, true); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

func (s *Service) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image %s status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
