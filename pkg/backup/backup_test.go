package backup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zonchen/homebot/pkg/dropbox"
)

// fakeStorage is an in-memory Storage.
type fakeStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	folders map[string]bool
	links   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		files:   make(map[string][]byte),
		folders: make(map[string]bool),
		links:   make(map[string]string),
	}
}

func (f *fakeStorage) Upload(_ context.Context, path string, data []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	return nil
}

func (f *fakeStorage) Download(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, dropbox.ErrNotFound
	}
	return data, nil
}

func (f *fakeStorage) EnsureFolder(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folders[path] = true
	return nil
}

func (f *fakeStorage) SharedLink(_ context.Context, path string) (string, error) {
	return "https://dropbox.example.com/s/" + path, nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegbytes"))
	}))
}

func TestBackupStoresImageAndManifest(t *testing.T) {
	storage := newFakeStorage()
	srv := imageServer(t)
	defer srv.Close()

	s, err := New(context.Background(), storage, "/LineGroupAlbums")
	require.NoError(t, err)

	msg, err := s.Backup(context.Background(), "G1", "a1", "Trip 2025", srv.URL+"/photo1.jpg")
	require.NoError(t, err)
	require.Equal(t, "Backup complete.", msg)

	require.Equal(t, []byte("jpegbytes"), storage.files["/LineGroupAlbums/G1/Trip 2025/photo1.jpg"])
	require.True(t, storage.folders["/LineGroupAlbums/G1/Trip 2025"])

	raw, ok := storage.files["/LineGroupAlbums/albums_record.json"]
	require.True(t, ok)
	var manifest map[string]map[string]*Album
	require.NoError(t, json.Unmarshal(raw, &manifest))
	require.Equal(t, "Trip 2025", manifest["G1"]["a1"].Name)
	require.Len(t, manifest["G1"]["a1"].Images, 1)
	require.Equal(t, "photo1.jpg", manifest["G1"]["a1"].Images[0].Filename)
}

func TestBackupSkipsDuplicates(t *testing.T) {
	storage := newFakeStorage()
	srv := imageServer(t)
	defer srv.Close()

	s, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)

	_, err = s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg?x=1")
	require.NoError(t, err)

	// Query string differs but the filename is the same.
	msg, err := s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg?x=2")
	require.NoError(t, err)
	require.Equal(t, "This image is already backed up.", msg)
}

func TestManifestSurvivesReload(t *testing.T) {
	storage := newFakeStorage()
	srv := imageServer(t)
	defer srv.Close()

	s, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)
	_, err = s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg")
	require.NoError(t, err)

	reloaded, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)

	msg, err := reloaded.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg")
	require.NoError(t, err)
	require.Equal(t, "This image is already backed up.", msg)
}

func TestStatus(t *testing.T) {
	storage := newFakeStorage()
	srv := imageServer(t)
	defer srv.Close()

	s, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)

	require.Equal(t, "No albums backed up for this group yet.", s.Status("G1", ""))

	_, err = s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg")
	require.NoError(t, err)

	require.Contains(t, s.Status("G1", ""), "Trip")
	require.Contains(t, s.Status("G1", "a1"), "Images backed up: 1")
	require.Equal(t, "No backup record for this album.", s.Status("G1", "missing"))
}

func TestLink(t *testing.T) {
	storage := newFakeStorage()
	srv := imageServer(t)
	defer srv.Close()

	s, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)

	_, err = s.Link(context.Background(), "G1", "a1")
	require.Error(t, err)

	_, err = s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg")
	require.NoError(t, err)

	link, err := s.Link(context.Background(), "G1", "a1")
	require.NoError(t, err)
	require.Contains(t, link, "https://dropbox.example.com/s//root/G1/Trip")
}

func TestBackupImageFetchFailure(t *testing.T) {
	storage := newFakeStorage()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := New(context.Background(), storage, "/root")
	require.NoError(t, err)

	_, err = s.Backup(context.Background(), "G1", "a1", "Trip", srv.URL+"/photo1.jpg")
	require.Error(t, err)

	// Nothing recorded for a failed backup.
	require.Equal(t, "No albums backed up for this group yet.", s.Status("G1", ""))
}
