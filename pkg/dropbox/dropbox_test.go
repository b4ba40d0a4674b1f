package dropbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	var gotArg map[string]any
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/files/upload", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &gotArg))
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	require.NoError(t, c.Upload(context.Background(), "/a/b.jpg", []byte("bytes"), false))
	require.Equal(t, "/a/b.jpg", gotArg["path"])
	require.Equal(t, "add", gotArg["mode"])
	require.Equal(t, []byte("bytes"), gotBody)

	require.NoError(t, c.Upload(context.Background(), "/a/b.jpg", []byte("bytes"), true))
	require.Equal(t, "overwrite", gotArg["mode"])
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/files/download", r.URL.Path)
		var arg map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg))
		if arg["path"] != "/exists.json" {
			http.Error(w, `{"error_summary": "path/not_found/"}`, http.StatusConflict)
			return
		}
		w.Write([]byte("contents"))
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	data, err := c.Download(context.Background(), "/exists.json")
	require.NoError(t, err)
	require.Equal(t, []byte("contents"), data)

	_, err = c.Download(context.Background(), "/missing.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureFolderCreatesOnlyWhenMissing(t *testing.T) {
	var created []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var arg map[string]string
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &arg)

		switch r.URL.Path {
		case "/2/files/get_metadata":
			if arg["path"] == "/existing" {
				w.Write([]byte(`{".tag": "folder"}`))
				return
			}
			http.Error(w, `{"error_summary": "path/not_found/"}`, http.StatusConflict)
		case "/2/files/create_folder_v2":
			created = append(created, arg["path"])
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected call: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	require.NoError(t, c.EnsureFolder(context.Background(), "/existing"))
	require.Empty(t, created)

	require.NoError(t, c.EnsureFolder(context.Background(), "/new"))
	require.Equal(t, []string{"/new"}, created)
}

func TestListFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/files/list_folder", r.URL.Path)
		w.Write([]byte(`{"entries": [
			{"path_display": "/a/one.jpg"},
			{"path_display": "/a/two.jpg"}
		]}`))
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	paths, err := c.ListFolder(context.Background(), "/a")
	require.NoError(t, err)
	require.Equal(t, []string{"/a/one.jpg", "/a/two.jpg"}, paths)
}

func TestSharedLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/sharing/create_shared_link_with_settings", r.URL.Path)
		w.Write([]byte(`{"url": "https://www.dropbox.com/sh/abc"}`))
	}))
	defer srv.Close()

	c := New("tok")
	c.SetBaseURLs(srv.URL, srv.URL)

	url, err := c.SharedLink(context.Background(), "/a")
	require.NoError(t, err)
	require.Equal(t, "https://www.dropbox.com/sh/abc", url)
}
