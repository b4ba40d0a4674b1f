// Package dropbox is a minimal client for the Dropbox HTTP API covering
// what the backup flows need: upload, download, folder management and
// shared links.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIURL     = "https://api.dropboxapi.com"
	defaultContentURL = "https://content.dropboxapi.com"
)

// ErrNotFound is returned when a path does not exist.
var ErrNotFound = errors.New("dropbox path not found")

// Client talks to the Dropbox API.
type Client struct {
	client     *http.Client
	token      string
	apiURL     string
	contentURL string
}

// New creates a Client authenticated with an access token.
func New(token string) *Client {
	return &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		token:      token,
		apiURL:     defaultAPIURL,
		contentURL: defaultContentURL,
	}
}

// SetBaseURLs overrides the API endpoints. Used in tests.
func (c *Client) SetBaseURLs(apiURL, contentURL string) {
	c.apiURL = apiURL
	c.contentURL = contentURL
}

// Upload writes data to path. With overwrite false an existing file at the
// path is an error.
func (c *Client) Upload(ctx context.Context, path string, data []byte, overwrite bool) error {
	mode := "add"
	if overwrite {
		mode = "overwrite"
	}
	arg, _ := json.Marshal(map[string]any{"path": path, "mode": mode})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentURL+"/2/files/upload", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload %s status %d: %s", path, resp.StatusCode, msg)
	}
	return nil
}

// Download reads the file at path.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	arg, _ := json.Marshal(map[string]string{"path": path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.contentURL+"/2/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// EnsureFolder creates the folder at path if it does not exist yet.
func (c *Client) EnsureFolder(ctx context.Context, path string) error {
	var meta json.RawMessage
	err := c.rpc(ctx, "/2/files/get_metadata", map[string]string{"path": path}, &meta)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return c.rpc(ctx, "/2/files/create_folder_v2", map[string]string{"path": path}, nil)
}

// ListFolder returns the display paths of entries directly under path.
func (c *Client) ListFolder(ctx context.Context, path string) ([]string, error) {
	var resp struct {
		Entries []struct {
			PathDisplay string `json:"path_display"`
		} `json:"entries"`
	}
	if err := c.rpc(ctx, "/2/files/list_folder", map[string]string{"path": path}, &resp); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		paths = append(paths, e.PathDisplay)
	}
	return paths, nil
}

// SharedLink creates a shared link for path and returns its URL.
func (c *Client) SharedLink(ctx context.Context, path string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.rpc(ctx, "/2/sharing/create_shared_link_with_settings",
		map[string]any{"path": path}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) rpc(ctx context.Context, path string, arg any, out any) error {
	body, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("marshal dropbox arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create dropbox request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call dropbox %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dropbox %s status %d: %s", path, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode dropbox %s: %w", path, err)
		}
	}
	return nil
}
