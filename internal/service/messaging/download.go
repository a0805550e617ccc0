package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrDownload marks a failure fetching an inbound media attachment.
var ErrDownload = errors.New("media download failed")

// Downloader fetches a remote media object to a local file.
type Downloader interface {
	Download(ctx context.Context, url, destPath string) error
}

// BasicAuthDownloader streams media URLs that require HTTP basic auth, as
// Twilio media endpoints do with the account credentials.
type BasicAuthDownloader struct {
	client   *http.Client
	username string
	password string
}

// NewBasicAuthDownloader builds a downloader authenticating with the given
// credentials and an overall request timeout.
func NewBasicAuthDownloader(username, password string, timeout time.Duration) *BasicAuthDownloader {
	return &BasicAuthDownloader{
		client:   &http.Client{Timeout: timeout},
		username: username,
		password: password,
	}
}

// Download fetches url into destPath, creating parent directories. On any
// failure the partial file is removed.
func (d *BasicAuthDownloader) Download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	req.SetBasicAuth(d.username, d.password)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s for %s", ErrDownload, resp.Status, url)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(destPath)
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if err := file.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return nil
}
