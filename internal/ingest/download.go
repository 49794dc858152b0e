package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fetcher streams a remote payload into a new local file.
type Fetcher interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, userAgent: strings.TrimSpace(userAgent)}
}

// Download creates dst exclusively and removes it again on any failure, so a
// failed attempt never leaves a partial file behind.
func (f *HTTPFetcher) Download(ctx context.Context, url, dst string) (written int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	file, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	written, err = io.Copy(file, resp.Body)
	if err != nil {
		_ = file.Close()
		return written, fmt.Errorf("write staging file: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = file.Close()
		return written, fmt.Errorf("write staging file: %w", io.ErrUnexpectedEOF)
	}
	if err = errors.Join(file.Sync(), file.Close()); err != nil {
		return written, fmt.Errorf("flush staging file: %w", err)
	}
	return written, nil
}
