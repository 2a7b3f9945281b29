package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPStore serves assets from an HTTP(S) base URL, the deployment mode
// where rasters and city data sit behind a plain web server or CDN.
type HTTPStore struct {
	client  *resty.Client
	baseURL string
}

// NewHTTPStore creates a store reading below the given base URL.
func NewHTTPStore(baseURL string) *HTTPStore {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(2 * time.Second)

	return &HTTPStore{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Close is a no-op for HTTP storage.
func (h *HTTPStore) Close() error {
	return nil
}

func (h *HTTPStore) url(filePath string) string {
	return h.baseURL + "/" + strings.TrimPrefix(filePath, "/")
}

// GetFile retrieves a file from the base URL.
func (h *HTTPStore) GetFile(ctx context.Context, filePath string) ([]byte, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Get(h.url(filePath))

	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", h.url(filePath), err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, &NotFoundError{Path: filePath}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", h.url(filePath), resp.StatusCode())
	}
	return resp.Body(), nil
}

// FileExists checks if a file exists at the base URL.
func (h *HTTPStore) FileExists(ctx context.Context, filePath string) (bool, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Head(h.url(filePath))

	if err != nil {
		return false, fmt.Errorf("failed to probe %s: %w", h.url(filePath), err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%s returned status %d", h.url(filePath), resp.StatusCode())
	}
}

// ListFiles is unsupported for plain HTTP bases.
func (h *HTTPStore) ListFiles(ctx context.Context, namePrefix string) ([]string, error) {
	return nil, ErrListingUnsupported
}
