package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// NewAssetStore creates an asset store for the given base location.
// Supported forms: http(s)://host/path, gs://bucket/prefix,
// file:///abs/path, or a bare directory path.
func NewAssetStore(ctx context.Context, base string) (AssetStore, error) {
	if base == "" {
		return nil, fmt.Errorf("empty asset base location")
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid asset base %q: %w", base, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPStore(base), nil

	case "gs":
		bucket := u.Host
		if bucket == "" {
			return nil, fmt.Errorf("invalid GCS base %q: missing bucket", base)
		}
		return NewGCSStore(ctx, bucket, strings.TrimPrefix(u.Path, "/"))

	case "file":
		return NewLocalStore(u.Path)

	case "":
		return NewLocalStore(base)

	default:
		return nil, fmt.Errorf("unsupported asset base scheme %q", u.Scheme)
	}
}
