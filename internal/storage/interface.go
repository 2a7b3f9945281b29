package storage

import (
	"context"
	"errors"
	"fmt"
)

// AssetStore defines read access to one base location holding period
// assets (GeoTIFF rasters, timepoint JSON, reference data).
type AssetStore interface {
	// Close closes the store.
	Close() error

	// GetFile retrieves a file relative to the store's base location.
	// A missing file is reported as *NotFoundError.
	GetFile(ctx context.Context, filePath string) ([]byte, error)

	// FileExists checks if a file exists relative to the base location.
	FileExists(ctx context.Context, filePath string) (bool, error)

	// ListFiles lists file names below the base location that start with
	// the given name prefix. Stores without listing support return
	// ErrListingUnsupported.
	ListFiles(ctx context.Context, namePrefix string) ([]string, error)
}

// ErrListingUnsupported is returned by stores that cannot enumerate
// their contents (plain HTTP bases).
var ErrListingUnsupported = errors.New("asset listing not supported by this store")

// NotFoundError reports a missing asset: the requested period simply has
// no data, which callers surface as "no data for this month".
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("asset not found: %s", e.Path)
}
