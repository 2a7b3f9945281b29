package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStore serves assets from a Google Cloud Storage bucket, optionally
// below a fixed object prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a store reading from gs://bucket/prefix.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Close closes the GCS client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

func (g *GCSStore) objectPath(filePath string) string {
	filePath = strings.TrimPrefix(filePath, "/")
	if g.prefix == "" {
		return filePath
	}
	return g.prefix + "/" + filePath
}

// GetFile retrieves an object from the bucket.
func (g *GCSStore) GetFile(ctx context.Context, filePath string) ([]byte, error) {
	obj := g.client.Bucket(g.bucket).Object(g.objectPath(filePath))

	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &NotFoundError{Path: filePath}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", g.bucket, g.objectPath(filePath), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, g.objectPath(filePath), err)
	}
	return data, nil
}

// ListFiles lists object names below the store prefix starting with the
// given name prefix, sorted ascending.
func (g *GCSStore) ListFiles(ctx context.Context, namePrefix string) ([]string, error) {
	query := &storage.Query{Prefix: g.objectPath(namePrefix)}
	it := g.client.Bucket(g.bucket).Objects(ctx, query)

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, g.prefix, err)
		}
		name := strings.TrimPrefix(attrs.Name, g.prefix)
		names = append(names, strings.TrimPrefix(name, "/"))
	}
	sort.Strings(names)
	return names, nil
}

// FileExists checks if an object exists in the bucket.
func (g *GCSStore) FileExists(ctx context.Context, filePath string) (bool, error) {
	obj := g.client.Bucket(g.bucket).Object(g.objectPath(filePath))
	_, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", g.bucket, g.objectPath(filePath), err)
	}
	return true, nil
}
