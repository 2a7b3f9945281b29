package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore serves assets from a directory on the local file system,
// used for development and for pre-synced data sets.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a store rooted at baseDir.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	info, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("asset directory %s: %w", baseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset path %s is not a directory", baseDir)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// Close is a no-op for local storage (implements the same interface as
// the GCS and HTTP stores).
func (l *LocalStore) Close() error {
	return nil
}

// GetFile retrieves a file from the asset directory.
func (l *LocalStore) GetFile(ctx context.Context, filePath string) ([]byte, error) {
	fullPath, err := l.resolve(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Path: filePath}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}
	return data, nil
}

// FileExists checks if a file exists in the asset directory.
func (l *LocalStore) FileExists(ctx context.Context, filePath string) (bool, error) {
	fullPath, err := l.resolve(filePath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(fullPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListFiles lists file names in the asset directory starting with the
// given prefix, sorted ascending.
func (l *LocalStore) ListFiles(ctx context.Context, namePrefix string) ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset directory %s: %w", l.baseDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if namePrefix == "" || strings.HasPrefix(e.Name(), namePrefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// resolve joins the relative path and rejects escapes from the base dir.
func (l *LocalStore) resolve(filePath string) (string, error) {
	fullPath := filepath.Join(l.baseDir, filepath.FromSlash(filePath))
	absBase, _ := filepath.Abs(l.baseDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absBase) {
		return "", fmt.Errorf("invalid asset path %s", filePath)
	}
	return fullPath, nil
}
