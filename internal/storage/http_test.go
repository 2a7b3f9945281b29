package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPStoreGetFile(t *testing.T) {
	server := newTestServer(t, map[string]string{
		"/data/cities.json": `[{"name":"Berlin"}]`,
	})
	store := NewHTTPStore(server.URL + "/data/")
	defer store.Close()

	data, err := store.GetFile(context.Background(), "cities.json")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if string(data) != `[{"name":"Berlin"}]` {
		t.Errorf("GetFile returned %q", data)
	}
}

func TestHTTPStoreNotFound(t *testing.T) {
	server := newTestServer(t, nil)
	store := NewHTTPStore(server.URL)

	_, err := store.GetFile(context.Background(), "no2_data_2031_01.tif")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Expected *NotFoundError, got %v", err)
	}
}

func TestHTTPStoreFileExists(t *testing.T) {
	server := newTestServer(t, map[string]string{"/cities.json": `[]`})
	store := NewHTTPStore(server.URL)

	exists, err := store.FileExists(context.Background(), "cities.json")
	if err != nil || !exists {
		t.Errorf("FileExists(cities.json) = %v, %v, want true", exists, err)
	}
	exists, err = store.FileExists(context.Background(), "missing.json")
	if err != nil || exists {
		t.Errorf("FileExists(missing.json) = %v, %v, want false", exists, err)
	}
}

func TestHTTPStoreListFilesUnsupported(t *testing.T) {
	store := NewHTTPStore("http://example.invalid")

	_, err := store.ListFiles(context.Background(), "no2_data_")
	if !errors.Is(err, ErrListingUnsupported) {
		t.Errorf("Expected ErrListingUnsupported, got %v", err)
	}
}

func TestFactorySchemes(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		base    string
		want    string
		wantErr bool
	}{
		{name: "http", base: "http://example.com/data", want: "*storage.HTTPStore"},
		{name: "https", base: "https://example.com/data", want: "*storage.HTTPStore"},
		{name: "file url", base: "file://" + dir, want: "*storage.LocalStore"},
		{name: "bare path", base: dir, want: "*storage.LocalStore"},
		{name: "empty", base: "", wantErr: true},
		{name: "unknown scheme", base: "ftp://example.com", wantErr: true},
		{name: "gs without bucket", base: "gs://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewAssetStore(context.Background(), tt.base)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.base)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAssetStore(%q) failed: %v", tt.base, err)
			}
			defer store.Close()

			switch tt.want {
			case "*storage.HTTPStore":
				if _, ok := store.(*HTTPStore); !ok {
					t.Errorf("Got %T, want HTTPStore", store)
				}
			case "*storage.LocalStore":
				if _, ok := store.(*LocalStore); !ok {
					t.Errorf("Got %T, want LocalStore", store)
				}
			}
		})
	}
}
