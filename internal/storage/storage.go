package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open for unknown keys.
var ErrNotFound = errors.New("file not found")

// Store persists uploaded media under slash-separated keys.
type Store interface {
	Save(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL is the address clients fetch key from.
	URL(key string) string
}

// NewKey returns dir/<prefix><uuid><ext>, ext lower-cased.
func NewKey(dir, prefix, ext string) string {
	return path.Join(dir, prefix+uuid.NewString()+strings.ToLower(ext))
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "" {
			return false
		}
	}
	return true
}
