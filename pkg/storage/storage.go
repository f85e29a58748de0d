// Package storage archives original upload files in object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// ObjectStore keeps upload payloads.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error)
}

// NopStore discards everything. It is used when archiving is disabled.
type NopStore struct{}

var _ ObjectStore = NopStore{}

func (NopStore) Put(_ context.Context, key string, _ io.Reader, size int64, _ string) (ObjectInfo, error) {
	return ObjectInfo{Key: key, Size: size}, nil
}

// ArchiveKey builds the object key for an uploaded file:
// org-<id>/<yyyy>/<mm>/<dd>/<uuid>-<basename>.
func ArchiveKey(orgID int64, filename string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return fmt.Sprintf("org-%d/%s/%s-%s", orgID, at.UTC().Format("2006/01/02"), uuid.NewString(), base)
}
