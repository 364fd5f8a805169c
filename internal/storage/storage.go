// Package storage archives run artifacts, primarily the exported
// workbook, into blob storage.
package storage

import (
	"context"
	"io"
)

// BlobStore persists an artifact and returns a URI locating it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
