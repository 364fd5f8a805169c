// Package database persists accepted review rows. The interface keeps
// the crawl logic independent of the backing store, so runs without a
// configured database still work.
package database

import (
	"context"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

// Sink receives review rows grouped by quota group. Save reports how
// many rows were newly inserted; rows whose dedup key already exists
// are silently dropped.
type Sink interface {
	Save(ctx context.Context, group string, rows []review.Row) (int, error)
	Close()
}

// NoOpSink drops every row. Used when no DSN is configured.
type NoOpSink struct{}

// Save discards the rows and pretends they were all inserted.
func (NoOpSink) Save(_ context.Context, _ string, rows []review.Row) (int, error) {
	return len(rows), nil
}

// Close does nothing.
func (NoOpSink) Close() {}
