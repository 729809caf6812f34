// Package storage persists crawl records. A record is an arbitrary JSON-like
// document routed to a named index; the backend decides what an index maps to
// (a collection, a table partition, a file).
package storage

import "context"

// Gateway is the persistence seam the crawler writes through.
type Gateway interface {
	InsertDocument(ctx context.Context, doc any, index string) error
	InsertDocuments(ctx context.Context, docs []any, index string) error
	Close(ctx context.Context) error
}
