package types

import (
	"context"
	"time"
)

// Item is a content record as returned to listing callers.
type Item struct {
	Id          ItemId    `json:"id"`
	PostType    string    `json:"postType"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// ContentStore is the query collaborator the engine needs from the content layer.
type ContentStore interface {
	// Execute runs the query and returns the matching ids.
	Execute(ctx context.Context, q *Query) (*ItemList, error)
	// Items loads records for ids, newest first. A limit of zero or less
	// loads every record from offset on.
	Items(ctx context.Context, ids []ItemId, offset, limit int) ([]Item, error)
	// Postings lists every value of a taxonomy, meta key or source type with the items carrying it.
	Postings(ctx context.Context, kind FacetKind, name string) ([]Posting, error)
	HasTaxonomy(ctx context.Context, name string) (bool, error)
	HasSourceType(ctx context.Context, name string) (bool, error)
}

// YearSource is the virtual source type derived from an item's publish date.
const YearSource = "year"
