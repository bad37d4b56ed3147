package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every backend.
var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicate    = errors.New("duplicate key")
	ErrInvalidQuery = errors.New("invalid query")
)

// IDField is the primary key of every document.
const IDField = "_id"

// TimeLayout is the wire and storage format for timestamps. It sorts
// lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t in TimeLayout (UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Document is one stored record.
type Document map[string]any

// ID returns the document's string id, or "" when absent.
func (d Document) ID() string {
	id, _ := d[IDField].(string) //nolint:errcheck // type assertion, zero value is the answer
	return id
}

// Clone returns a shallow copy of d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String returns a string field, or "" when absent or not a string.
func (d Document) String(field string) string {
	s, _ := d[field].(string) //nolint:errcheck // type assertion
	return s
}

// Bool returns a boolean field, false when absent.
func (d Document) Bool(field string) bool {
	b, _ := d[field].(bool) //nolint:errcheck // type assertion
	return b
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents for Find.
type Query struct {
	Filter Filter
	Sort   []SortField
	Skip   int
	// Limit of 0 means unlimited.
	Limit int
}

// Store is a document-oriented persistence backend.
//
// Implementations must be safe for concurrent use. Every method honours
// ctx cancellation and deadlines.
type Store interface {
	// Find returns matching documents in q.Sort order (insertion order when unsorted).
	Find(ctx context.Context, collection string, q Query) ([]Document, error)

	// Count returns the number of documents matching f.
	Count(ctx context.Context, collection string, f Filter) (int64, error)

	// Get returns the document with id or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Insert stores doc and returns its id. A missing "_id" is generated.
	// Unique index violations return ErrDuplicate.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// Update sets the given top-level fields on document id. Other fields
	// are left alone. Returns ErrNotFound when id does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error

	// Aggregate runs p over the collection.
	Aggregate(ctx context.Context, collection string, p Pipeline) ([]Document, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
