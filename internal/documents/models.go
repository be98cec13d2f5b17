package documents

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Document is an opaque JSON record of one collection.
type Document struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"-"`
	Body      json.RawMessage `json:"json"`
	CreatedAt time.Time       `json:"created_at"`
}

// Order selects list ordering by creation time.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// ListOptions filters a listing. Limit 0 means no limit.
type ListOptions struct {
	Order Order
	Limit int
}

var ErrNotFound = errors.New("document not found")

type Store interface {
	InsertDocument(ctx context.Context, kind string, body json.RawMessage, createdAt time.Time) (int64, error)
	ListDocuments(ctx context.Context, kind string, opts ListOptions) ([]Document, error)
	GetDocument(ctx context.Context, kind string, id int64) (Document, error)
}
