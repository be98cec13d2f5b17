package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docdoc/docdoc-server/internal/config"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service exposes one document collection.
type Service struct {
	store Store
	kind  config.DocumentKind
	now   func() time.Time
}

func NewService(store Store, kind config.DocumentKind) *Service {
	return &Service{store: store, kind: kind, now: time.Now}
}

func (s *Service) Kind() config.DocumentKind { return s.kind }

// Insert stores body and returns the new document id.
func (s *Service) Insert(ctx context.Context, body json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, status.Error(codes.InvalidArgument, "json field is required")
	}
	if !json.Valid(trimmed) {
		return 0, status.Error(codes.InvalidArgument, "json field is not valid JSON")
	}

	id, err := s.store.InsertDocument(ctx, s.kind.Kind, json.RawMessage(trimmed), s.now().UTC())
	if err != nil {
		return 0, status.Errorf(codes.Internal, "failed to insert %s: %v", s.kind.Kind, err)
	}
	return id, nil
}

// List returns documents ordered by creation time, capped at the collection limit.
func (s *Service) List(ctx context.Context, order Order) ([]Document, error) {
	if !s.kind.Sortable {
		order = NewestFirst
	}

	docs, err := s.store.ListDocuments(ctx, s.kind.Kind, ListOptions{Order: order, Limit: s.kind.Limit})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list %s: %v", s.kind.Kind, err)
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	doc, err := s.store.GetDocument(ctx, s.kind.Kind, id)
	if errors.Is(err, ErrNotFound) {
		return Document{}, status.Errorf(codes.NotFound, "%s %d not found", s.kind.Kind, id)
	}
	if err != nil {
		return Document{}, status.Errorf(codes.Internal, "failed to load %s: %v", s.kind.Kind, err)
	}
	return doc, nil
}
