package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docdoc/docdoc-server/internal/documents"
)

var _ documents.Store = (*Queries)(nil)

func (q *Queries) InsertDocument(ctx context.Context, kind string, body json.RawMessage, createdAt time.Time) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, q.rebind(`
		INSERT INTO documents (kind, body, created_at) VALUES ($1, $2, $3) RETURNING id`),
		kind, string(body), createdAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (q *Queries) ListDocuments(ctx context.Context, kind string, opts documents.ListOptions) ([]documents.Document, error) {
	order := "DESC"
	if opts.Order == documents.OldestFirst {
		order = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT id, kind, body, created_at FROM documents
		WHERE kind = $1
		ORDER BY created_at %s, id %s`, order, order)
	args := []any{kind}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
	}

	rows, err := q.db.QueryContext(ctx, q.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []documents.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (q *Queries) GetDocument(ctx context.Context, kind string, id int64) (documents.Document, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT id, kind, body, created_at FROM documents WHERE kind = $1 AND id = $2`), kind, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return documents.Document{}, documents.ErrNotFound
	}
	return doc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (documents.Document, error) {
	var (
		doc  documents.Document
		body string
	)
	if err := row.Scan(&doc.ID, &doc.Kind, &body, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return documents.Document{}, err
		}
		return documents.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.Body = json.RawMessage(body)
	return doc, nil
}
