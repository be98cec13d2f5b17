package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/docdoc/docdoc-server/internal/chatlog"
)

var _ chatlog.Store = (*Queries)(nil)

func (q *Queries) CreateSession(ctx context.Context, session chatlog.Session) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO chat_sessions (id, owner_uuid, title, created_at)
		VALUES ($1, $2, $3, $4)`),
		session.ID, session.OwnerID, session.Title, session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (q *Queries) GetSession(ctx context.Context, id string) (chatlog.Session, error) {
	var s chatlog.Session
	err := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT id, owner_uuid, title, created_at FROM chat_sessions WHERE id = $1`), id).
		Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chatlog.Session{}, chatlog.ErrSessionNotFound
	}
	if err != nil {
		return chatlog.Session{}, fmt.Errorf("get chat session: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT session_id, text, sender, created_at
		FROM chat_messages WHERE session_id = $1 ORDER BY seq`), id)
	if err != nil {
		return chatlog.Session{}, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	s.Messages = []chatlog.Message{}
	err = scanMessages(rows, func(_ string, m chatlog.Message) {
		s.Messages = append(s.Messages, m)
	})
	if err != nil {
		return chatlog.Session{}, err
	}
	return s, nil
}

// AppendMessage assigns the next sequence number inside a transaction so the
// title rewrite and the first insert are atomic.
func (q *Queries) AppendMessage(ctx context.Context, sessionID string, msg chatlog.Message, firstTitle string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, q.rebind(`SELECT COUNT(*) FROM chat_sessions WHERE id = $1`), sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check chat session: %w", err)
	}
	if exists == 0 {
		return chatlog.ErrSessionNotFound
	}

	var seq int
	err = tx.QueryRowContext(ctx, q.rebind(`
		SELECT COALESCE(MAX(seq) + 1, 0) FROM chat_messages WHERE session_id = $1`), sessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next message seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, q.rebind(`
		INSERT INTO chat_messages (session_id, seq, text, sender, created_at)
		VALUES ($1, $2, $3, $4, $5)`),
		sessionID, seq, msg.Text, int(msg.Sender), msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	if seq == 0 && firstTitle != "" {
		_, err = tx.ExecContext(ctx, q.rebind(`UPDATE chat_sessions SET title = $1 WHERE id = $2`), firstTitle, sessionID)
		if err != nil {
			return fmt.Errorf("update chat title: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (q *Queries) ListSessions(ctx context.Context, ownerID string) ([]chatlog.Session, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT id, owner_uuid, title, created_at
		FROM chat_sessions WHERE owner_uuid = $1
		ORDER BY created_at DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}

	sessions := []chatlog.Session{}
	index := make(map[string]int)
	for rows.Next() {
		var s chatlog.Session
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		s.Messages = []chatlog.Message{}
		index[s.ID] = len(sessions)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate chat sessions: %w", err)
	}
	rows.Close()

	if len(sessions) == 0 {
		return sessions, nil
	}

	msgRows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT m.session_id, m.text, m.sender, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE s.owner_uuid = $1
		ORDER BY m.session_id, m.seq`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer msgRows.Close()

	err = scanMessages(msgRows, func(sessionID string, m chatlog.Message) {
		if i, ok := index[sessionID]; ok {
			sessions[i].Messages = append(sessions[i].Messages, m)
		}
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanMessages(rows *sql.Rows, fn func(sessionID string, m chatlog.Message)) error {
	for rows.Next() {
		var (
			sessionID string
			sender    int
			m         chatlog.Message
		)
		if err := rows.Scan(&sessionID, &m.Text, &sender, &m.Timestamp); err != nil {
			return fmt.Errorf("scan chat message: %w", err)
		}
		m.Sender = chatlog.Sender(sender)
		fn(sessionID, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate chat messages: %w", err)
	}
	return nil
}
