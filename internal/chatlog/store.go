package chatlog

import "context"

// Store is the durable backing of sessions and their transcripts.
type Store interface {
	CreateSession(ctx context.Context, session Session) error

	// GetSession returns the session with its full transcript, or ErrSessionNotFound.
	GetSession(ctx context.Context, id string) (Session, error)

	// AppendMessage appends msg to the session transcript. When the transcript was
	// empty and firstTitle is non-empty, the session title is rewritten in the same
	// transaction. Returns ErrSessionNotFound for unknown sessions.
	AppendMessage(ctx context.Context, sessionID string, msg Message, firstTitle string) error

	// ListSessions returns every session of the owner, newest first, with transcripts.
	ListSessions(ctx context.Context, ownerID string) ([]Session, error)
}
