package chatlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Service struct {
	store        Store
	logger       *logger.Logger
	defaultTitle string
	now          func() time.Time
}

func NewService(store Store, logger *logger.Logger, defaultTitle string) *Service {
	return &Service{
		store:        store,
		logger:       logger,
		defaultTitle: defaultTitle,
		now:          time.Now,
	}
}

// CreateSession opens a fresh session for ownerID with the placeholder title.
func (s *Service) CreateSession(ctx context.Context, ownerID string) (Session, error) {
	session := Session{
		ID:        uuid.New().String(),
		Title:     s.defaultTitle,
		OwnerID:   ownerID,
		Messages:  []Message{},
		CreatedAt: s.now().UTC(),
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return Session{}, status.Errorf(codes.Internal, "failed to create chat session: %v", err)
	}

	s.logger.Debug("chat session created",
		slog.String("chat_id", session.ID),
		slog.String("user_id", ownerID))

	return session, nil
}

// ResumeSession loads an existing session. The session must belong to ownerID.
func (s *Service) ResumeSession(ctx context.Context, ownerID, sessionID string) (Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return Session{}, status.Error(codes.NotFound, "chat session not found")
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return Session{}, status.Error(codes.NotFound, "chat session not found")
	}
	if err != nil {
		return Session{}, status.Errorf(codes.Internal, "failed to load chat session: %v", err)
	}

	if session.OwnerID != ownerID {
		return Session{}, status.Error(codes.PermissionDenied, "chat session belongs to another user")
	}

	return session, nil
}

// OpenSession resumes sessionID when given, otherwise creates a new session.
func (s *Service) OpenSession(ctx context.Context, ownerID, sessionID string) (Session, error) {
	if sessionID == "" {
		return s.CreateSession(ctx, ownerID)
	}
	return s.ResumeSession(ctx, ownerID, sessionID)
}

// History returns every session of ownerID, newest first.
func (s *Service) History(ctx context.Context, ownerID string) ([]Session, error) {
	sessions, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}
