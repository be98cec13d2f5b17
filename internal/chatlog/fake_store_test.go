package chatlog

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	appendErr error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func (f *fakeStore) CreateSession(_ context.Context, s Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	s.Messages = append([]Message(nil), s.Messages...)
	f.sessions[s.ID] = &s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	return out, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, id string, msg Message, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	s, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if len(s.Messages) == 0 && title != "" {
		s.Title = title
	}
	s.Messages = append(s.Messages, msg)
	return nil
}

func (f *fakeStore) ListSessions(_ context.Context, ownerID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.sessions {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var errBoom = errors.New("boom")
