package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/docdoc/docdoc-server/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu         sync.Mutex
	users      map[string]User   // by uuid
	accessKeys map[string]string // key -> user uuid
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[string]User),
		accessKeys: make(map[string]string),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, u := range f.users {
		if u.LoginID == user.LoginID {
			return ErrDuplicateLoginID
		}
	}
	f.users[user.UUID] = user
	return nil
}

func (f *fakeStore) GetUserByLoginID(_ context.Context, loginID string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return User{}, f.failWith
	}
	for _, u := range f.users {
		if u.LoginID == loginID {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) GetUserByUUID(_ context.Context, uuid string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uuid]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateAccessKey(_ context.Context, accessKey, userUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessKeys[accessKey] = userUUID
	return nil
}

func (f *fakeStore) GetUserByAccessKey(_ context.Context, accessKey string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return User{}, f.failWith
	}
	userUUID, ok := f.accessKeys[accessKey]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return f.users[userUUID], nil
}

func newTestService(store Store) *Service {
	s := NewService(store, logger.New(logger.Config{Level: slog.LevelError}))
	s.bcryptCost = bcrypt.MinCost
	return s
}
