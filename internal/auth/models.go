package auth

import (
	"context"
	"errors"
	"time"
)

type User struct {
	UUID         string    `json:"uuid"`
	LoginID      string    `json:"id"`
	Nickname     string    `json:"nickname"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	UUID      string `json:"uuid"`
	LoginID   string `json:"id"`
	Nickname  string `json:"nickname"`
	AccessKey string `json:"accessKey"`
}

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateLoginID = errors.New("login id already taken")
)

// Store persists users and their access keys.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByLoginID(ctx context.Context, loginID string) (User, error)
	GetUserByUUID(ctx context.Context, uuid string) (User, error)
	CreateAccessKey(ctx context.Context, accessKey, userUUID string) error
	// GetUserByAccessKey returns ErrUserNotFound when the key is unknown.
	GetUserByAccessKey(ctx context.Context, accessKey string) (User, error)
}

// Result codes understood by the front-end.
const (
	ResultOK            = 0
	ResultBadParams     = 2
	ResultDatabaseError = 3
	ResultDuplicateID   = 10
	ResultNoSuchID      = 11
	ResultWrongPassword = 12
	ResultUserNotFound  = 13
	ResultInvalidKey    = 14
	ResultForbidden     = 15
)
