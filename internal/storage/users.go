package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/docdoc/docdoc-server/internal/auth"
)

var _ auth.Store = (*Queries)(nil)

func (q *Queries) CreateUser(ctx context.Context, user auth.User) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO users (uuid, login_id, password_hash, nickname, created_at)
		VALUES ($1, $2, $3, $4, $5)`),
		user.UUID, user.LoginID, user.PasswordHash, user.Nickname, user.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return auth.ErrDuplicateLoginID
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByLoginID(ctx context.Context, loginID string) (auth.User, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT uuid, login_id, password_hash, nickname, created_at
		FROM users WHERE login_id = $1`), loginID)
	return scanUser(row)
}

func (q *Queries) GetUserByUUID(ctx context.Context, uuid string) (auth.User, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT uuid, login_id, password_hash, nickname, created_at
		FROM users WHERE uuid = $1`), uuid)
	return scanUser(row)
}

func (q *Queries) CreateAccessKey(ctx context.Context, accessKey, userUUID string) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO user_access_keys (access_key, user_uuid) VALUES ($1, $2)`),
		accessKey, userUUID)
	if err != nil {
		return fmt.Errorf("insert access key: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByAccessKey(ctx context.Context, accessKey string) (auth.User, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT u.uuid, u.login_id, u.password_hash, u.nickname, u.created_at
		FROM users u
		JOIN user_access_keys ak ON ak.user_uuid = u.uuid
		WHERE ak.access_key = $1`), accessKey)
	return scanUser(row)
}

func scanUser(row *sql.Row) (auth.User, error) {
	var u auth.User
	err := row.Scan(&u.UUID, &u.LoginID, &u.PasswordHash, &u.Nickname, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
