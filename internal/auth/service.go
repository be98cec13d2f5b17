package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Service struct {
	store      Store
	logger     *logger.Logger
	bcryptCost int
}

func NewService(store Store, logger *logger.Logger) *Service {
	return &Service{
		store:      store,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Register creates a user and returns its UUID.
func (s *Service) Register(ctx context.Context, loginID, password, nickname string) (string, error) {
	if loginID == "" || password == "" || nickname == "" {
		return "", status.Error(codes.InvalidArgument, "id, password and nickname are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "unusable password: %v", err)
	}

	user := User{
		UUID:         uuid.New().String(),
		LoginID:      loginID,
		Nickname:     nickname,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateLoginID) {
			return "", status.Error(codes.AlreadyExists, "id already registered")
		}
		return "", status.Errorf(codes.Internal, "failed to create user: %v", err)
	}

	s.logger.Info("user registered", slog.String("user_id", user.UUID))
	return user.UUID, nil
}

// Login checks credentials and issues a fresh access key.
func (s *Service) Login(ctx context.Context, loginID, password string) (LoginResult, error) {
	if loginID == "" || password == "" {
		return LoginResult{}, status.Error(codes.InvalidArgument, "id and password are required")
	}

	user, err := s.store.GetUserByLoginID(ctx, loginID)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, status.Error(codes.NotFound, "no such id")
	}
	if err != nil {
		return LoginResult{}, status.Errorf(codes.Internal, "failed to load user: %v", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, status.Error(codes.Unauthenticated, "wrong password")
	}

	accessKey := uuid.New().String()
	if err := s.store.CreateAccessKey(ctx, accessKey, user.UUID); err != nil {
		return LoginResult{}, status.Errorf(codes.Internal, "failed to issue access key: %v", err)
	}

	return LoginResult{
		UUID:      user.UUID,
		LoginID:   user.LoginID,
		Nickname:  user.Nickname,
		AccessKey: accessKey,
	}, nil
}

// VerifyAccessKey resolves an access key to its user.
func (s *Service) VerifyAccessKey(ctx context.Context, accessKey string) (User, error) {
	if _, err := uuid.Parse(accessKey); err != nil {
		return User{}, status.Error(codes.Unauthenticated, "invalid access key")
	}

	user, err := s.store.GetUserByAccessKey(ctx, accessKey)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, status.Error(codes.Unauthenticated, "invalid access key")
	}
	if err != nil {
		return User{}, status.Errorf(codes.Internal, "failed to verify access key: %v", err)
	}

	return user, nil
}

// Authenticate returns the UUID of the user owning accessKey.
func (s *Service) Authenticate(ctx context.Context, accessKey string) (string, error) {
	if accessKey == "" {
		return "", status.Error(codes.Unauthenticated, "access key required")
	}
	user, err := s.VerifyAccessKey(ctx, accessKey)
	if err != nil {
		return "", err
	}
	return user.UUID, nil
}

// UserInfo returns the profile of userUUID. The access key must belong to that user.
func (s *Service) UserInfo(ctx context.Context, accessKey, userUUID string) (User, error) {
	if accessKey == "" || userUUID == "" {
		return User{}, status.Error(codes.InvalidArgument, "uuid and access key are required")
	}

	owner, err := s.VerifyAccessKey(ctx, accessKey)
	if err != nil {
		return User{}, err
	}
	if owner.UUID != userUUID {
		return User{}, status.Error(codes.PermissionDenied, "access key belongs to another user")
	}

	user, err := s.store.GetUserByUUID(ctx, userUUID)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, status.Error(codes.NotFound, "user not found")
	}
	if err != nil {
		return User{}, status.Errorf(codes.Internal, "failed to load user: %v", err)
	}
	return user, nil
}
