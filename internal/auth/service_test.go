package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())

	userUUID, err := svc.Register(ctx, "doctor", "secret", "Dr. Kim")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := svc.Login(ctx, "doctor", "secret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.UUID != userUUID {
		t.Errorf("expected uuid %s, got %s", userUUID, result.UUID)
	}
	if _, err := uuid.Parse(result.AccessKey); err != nil {
		t.Errorf("access key is not a uuid: %q", result.AccessKey)
	}

	got, err := svc.Authenticate(ctx, result.AccessKey)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if got != userUUID {
		t.Errorf("authenticate returned %s, want %s", got, userUUID)
	}
}

func TestLoginIssuesFreshKeys(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore())
	if _, err := svc.Register(ctx, "a", "pw", "A"); err != nil {
		t.Fatal(err)
	}

	first, _ := svc.Login(ctx, "a", "pw")
	second, _ := svc.Login(ctx, "a", "pw")
	if first.AccessKey == second.AccessKey {
		t.Error("expected a new access key per login")
	}
	for _, key := range []string{first.AccessKey, second.AccessKey} {
		if _, err := svc.Authenticate(ctx, key); err != nil {
			t.Errorf("key %s should stay valid: %v", key, err)
		}
	}
}

func TestServiceErrorCodes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestService(store)
	owner, _ := svc.Register(ctx, "owner", "pw", "Owner")
	other, _ := svc.Register(ctx, "other", "pw", "Other")
	login, _ := svc.Login(ctx, "owner", "pw")

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"register missing fields", func() error { _, err := svc.Register(ctx, "", "pw", "x"); return err }, codes.InvalidArgument},
		{"register duplicate", func() error { _, err := svc.Register(ctx, "owner", "pw", "x"); return err }, codes.AlreadyExists},
		{"login unknown id", func() error { _, err := svc.Login(ctx, "ghost", "pw"); return err }, codes.NotFound},
		{"login wrong password", func() error { _, err := svc.Login(ctx, "owner", "nope"); return err }, codes.Unauthenticated},
		{"authenticate empty", func() error { _, err := svc.Authenticate(ctx, ""); return err }, codes.Unauthenticated},
		{"authenticate malformed", func() error { _, err := svc.Authenticate(ctx, "not-a-key"); return err }, codes.Unauthenticated},
		{"authenticate unknown", func() error { _, err := svc.Authenticate(ctx, uuid.NewString()); return err }, codes.Unauthenticated},
		{"user info other user", func() error { _, err := svc.UserInfo(ctx, login.AccessKey, other); return err }, codes.PermissionDenied},
		{"user info missing key", func() error { _, err := svc.UserInfo(ctx, "", owner); return err }, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := status.Code(err); got != tt.want {
				t.Errorf("expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestStoreFailureIsInternal(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	svc := newTestService(store)

	_, err := svc.Login(context.Background(), "a", "pw")
	if status.Code(err) != codes.Internal {
		t.Errorf("expected Internal, got %v", status.Code(err))
	}
}
