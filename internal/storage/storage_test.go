package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/docdoc/docdoc-server/internal/auth"
	"github.com/docdoc/docdoc-server/internal/chatlog"
	"github.com/docdoc/docdoc-server/internal/documents"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/google/uuid"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(DialectSQLite, ":memory:", Options{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, q *Queries, loginID string) auth.User {
	t.Helper()
	u := auth.User{
		UUID:         uuid.NewString(),
		LoginID:      loginID,
		Nickname:     loginID,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	}
	if err := q.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUsersAndAccessKeys(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries

	u := createUser(t, q, "doctor")

	dup := u
	dup.UUID = uuid.NewString()
	if err := q.CreateUser(ctx, dup); !errors.Is(err, auth.ErrDuplicateLoginID) {
		t.Fatalf("expected ErrDuplicateLoginID, got %v", err)
	}

	got, err := q.GetUserByLoginID(ctx, "doctor")
	if err != nil || got.UUID != u.UUID {
		t.Fatalf("GetUserByLoginID = %+v, %v", got, err)
	}

	if _, err := q.GetUserByUUID(ctx, uuid.NewString()); !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}

	key := uuid.NewString()
	if err := q.CreateAccessKey(ctx, key, u.UUID); err != nil {
		t.Fatal(err)
	}
	owner, err := q.GetUserByAccessKey(ctx, key)
	if err != nil || owner.UUID != u.UUID {
		t.Fatalf("GetUserByAccessKey = %+v, %v", owner, err)
	}
	if _, err := q.GetUserByAccessKey(ctx, uuid.NewString()); !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound for unknown key, got %v", err)
	}
}

func TestAppendMessageKeepsOrderAndRewritesTitleOnce(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries
	owner := createUser(t, q, "owner")

	session := chatlog.Session{ID: uuid.NewString(), OwnerID: owner.UUID, Title: "New chat", CreatedAt: time.Now()}
	if err := q.CreateSession(ctx, session); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	steps := []struct {
		text   string
		sender chatlog.Sender
		title  string
	}{
		{"hello", chatlog.SenderUser, "hello"},
		{"Hi! How can I help?", chatlog.SenderAssistant, ""},
		{"second question", chatlog.SenderUser, "second question"},
	}
	for i, s := range steps {
		msg := chatlog.Message{Text: s.text, Sender: s.sender, Timestamp: now.Add(time.Duration(i) * time.Second)}
		if err := q.AppendMessage(ctx, session.ID, msg, s.title); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := q.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "hello" {
		t.Errorf("expected title from first message, got %q", got.Title)
	}
	if len(got.Messages) != len(steps) {
		t.Fatalf("expected %d messages, got %d", len(steps), len(got.Messages))
	}
	for i, s := range steps {
		if got.Messages[i].Text != s.text || got.Messages[i].Sender != s.sender {
			t.Errorf("message %d = %+v, want %q/%v", i, got.Messages[i], s.text, s.sender)
		}
	}

	err = q.AppendMessage(ctx, uuid.NewString(), chatlog.Message{Text: "x", Timestamp: now}, "")
	if !errors.Is(err, chatlog.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries
	owner := createUser(t, q, "owner")
	other := createUser(t, q, "other")

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		s := chatlog.Session{ID: uuid.NewString(), OwnerID: owner.UUID, Title: fmt.Sprintf("chat %d", i), CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := q.CreateSession(ctx, s); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, s.ID)
		q.AppendMessage(ctx, s.ID, chatlog.Message{Text: fmt.Sprintf("msg %d", i), Timestamp: s.CreatedAt}, "")
	}
	q.CreateSession(ctx, chatlog.Session{ID: uuid.NewString(), OwnerID: other.UUID, Title: "not mine", CreatedAt: base})

	sessions, err := q.ListSessions(ctx, owner.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	for i, s := range sessions {
		want := ids[2-i]
		if s.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, s.ID)
		}
		if len(s.Messages) != 1 || s.Messages[0].Text != fmt.Sprintf("msg %d", 2-i) {
			t.Errorf("session %s has wrong transcript %+v", s.ID, s.Messages)
		}
	}

	empty, err := q.ListSessions(ctx, uuid.NewString())
	if err != nil || len(empty) != 0 {
		t.Errorf("expected no sessions, got %v, %v", empty, err)
	}
}

func TestTranscriptWriterPersistsInOrder(t *testing.T) {
	q := openTestDB(t).Queries
	owner := createUser(t, q, "owner")
	log := logger.New(logger.Config{Level: slog.LevelError})

	svc := chatlog.NewService(q, log, "New chat")
	session, err := svc.CreateSession(context.Background(), owner.UUID)
	if err != nil {
		t.Fatal(err)
	}

	w := chatlog.NewWriter(q, log, chatlog.WriterConfig{Workers: 4, BufferSize: 100, Timeout: time.Second})
	for i := 0; i < 20; i++ {
		sender := chatlog.SenderUser
		if i%2 == 1 {
			sender = chatlog.SenderAssistant
		}
		w.Append(session.ID, chatlog.Message{Text: fmt.Sprintf("m%02d", i), Sender: sender, Timestamp: time.Now()}, "first")
	}
	w.Shutdown()

	if w.Failures() != 0 || w.Dropped() != 0 {
		t.Fatalf("unexpected failures=%d dropped=%d", w.Failures(), w.Dropped())
	}

	got, err := svc.ResumeSession(context.Background(), owner.UUID, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "first" {
		t.Errorf("expected title 'first', got %q", got.Title)
	}
	for i, m := range got.Messages {
		if want := fmt.Sprintf("m%02d", i); m.Text != want {
			t.Fatalf("message %d: expected %s, got %s", i, want, m.Text)
		}
	}
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	q := openTestDB(t).Queries

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		body := json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
		if _, err := q.InsertDocument(ctx, "patient_case", body, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	infoID, err := q.InsertDocument(ctx, "medical_info", json.RawMessage(`{"title":"x"}`), base)
	if err != nil {
		t.Fatal(err)
	}

	newest, err := q.ListDocuments(ctx, "patient_case", documents.ListOptions{Order: documents.NewestFirst, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 2 || string(newest[0].Body) != `{"n":3}` {
		t.Errorf("unexpected newest listing %+v", newest)
	}

	oldest, _ := q.ListDocuments(ctx, "patient_case", documents.ListOptions{Order: documents.OldestFirst})
	if len(oldest) != 4 || string(oldest[0].Body) != `{"n":0}` {
		t.Errorf("unexpected oldest listing %+v", oldest)
	}

	doc, err := q.GetDocument(ctx, "medical_info", infoID)
	if err != nil || doc.Kind != "medical_info" {
		t.Fatalf("GetDocument = %+v, %v", doc, err)
	}
	if _, err := q.GetDocument(ctx, "patient_case", infoID); !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("document of another kind must not be visible, got %v", err)
	}
}
