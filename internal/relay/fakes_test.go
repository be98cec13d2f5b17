package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/docdoc/docdoc-server/internal/chatlog"
	"github.com/docdoc/docdoc-server/internal/logger"
	"github.com/docdoc/docdoc-server/internal/notify"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: slog.LevelError})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type recordingSink struct {
	mu     sync.Mutex
	events []ClientEvent
}

func (s *recordingSink) Send(event ClientEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Event
	}
	return out
}

func (s *recordingSink) byName(name string) []ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ClientEvent
	for _, e := range s.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeUpstream struct {
	mu     sync.Mutex
	ok     bool
	sent   []string
	events chan Event
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{ok: true, events: make(chan Event, 64)}
}

func (u *fakeUpstream) Send(connectionID, text string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ok {
		return false
	}
	u.sent = append(u.sent, connectionID+":"+text)
	return true
}

func (u *fakeUpstream) Events() <-chan Event { return u.events }

func (u *fakeUpstream) setOK(ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ok = ok
}

type staticAuth map[string]string

func (a staticAuth) Authenticate(_ context.Context, key string) (string, error) {
	if owner, ok := a[key]; ok {
		return owner, nil
	}
	return "", status.Error(codes.Unauthenticated, "invalid access key")
}

type fakeSessions struct {
	mu      sync.Mutex
	next    int
	owners  map[string]string
	opened  int
	failAll bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{owners: make(map[string]string)}
}

func (f *fakeSessions) OpenSession(_ context.Context, ownerID, sessionID string) (chatlog.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if f.failAll {
		return chatlog.Session{}, status.Error(codes.Internal, "database down")
	}
	if sessionID != "" {
		owner, ok := f.owners[sessionID]
		if !ok {
			return chatlog.Session{}, status.Error(codes.NotFound, "chat session not found")
		}
		if owner != ownerID {
			return chatlog.Session{}, status.Error(codes.PermissionDenied, "not yours")
		}
		return chatlog.Session{ID: sessionID, OwnerID: ownerID}, nil
	}
	f.next++
	id := fmt.Sprintf("session-%d", f.next)
	f.owners[id] = ownerID
	return chatlog.Session{ID: id, OwnerID: ownerID}, nil
}

type appended struct {
	sessionID string
	msg       chatlog.Message
	title     string
}

type recordingTranscript struct {
	mu      sync.Mutex
	entries []appended
}

func (r *recordingTranscript) Append(sessionID string, msg chatlog.Message, title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, appended{sessionID: sessionID, msg: msg, title: title})
	return true
}

func (r *recordingTranscript) bySender(sender chatlog.Sender) []appended {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []appended
	for _, e := range r.entries {
		if e.msg.Sender == sender {
			out = append(out, e)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.TurnEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Subject
	}
	return out
}

type routerFixture struct {
	router     *Router
	registry   *Registry
	tracker    *Tracker
	upstream   *fakeUpstream
	sessions   *fakeSessions
	transcript *recordingTranscript
	publisher  *recordingPublisher
}

func newRouterFixture() *routerFixture {
	log := testLogger()
	tracker := NewTracker()
	registry := NewRegistry(tracker, log)
	f := &routerFixture{
		registry:   registry,
		tracker:    tracker,
		upstream:   newFakeUpstream(),
		sessions:   newFakeSessions(),
		transcript: &recordingTranscript{},
		publisher:  &recordingPublisher{},
	}
	f.router = NewRouter(RouterDeps{
		Registry:   registry,
		Tracker:    tracker,
		Upstream:   f.upstream,
		Auth:       staticAuth{"key-alice": "alice", "key-bob": "bob"},
		Sessions:   f.sessions,
		Transcript: f.transcript,
		Publisher:  f.publisher,
		Logger:     log,
	}, RouterConfig{TitleMaxLength: 50, StopMarker: " [stopped]"})
	return f
}

func (f *routerFixture) attach(t *testing.T, connectionID, key string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	if _, err := f.router.Attach(context.Background(), AttachRequest{
		ConnectionID: connectionID,
		AccessKey:    key,
		Sink:         sink,
	}); err != nil {
		t.Fatalf("attach %s: %v", connectionID, err)
	}
	return sink
}
