package relay

import (
	"strings"
	"sync"
	"time"
)

// Reply is a completed or aborted streamed answer.
type Reply struct {
	Text      string
	Elapsed   time.Duration
	Fragments int
}

type streamingSession struct {
	fragments []string
	startedAt time.Time
}

// Tracker holds the in-progress streaming reply of each connection.
// At most one session exists per connection id.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*streamingSession
	now      func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*streamingSession),
		now:      time.Now,
	}
}

// Begin opens a session for connectionID. Fails with ErrTurnInProgress if one exists.
func (t *Tracker) Begin(connectionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[connectionID]; exists {
		return ErrTurnInProgress
	}
	t.sessions[connectionID] = &streamingSession{startedAt: t.now()}
	return nil
}

func (t *Tracker) Has(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[connectionID]
	return ok
}

// AppendFragment buffers text and returns it for immediate forwarding.
// It is a no-op returning false when no session exists.
func (t *Tracker) AppendFragment(connectionID, text string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[connectionID]
	if !ok {
		return "", false
	}
	s.fragments = append(s.fragments, text)
	return text, true
}

// End closes the session. finalText wins when non-empty; otherwise the
// fragments are concatenated in arrival order.
func (t *Tracker) End(connectionID, finalText string) (Reply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[connectionID]
	if !ok {
		return Reply{}, false
	}
	delete(t.sessions, connectionID)

	text := finalText
	if text == "" {
		text = strings.Join(s.fragments, "")
	}
	return Reply{
		Text:      text,
		Elapsed:   t.now().Sub(s.startedAt),
		Fragments: len(s.fragments),
	}, true
}

// Abort closes the session and returns the partial concatenation.
func (t *Tracker) Abort(connectionID string) (Reply, bool) {
	return t.End(connectionID, "")
}

// Discard drops the session without producing a reply.
func (t *Tracker) Discard(connectionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.sessions[connectionID]
	delete(t.sessions, connectionID)
	return ok
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
