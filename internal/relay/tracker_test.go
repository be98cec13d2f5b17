package relay

import (
	"errors"
	"testing"
	"time"
)

func TestTrackerBeginTwiceFails(t *testing.T) {
	tr := NewTracker()

	if err := tr.Begin("c1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Begin("c1"); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}

	tr.End("c1", "")
	if err := tr.Begin("c1"); err != nil {
		t.Errorf("begin after end should succeed: %v", err)
	}
	tr.Abort("c1")
	if err := tr.Begin("c1"); err != nil {
		t.Errorf("begin after abort should succeed: %v", err)
	}
}

func TestTrackerEnd(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	tr := NewTracker()
	tr.now = func() time.Time { return clock }

	tr.Begin("c1")
	for _, f := range []string{"a", "b", "c"} {
		if got, ok := tr.AppendFragment("c1", f); !ok || got != f {
			t.Fatalf("AppendFragment(%q) = %q, %v", f, got, ok)
		}
	}
	clock = start.Add(1500 * time.Millisecond)

	reply, ok := tr.End("c1", "")
	if !ok {
		t.Fatal("expected session to exist")
	}
	if reply.Text != "abc" || reply.Fragments != 3 || reply.Elapsed != 1500*time.Millisecond {
		t.Errorf("unexpected reply %+v", reply)
	}
	if tr.Has("c1") {
		t.Error("end must destroy the session")
	}

	tr.Begin("c2")
	tr.AppendFragment("c2", "draft")
	if reply, _ := tr.End("c2", "final"); reply.Text != "final" {
		t.Errorf("explicit final text should win, got %q", reply.Text)
	}
}

func TestTrackerWithoutSession(t *testing.T) {
	tr := NewTracker()

	if _, ok := tr.AppendFragment("ghost", "x"); ok {
		t.Error("append without session must be a no-op")
	}
	if tr.Has("ghost") {
		t.Error("append must not create a session")
	}
	if _, ok := tr.End("ghost", ""); ok {
		t.Error("end without session should report false")
	}
	if _, ok := tr.Abort("ghost"); ok {
		t.Error("abort without session should report false")
	}
	if tr.Discard("ghost") {
		t.Error("discard without session should report false")
	}
}

func TestTrackerAbortReturnsPartial(t *testing.T) {
	tr := NewTracker()
	tr.Begin("c1")
	tr.AppendFragment("c1", "par")
	tr.AppendFragment("c1", "tial")

	reply, ok := tr.Abort("c1")
	if !ok || reply.Text != "partial" {
		t.Fatalf("Abort = %+v, %v", reply, ok)
	}
	if tr.Len() != 0 {
		t.Error("abort must destroy the session")
	}
}

func TestTrackerIsolatesConnections(t *testing.T) {
	tr := NewTracker()
	tr.Begin("a")
	tr.Begin("b")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tr.AppendFragment("a", "a")
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		tr.AppendFragment("b", "b")
	}
	<-done

	ra, _ := tr.End("a", "")
	rb, _ := tr.End("b", "")
	for _, c := range ra.Text {
		if c != 'a' {
			t.Fatal("fragment of b leaked into a")
		}
	}
	for _, c := range rb.Text {
		if c != 'b' {
			t.Fatal("fragment of a leaked into b")
		}
	}
	if len(ra.Text) != 100 || len(rb.Text) != 100 {
		t.Errorf("lost fragments: a=%d b=%d", len(ra.Text), len(rb.Text))
	}
}
