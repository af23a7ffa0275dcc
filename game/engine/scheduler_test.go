package engine

import (
	"testing"
	"time"
)

func TestScheduler_Fires(t *testing.T) {
	s := NewScheduler()
	fired := 0
	s.Schedule("dialogue", 3*time.Second, func() { fired++ })

	s.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatal("fired early")
	}
	if !s.Pending("dialogue") {
		t.Error("expected a pending callback")
	}

	s.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("expected one firing, got %d", fired)
	}
	if s.Pending("dialogue") {
		t.Error("fired callbacks should not stay pending")
	}

	s.Advance(10 * time.Second)
	if fired != 1 {
		t.Error("callbacks fire only once")
	}
}

func TestScheduler_ReentryCancelsStaleTimer(t *testing.T) {
	s := NewScheduler()
	var got []string
	s.Schedule("attack", time.Second, func() { got = append(got, "first") })
	s.Advance(500 * time.Millisecond)
	s.Schedule("attack", time.Second, func() { got = append(got, "second") })

	s.Advance(600 * time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("stale timer fired: %v", got)
	}
	s.Advance(400 * time.Millisecond)
	if len(got) != 1 || got[0] != "second" {
		t.Errorf("expected only the re-entered timer, got %v", got)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler()
	fired := false
	tok := s.Schedule("x", time.Second, func() { fired = true })
	if !tok.Valid() {
		t.Fatal("issued token should be valid")
	}
	s.Cancel(tok)
	s.Cancel(tok)
	s.Advance(2 * time.Second)
	if fired {
		t.Error("cancelled callback fired")
	}

	s.Schedule("y", time.Second, func() { fired = true })
	s.CancelOwner("y")
	s.Advance(2 * time.Second)
	if fired {
		t.Error("owner-cancelled callback fired")
	}
}

func TestScheduler_OrderAndChaining(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.Schedule("b", 2*time.Second, func() { order = append(order, "b") })
	s.Schedule("a", time.Second, func() {
		order = append(order, "a")
		s.Schedule("c", 0, func() { order = append(order, "c") })
	})

	n := s.Advance(5 * time.Second)
	if n != 3 {
		t.Fatalf("expected 3 firings, got %d", n)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestScheduler_Reset(t *testing.T) {
	s := NewScheduler()
	fired := false
	s.Schedule("x", time.Second, func() { fired = true })
	s.Reset()
	s.Advance(time.Minute)
	if fired || s.Pending("x") {
		t.Error("reset should drop pending callbacks")
	}
}
