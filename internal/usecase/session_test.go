package usecase

import (
	"testing"
	"time"

	"conduit-ai/internal/domain"
)

func TestNewRequestSession(t *testing.T) {
	s := NewRequestSession("conv-1")
	if s.ID == "" {
		t.Error("missing session id")
	}
	if s.ConversationID != "conv-1" {
		t.Errorf("conversation = %s", s.ConversationID)
	}
	if s.Buffer == nil || s.Reservations == nil {
		t.Error("session arena not initialized")
	}
	if s.Outcome() != domain.OutcomeNone {
		t.Errorf("initial outcome = %s", s.Outcome())
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := NewRequestSession("conv-1")
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestSetOutcomeFirstTransitionWins(t *testing.T) {
	s := NewRequestSession("conv-1")
	s.SetOutcome(domain.OutcomeCancelled)
	s.SetOutcome(domain.OutcomeCompleted)
	if s.Outcome() != domain.OutcomeCancelled {
		t.Fatalf("outcome = %s, want cancelled", s.Outcome())
	}
}

func TestCancelIsSticky(t *testing.T) {
	s := NewRequestSession("conv-1")
	if s.Cancelled() {
		t.Fatal("fresh session cancelled")
	}
	s.Cancel()
	s.Cancel()
	if !s.Cancelled() {
		t.Fatal("cancel flag lost")
	}
}

func TestAttemptCounter(t *testing.T) {
	s := NewRequestSession("conv-1")
	if got := s.NextAttempt(); got != 1 {
		t.Fatalf("first attempt = %d", got)
	}
	if got := s.NextAttempt(); got != 2 {
		t.Fatalf("second attempt = %d", got)
	}
	if got := s.Attempts(); got != 2 {
		t.Fatalf("Attempts = %d", got)
	}
}

func TestIdleForTracksActivity(t *testing.T) {
	s := NewRequestSession("conv-1")
	s.lastActivity.Store(time.Now().Add(-time.Minute).UnixNano())
	if s.IdleFor() < 50*time.Second {
		t.Fatalf("IdleFor = %v", s.IdleFor())
	}
	s.TouchActivity()
	if s.IdleFor() > time.Second {
		t.Fatalf("IdleFor after touch = %v", s.IdleFor())
	}
}

func TestRegistryReplacesActiveSession(t *testing.T) {
	r := NewSessionRegistry()

	first := r.Begin("conv-1")
	second := r.Begin("conv-1")

	active, ok := r.Active("conv-1")
	if !ok || active != second {
		t.Fatal("newest session not active")
	}

	// Ending the superseded session must not evict the active one.
	r.End(first)
	if active, ok := r.Active("conv-1"); !ok || active != second {
		t.Fatal("ending a stale session evicted the active one")
	}

	r.End(second)
	if _, ok := r.Active("conv-1"); ok {
		t.Fatal("ended session still active")
	}
}
