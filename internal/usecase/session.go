package usecase

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"conduit-ai/internal/domain"
	"conduit-ai/internal/usecase/calls"
)

// RequestSession tracks one in-flight query against the backend. The
// function-call buffer and reservation table are scoped to the session
// (arena-style) and destroyed with it, so nothing leaks across requests.
type RequestSession struct {
	ID             string
	ConversationID string
	StartedAt      time.Time

	Buffer       *calls.Buffer
	Reservations *calls.Reservations

	attempt      atomic.Int64
	lastActivity atomic.Int64 // unix nanos
	cancelled    atomic.Bool
	outcome      atomic.Int32
}

// NewRequestSession creates a session with a generated ULID.
func NewRequestSession(conversationID string) *RequestSession {
	now := time.Now()
	s := &RequestSession{
		ID:             generateULID(now),
		ConversationID: conversationID,
		StartedAt:      now,
		Buffer:         calls.NewBuffer(),
		Reservations:   calls.NewReservations(),
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Cancel sets the cooperative cancellation flag. The poller observes it
// at the top of its next loop iteration, not preemptively.
func (s *RequestSession) Cancel() { s.cancelled.Store(true) }

// Cancelled reports whether cancellation was requested.
func (s *RequestSession) Cancelled() bool { return s.cancelled.Load() }

// TouchActivity resets the inactivity clock. Called on every successful
// decode; it never resets the attempt counter.
func (s *RequestSession) TouchActivity() { s.lastActivity.Store(time.Now().UnixNano()) }

// IdleFor returns how long the session has gone without activity.
func (s *RequestSession) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// NextAttempt increments and returns the attempt counter.
func (s *RequestSession) NextAttempt() int { return int(s.attempt.Add(1)) }

// Attempts returns the number of poll attempts consumed so far.
func (s *RequestSession) Attempts() int { return int(s.attempt.Load()) }

// SetOutcome records the terminal outcome once; later calls are ignored
// so the first terminal transition wins.
func (s *RequestSession) SetOutcome(o domain.SessionOutcome) {
	s.outcome.CompareAndSwap(int32(domain.OutcomeNone), int32(o))
}

// Outcome returns the recorded terminal outcome.
func (s *RequestSession) Outcome() domain.SessionOutcome {
	return domain.SessionOutcome(s.outcome.Load())
}

// SessionRegistry holds the active session per conversation. A
// conversation has at most one active request; starting a new one
// replaces (and implicitly abandons) the previous entry.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*RequestSession
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*RequestSession)}
}

// Begin creates and registers a session for a conversation.
func (r *SessionRegistry) Begin(conversationID string) *RequestSession {
	s := NewRequestSession(conversationID)
	r.mu.Lock()
	r.sessions[conversationID] = s
	r.mu.Unlock()
	return s
}

// Active returns the active session for a conversation, if any.
func (r *SessionRegistry) Active(conversationID string) (*RequestSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conversationID]
	return s, ok
}

// End removes the session if it is still the registered one. The
// session's buffer and reservations die with it.
func (r *SessionRegistry) End(s *RequestSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.ConversationID]; ok && cur == s {
		delete(r.sessions, s.ConversationID)
	}
}
