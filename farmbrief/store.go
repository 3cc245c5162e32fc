package farmbrief

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrSessionExists is returned when creating a session whose ID is
	// already present in the store.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionActive is returned when creating a session while another
	// session of the same kind is active in the same channel.
	ErrSessionActive = errors.New("a session of this kind is already active in this channel")

	// ErrSessionNotFound is returned when a session lookup fails.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoParticipants indicates an interactive session ended because
	// nobody joined in time.
	ErrNoParticipants = errors.New("no participants joined")
)

// SessionKind discriminates the session variant types.
type SessionKind string

const (
	SessionKindQuiz       SessionKind = "quiz"
	SessionKindDebate     SessionKind = "debate"
	SessionKindWhiteboard SessionKind = "whiteboard"
	SessionKindFlashcards SessionKind = "flashcards"
)

// Session is one run of an interactive multi-phase flow. It's a tagged
// variant: Kind indicates which of the payload pointers is non-nil, and
// exactly one of them is.
//
// A session is owned exclusively by its orchestrator goroutine; the store
// only hands out pointers so the API server can report on active sessions,
// which is why the payloads carry their own locks where cross-goroutine
// reads happen.
type Session struct {
	// ID is an opaque session identifier, derived from the triggering
	// message or interaction ID.
	ID string

	Kind      SessionKind
	ChannelID string
	CreatorID string
	CreatedAt time.Time

	Quiz       *QuizSession
	Debate     *DebateSession
	Whiteboard *WhiteboardSession
	Flashcards *FlashcardSession
}

// SessionStore is the process-wide registry of active interactive sessions.
// It has no persistence: a restart drops every in-flight session. It is an
// explicitly owned object passed to each orchestrator, never a package
// global.
//
// At most one session per {kind, channel} may be active at a time; Create
// enforces this for every kind. (The whiteboard flow additionally reports
// the conflict to the user before the orchestrator is ever started.)
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*Session{}}
}

// Create registers the session under its ID. It fails with
// ErrSessionExists if the ID is already present, and with ErrSessionActive
// if a session of the same kind is already active in the same channel.
func (s *SessionStore) Create(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, sess.ID)
	}
	for _, existing := range s.sessions {
		if existing.Kind == sess.Kind && existing.ChannelID == sess.ChannelID {
			return fmt.Errorf(
				"%w (kind=%s channel=%s)",
				ErrSessionActive,
				sess.Kind,
				sess.ChannelID,
			)
		}
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Get returns the session with the given ID, if present.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove deletes the session with the given ID. Removing an absent ID is
// a no-op: orchestrators call this from deferred cleanup on every exit
// path, so it must be idempotent.
func (s *SessionStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Find returns the first session matching the predicate, or nil.
func (s *SessionStore) Find(match func(*Session) bool) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if match(sess) {
			return sess
		}
	}
	return nil
}

// Active returns a snapshot of all registered sessions.
func (s *SessionStore) Active() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Len returns the number of registered sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
