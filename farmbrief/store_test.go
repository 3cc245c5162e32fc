package farmbrief

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id string, kind SessionKind, channelID string) *Session {
	sess := &Session{
		ID:        id,
		Kind:      kind,
		ChannelID: channelID,
		CreatorID: "creator",
		CreatedAt: time.Now(),
	}
	switch kind {
	case SessionKindQuiz:
		sess.Quiz = NewQuizSession("topic", testQuestions(1))
	case SessionKindDebate:
		sess.Debate = NewDebateSession("topic", "quick", DebateFormats["quick"])
	case SessionKindWhiteboard:
		sess.Whiteboard = NewWhiteboardSession("board", "creator")
	case SessionKindFlashcards:
		sess.Flashcards = NewFlashcardSession(
			"topic",
			[]Flashcard{{Question: "q", Answer: "a", Difficulty: 1}},
		)
	}
	return sess
}

func TestSessionStoreCreate(t *testing.T) {
	store := NewSessionStore()

	require.NoError(
		t,
		store.Create(newTestSession("s1", SessionKindQuiz, "chan-1")),
	)
	assert.Equal(t, 1, store.Len())

	t.Run(
		"duplicate ID rejected", func(t *testing.T) {
			err := store.Create(newTestSession("s1", SessionKindDebate, "chan-2"))
			assert.ErrorIs(t, err, ErrSessionExists)
		},
	)

	t.Run(
		"same kind same channel rejected", func(t *testing.T) {
			err := store.Create(newTestSession("s2", SessionKindQuiz, "chan-1"))
			assert.ErrorIs(t, err, ErrSessionActive)
		},
	)

	t.Run(
		"different kind same channel allowed", func(t *testing.T) {
			err := store.Create(newTestSession("s3", SessionKindDebate, "chan-1"))
			assert.NoError(t, err)
		},
	)

	t.Run(
		"same kind different channel allowed", func(t *testing.T) {
			err := store.Create(newTestSession("s4", SessionKindQuiz, "chan-2"))
			assert.NoError(t, err)
		},
	)
}

func TestSessionStoreRemove(t *testing.T) {
	store := NewSessionStore()
	require.NoError(
		t,
		store.Create(newTestSession("s1", SessionKindQuiz, "chan-1")),
	)

	store.Remove("s1")
	_, ok := store.Get("s1")
	assert.False(t, ok)

	// removing an absent session is a no-op
	store.Remove("s1")
	store.Remove("never-existed")
	assert.Equal(t, 0, store.Len())

	// the slot is free again
	assert.NoError(
		t,
		store.Create(newTestSession("s5", SessionKindQuiz, "chan-1")),
	)
}

func TestSessionStoreFind(t *testing.T) {
	store := NewSessionStore()
	require.NoError(
		t,
		store.Create(newTestSession("s1", SessionKindWhiteboard, "chan-1")),
	)
	require.NoError(
		t,
		store.Create(newTestSession("s2", SessionKindQuiz, "chan-1")),
	)

	found := store.Find(
		func(sess *Session) bool {
			return sess.Kind == SessionKindWhiteboard && sess.ChannelID == "chan-1"
		},
	)
	require.NotNil(t, found)
	assert.Equal(t, "s1", found.ID)

	missing := store.Find(
		func(sess *Session) bool {
			return sess.Kind == SessionKindDebate
		},
	)
	assert.Nil(t, missing)

	assert.Len(t, store.Active(), 2)
}
