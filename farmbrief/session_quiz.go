package farmbrief

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// QuizPhase is the quiz state machine phase.
type QuizPhase string

const (
	QuizPhaseForming   QuizPhase = "forming"
	QuizPhaseRunning   QuizPhase = "running"
	QuizPhaseCompleted QuizPhase = "completed"
)

// QuizSession holds the mutable state of one quiz run.
type QuizSession struct {
	Topic     string
	Questions []Question

	mu           sync.Mutex
	phase        QuizPhase
	current      int
	scores       map[string]int
	participants map[string]bool
}

// NewQuizSession returns a QuizSession in the Forming phase.
func NewQuizSession(topic string, questions []Question) *QuizSession {
	return &QuizSession{
		Topic:        topic,
		Questions:    questions,
		phase:        QuizPhaseForming,
		scores:       map[string]int{},
		participants: map[string]bool{},
	}
}

// Phase returns the current phase.
func (q *QuizSession) Phase() QuizPhase {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.phase
}

func (q *QuizSession) setPhase(p QuizPhase) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.phase = p
}

// Join registers a participant with a starting score of zero. Joining
// twice is a no-op.
func (q *QuizSession) Join(userID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.participants[userID] {
		return
	}
	q.participants[userID] = true
	q.scores[userID] = 0
}

// IsParticipant reports whether the user joined during the Forming phase.
func (q *QuizSession) IsParticipant(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.participants[userID]
}

// ParticipantCount returns the number of joined participants.
func (q *QuizSession) ParticipantCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.participants)
}

// AddScore adds points to a participant's accumulated score.
func (q *QuizSession) AddScore(userID string, points int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scores[userID] += points
}

// Score returns a participant's accumulated score.
func (q *QuizSession) Score(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.scores[userID]
}

// ScoreEntry is one leaderboard row.
type ScoreEntry struct {
	UserID string
	Score  int
}

// Leaderboard returns participants ranked by score, descending. Ties keep
// arbitrary encounter order.
func (q *QuizSession) Leaderboard() []ScoreEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]ScoreEntry, 0, len(q.scores))
	for userID, score := range q.scores {
		entries = append(entries, ScoreEntry{UserID: userID, Score: score})
	}
	sort.SliceStable(
		entries, func(i, j int) bool {
			return entries[i].Score > entries[j].Score
		},
	)
	return entries
}

// answerScore computes the points for a single answer: a correct answer is
// worth 100 plus 10 per full remaining second of the answer window; an
// incorrect answer is always worth 0.
func answerScore(correct bool, elapsed, window time.Duration) int {
	if !correct {
		return 0
	}
	remaining := window - elapsed
	if remaining < 0 {
		remaining = 0
	}
	// 10 points per full remaining tenth-of-second block, in integer math
	// to dodge float rounding at the window edges
	return 100 + int(remaining.Milliseconds()/100)
}

// QuizOrchestrator drives quiz sessions through
// Forming -> Running -> Completed.
type QuizOrchestrator struct {
	messenger Messenger
	signals   SignalSource
	recorder  SessionRecorder
	logger    *slog.Logger
	config    *SessionConfig
}

// NewQuizOrchestrator returns a quiz orchestrator. recorder may be nil.
func NewQuizOrchestrator(
	messenger Messenger,
	signals SignalSource,
	recorder SessionRecorder,
	logger *slog.Logger,
	config *SessionConfig,
) *QuizOrchestrator {
	return &QuizOrchestrator{
		messenger: messenger,
		signals:   signals,
		recorder:  recorder,
		logger:    logger,
		config:    config,
	}
}

// Run executes the quiz session to a terminal phase. The caller removes
// the session from the store on return, on every path.
func (o *QuizOrchestrator) Run(ctx context.Context, sess *Session) error {
	quiz := sess.Quiz
	started := time.Now()

	joined, err := o.forming(ctx, sess)
	if err != nil {
		return err
	}
	if joined == 0 {
		_, _ = o.messenger.Send(
			sess.ChannelID,
			"Nobody joined the quiz in time. Maybe later! 😢",
		)
		o.archive(sess, started, "discarded")
		return ErrNoParticipants
	}

	quiz.setPhase(QuizPhaseRunning)
	o.logger.InfoContext(
		ctx,
		"quiz running",
		"session_id", sess.ID,
		"participants", joined,
		"questions", len(quiz.Questions),
	)

	for i := range quiz.Questions {
		if ctx.Err() != nil {
			o.archive(sess, started, "aborted")
			return ctx.Err()
		}
		o.askQuestion(ctx, sess, i)

		// Leaderboard after every 2nd question and after the last
		number := i + 1
		if number%2 == 0 || number == len(quiz.Questions) {
			o.showLeaderboard(sess, "📊 Leaderboard")
		}

		if number < len(quiz.Questions) {
			select {
			case <-time.After(o.config.QuizQuestionPause):
			case <-ctx.Done():
			}
		}
	}

	quiz.setPhase(QuizPhaseCompleted)
	o.showLeaderboard(sess, "🏆 Final Results")
	o.archive(sess, started, "completed")
	return nil
}

// forming announces the quiz and collects join reactions for the join
// window. Returns the number of participants.
func (o *QuizOrchestrator) forming(
	ctx context.Context,
	sess *Session,
) (int, error) {
	quiz := sess.Quiz
	announcement, err := o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"🧠 **Quiz time!** Topic: %s\n%d questions. React with %s within %d seconds to join!",
			quiz.Topic,
			len(quiz.Questions),
			emojiQuizJoin,
			int(o.config.QuizJoinWindow.Seconds()),
		),
	)
	if err != nil {
		return 0, fmt.Errorf("error announcing quiz: %w", err)
	}
	_ = o.messenger.React(sess.ChannelID, announcement.ID, emojiQuizJoin)

	joins := o.signals.CollectReactions(
		ctx,
		announcement.ID,
		func(sig ReactionSignal) bool {
			return sig.Emoji == emojiQuizJoin
		},
		o.config.QuizJoinWindow,
	)
	for _, sig := range joins {
		quiz.Join(sig.UserID)
	}
	return quiz.ParticipantCount(), nil
}

// askQuestion emits question i, scores answers from the window, and
// reveals the correct option.
func (o *QuizOrchestrator) askQuestion(
	ctx context.Context,
	sess *Session,
	i int,
) {
	quiz := sess.Quiz
	quiz.mu.Lock()
	quiz.current = i
	quiz.mu.Unlock()

	q := quiz.Questions[i]

	var sb strings.Builder
	fmt.Fprintf(
		&sb,
		"**Question %d/%d**: %s\n\n",
		i+1,
		len(quiz.Questions),
		q.Prompt,
	)
	for _, label := range sortedLabels(q) {
		fmt.Fprintf(&sb, "%s  %s\n", quizOptionEmojis[label], q.Options[label])
	}
	fmt.Fprintf(
		&sb,
		"\nYou have %d seconds! ⏱️",
		int(o.config.QuizAnswerWindow.Seconds()),
	)

	msg, err := o.messenger.Send(sess.ChannelID, sb.String())
	if err != nil {
		o.logger.Error("error sending question", "error", err, "question", i+1)
		return
	}
	for _, label := range sortedLabels(q) {
		_ = o.messenger.React(sess.ChannelID, msg.ID, quizOptionEmojis[label])
	}

	windowStart := time.Now()
	answers := o.signals.CollectReactions(
		ctx,
		msg.ID,
		func(sig ReactionSignal) bool {
			_, isOption := quizEmojiOptions[sig.Emoji]
			return isOption && quiz.IsParticipant(sig.UserID)
		},
		o.config.QuizAnswerWindow,
	)

	// First valid reaction per participant wins; later signals from the
	// same participant in the same window are ignored.
	answered := map[string]bool{}
	correctCount := 0
	for _, sig := range answers {
		if answered[sig.UserID] {
			continue
		}
		answered[sig.UserID] = true

		label := quizEmojiOptions[sig.Emoji]
		correct := label == q.Correct
		if correct {
			correctCount++
		}
		elapsed := sig.At.Sub(windowStart)
		quiz.AddScore(
			sig.UserID,
			answerScore(correct, elapsed, o.config.QuizAnswerWindow),
		)
	}

	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"⏰ Time's up! The correct answer was **%s: %s**\n💡 %s\n(%d/%d answered correctly)",
			q.Correct,
			q.Options[q.Correct],
			q.Explanation,
			correctCount,
			len(answered),
		),
	)
}

func (o *QuizOrchestrator) showLeaderboard(sess *Session, title string) {
	entries := sess.Quiz.Leaderboard()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", title)
	medals := []string{"🥇", "🥈", "🥉"}
	for rank, entry := range entries {
		marker := fmt.Sprintf("%d.", rank+1)
		if rank < len(medals) {
			marker = medals[rank]
		}
		fmt.Fprintf(&sb, "%s <@%s> — %d points\n", marker, entry.UserID, entry.Score)
	}
	_, _ = o.messenger.Send(sess.ChannelID, sb.String())
}

func (o *QuizOrchestrator) archive(
	sess *Session,
	started time.Time,
	outcome string,
) {
	if o.recorder == nil {
		return
	}
	o.recorder.RecordSession(
		&SessionRecord{
			SessionID:    sess.ID,
			Kind:         string(SessionKindQuiz),
			ChannelID:    sess.ChannelID,
			Outcome:      outcome,
			Participants: sess.Quiz.ParticipantCount(),
			Items:        len(sess.Quiz.Questions),
			DurationMS:   time.Since(started).Milliseconds(),
		},
	)
}
