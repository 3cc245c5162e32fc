package farmbrief

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// flashcardControls are the reaction controls added to every displayed card.
var flashcardControls = []string{
	emojiCardReveal,
	emojiCardNext,
	emojiCardCorrect,
	emojiCardIncorrect,
	emojiCardEnd,
}

// FlashcardStats accumulates review judgments for one session.
type FlashcardStats struct {
	Correct   int
	Incorrect int

	// Reviewed is the set of judged card indices. Marking the same index
	// twice counts both attempts in Correct/Incorrect, but coverage is
	// de-duplicated here.
	Reviewed map[int]bool
}

// FlashcardSession holds the mutable state of one flashcard review run.
// It has a single steady state (reviewing) with a cyclic card index.
type FlashcardSession struct {
	Topic string
	Cards []Flashcard

	mu        sync.Mutex
	current   int
	revealed  bool
	displayed string
	stats     FlashcardStats
}

// NewFlashcardSession returns a session positioned at the first card.
func NewFlashcardSession(topic string, cards []Flashcard) *FlashcardSession {
	return &FlashcardSession{
		Topic: topic,
		Cards: cards,
		stats: FlashcardStats{Reviewed: map[int]bool{}},
	}
}

// Current returns the current card index and card.
func (f *FlashcardSession) Current() (int, Flashcard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.Cards[f.current]
}

// Revealed reports whether the current card's answer is shown.
func (f *FlashcardSession) Revealed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revealed
}

// Reveal marks the current card's answer as shown. Idempotent; does not
// advance the index.
func (f *FlashcardSession) Reveal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revealed = true
}

// Advance moves to the next card modulo deck size and hides the answer.
func (f *FlashcardSession) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = (f.current + 1) % len(f.Cards)
	f.revealed = false
}

// MarkCorrect records a correct judgment against the current card, then
// advances.
func (f *FlashcardSession) MarkCorrect() {
	f.mu.Lock()
	f.stats.Correct++
	f.stats.Reviewed[f.current] = true
	f.mu.Unlock()
	f.Advance()
}

// MarkIncorrect records an incorrect judgment against the current card,
// then advances.
func (f *FlashcardSession) MarkIncorrect() {
	f.mu.Lock()
	f.stats.Incorrect++
	f.stats.Reviewed[f.current] = true
	f.mu.Unlock()
	f.Advance()
}

// Stats returns a snapshot of the review statistics.
func (f *FlashcardSession) Stats() FlashcardStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	reviewed := make(map[int]bool, len(f.stats.Reviewed))
	for k, v := range f.stats.Reviewed {
		reviewed[k] = v
	}
	return FlashcardStats{
		Correct:   f.stats.Correct,
		Incorrect: f.stats.Incorrect,
		Reviewed:  reviewed,
	}
}

// Accuracy is correct/(correct+incorrect), or 0 when nothing was judged.
func (s FlashcardStats) Accuracy() float64 {
	total := s.Correct + s.Incorrect
	if total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(total)
}

// SetDisplayedMessage replaces the tracked display message. Only control
// reactions on the currently tracked message are actionable; the previous
// message's controls are invalidated by the caller.
func (f *FlashcardSession) SetDisplayedMessage(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayed = messageID
}

// DisplayedMessage returns the tracked display message ID.
func (f *FlashcardSession) DisplayedMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.displayed
}

// CoverageByDifficulty returns reviewed and total card counts per
// difficulty level, over the reviewed-index set.
func (f *FlashcardSession) CoverageByDifficulty() map[int][2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	coverage := map[int][2]int{}
	for i, card := range f.Cards {
		entry := coverage[card.Difficulty]
		entry[1]++
		if f.stats.Reviewed[i] {
			entry[0]++
		}
		coverage[card.Difficulty] = entry
	}
	return coverage
}

// FlashcardOrchestrator drives flashcard review sessions: a single
// reviewing state with reaction controls and a cyclic card index.
type FlashcardOrchestrator struct {
	messenger Messenger
	signals   SignalSource
	recorder  SessionRecorder
	logger    *slog.Logger
	config    *SessionConfig
}

// NewFlashcardOrchestrator returns a flashcard orchestrator. recorder may
// be nil.
func NewFlashcardOrchestrator(
	messenger Messenger,
	signals SignalSource,
	recorder SessionRecorder,
	logger *slog.Logger,
	config *SessionConfig,
) *FlashcardOrchestrator {
	return &FlashcardOrchestrator{
		messenger: messenger,
		signals:   signals,
		recorder:  recorder,
		logger:    logger,
		config:    config,
	}
}

// Run reviews cards until the end control or an idle timeout. The caller
// removes the session from the store on return, on every path.
func (o *FlashcardOrchestrator) Run(ctx context.Context, sess *Session) error {
	deck := sess.Flashcards
	started := time.Now()

	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"🗂️ **Flashcards**: %s (%d cards)\n%s reveal · %s next · %s correct · %s incorrect · %s end",
			deck.Topic,
			len(deck.Cards),
			emojiCardReveal,
			emojiCardNext,
			emojiCardCorrect,
			emojiCardIncorrect,
			emojiCardEnd,
		),
	)

	if err := o.display(sess); err != nil {
		o.archive(sess, started, "error")
		return err
	}

	for {
		if ctx.Err() != nil {
			o.archive(sess, started, "aborted")
			return ctx.Err()
		}

		messageID := deck.DisplayedMessage()
		sig, ok := o.signals.AwaitReaction(
			ctx,
			messageID,
			func(sig ReactionSignal) bool {
				for _, control := range flashcardControls {
					if sig.Emoji == control {
						return true
					}
				}
				return false
			},
			o.config.FlashcardIdleTimeout,
		)
		if !ok {
			// idle: nobody touched the controls for the whole window
			_, _ = o.messenger.Send(
				sess.ChannelID,
				"💤 Flashcard session ended due to inactivity.",
			)
			break
		}

		// Stale signals on superseded display messages are dropped by the
		// messageID scoping above; only the tracked message is actionable.
		switch sig.Emoji {
		case emojiCardReveal:
			deck.Reveal()
			if err := o.display(sess); err != nil {
				o.archive(sess, started, "error")
				return err
			}
		case emojiCardNext:
			deck.Advance()
			if err := o.display(sess); err != nil {
				o.archive(sess, started, "error")
				return err
			}
		case emojiCardCorrect:
			deck.MarkCorrect()
			if err := o.display(sess); err != nil {
				o.archive(sess, started, "error")
				return err
			}
		case emojiCardIncorrect:
			deck.MarkIncorrect()
			if err := o.display(sess); err != nil {
				o.archive(sess, started, "error")
				return err
			}
		case emojiCardEnd:
			o.summarize(sess)
			o.archive(sess, started, "completed")
			return nil
		}
	}

	o.summarize(sess)
	o.archive(sess, started, "completed")
	return nil
}

// display sends the current card (with its answer if revealed), replaces
// the tracked message, and invalidates the previous display's controls.
func (o *FlashcardOrchestrator) display(sess *Session) error {
	deck := sess.Flashcards
	index, card := deck.Current()

	var sb strings.Builder
	fmt.Fprintf(
		&sb,
		"**Card %d/%d** · %s · difficulty %s\n\n❓ %s",
		index+1,
		len(deck.Cards),
		card.Category,
		strings.Repeat("⭐", card.Difficulty),
		card.Question,
	)
	if deck.Revealed() {
		fmt.Fprintf(&sb, "\n\n💡 **Answer**: %s", card.Answer)
	}

	msg, err := o.messenger.Send(sess.ChannelID, sb.String())
	if err != nil {
		return fmt.Errorf("error displaying card: %w", err)
	}

	previous := deck.DisplayedMessage()
	deck.SetDisplayedMessage(msg.ID)
	if previous != "" {
		// best effort: stale controls on the old display are inert either
		// way, but clearing them avoids confusing leftovers
		_ = o.messenger.ClearReactions(sess.ChannelID, previous)
	}

	for _, control := range flashcardControls {
		_ = o.messenger.React(sess.ChannelID, msg.ID, control)
	}
	return nil
}

func (o *FlashcardOrchestrator) summarize(sess *Session) {
	deck := sess.Flashcards
	stats := deck.Stats()

	var sb strings.Builder
	sb.WriteString("📈 **Review Summary**\n")
	fmt.Fprintf(
		&sb,
		"Judged: %d (✅ %d / ❌ %d) · Accuracy: %.0f%%\n",
		stats.Correct+stats.Incorrect,
		stats.Correct,
		stats.Incorrect,
		stats.Accuracy()*100,
	)
	for difficulty := 1; difficulty <= 3; difficulty++ {
		entry, ok := deck.CoverageByDifficulty()[difficulty]
		if !ok {
			continue
		}
		fmt.Fprintf(
			&sb,
			"%s: %d/%d reviewed\n",
			strings.Repeat("⭐", difficulty),
			entry[0],
			entry[1],
		)
	}
	_, _ = o.messenger.Send(sess.ChannelID, sb.String())
}

func (o *FlashcardOrchestrator) archive(
	sess *Session,
	started time.Time,
	outcome string,
) {
	if o.recorder == nil {
		return
	}
	stats := sess.Flashcards.Stats()
	o.recorder.RecordSession(
		&SessionRecord{
			SessionID:    sess.ID,
			Kind:         string(SessionKindFlashcards),
			ChannelID:    sess.ChannelID,
			Outcome:      outcome,
			Participants: 1,
			Items:        len(sess.Flashcards.Cards),
			DurationMS:   time.Since(started).Milliseconds(),
			Extra: fmt.Sprintf(
				"correct=%d incorrect=%d reviewed=%d",
				stats.Correct,
				stats.Incorrect,
				len(stats.Reviewed),
			),
		},
	)
}
