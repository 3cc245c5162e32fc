package farmbrief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// DebatePhase is the debate state machine phase.
type DebatePhase string

const (
	DebatePhaseAwaiting  DebatePhase = "awaiting_participants"
	DebatePhaseOpening   DebatePhase = "opening"
	DebatePhaseMain      DebatePhase = "main"
	DebatePhaseClosing   DebatePhase = "closing"
	DebatePhaseCompleted DebatePhase = "completed"
)

// debateSpeakingPhases is the fixed phase sequence between participant
// matching and completion.
var debateSpeakingPhases = []DebatePhase{
	DebatePhaseOpening,
	DebatePhaseMain,
	DebatePhaseClosing,
}

// DebateSide identifies one of the two mutually exclusive participant slots.
type DebateSide string

const (
	DebateSideFor     DebateSide = "for"
	DebateSideAgainst DebateSide = "against"
)

var (
	// ErrSideClaimed is returned when claiming a side that's already bound.
	ErrSideClaimed = errors.New("side already claimed")

	// ErrAlreadyDebating is returned when one user tries to claim both sides.
	ErrAlreadyDebating = errors.New("you already claimed the other side")

	// ErrSidesUnclaimed indicates the matching window closed with at least
	// one side still empty; the session is discarded without entering any
	// speaking phase.
	ErrSidesUnclaimed = errors.New("debate sides were not both claimed in time")
)

// DebateSession holds the mutable state of one debate run.
type DebateSession struct {
	Topic     string
	Format    string
	Durations DebatePhaseDurations

	mu          sync.Mutex
	phase       DebatePhase
	sides       map[DebateSide]string
	transcripts map[DebatePhase][]string
}

// NewDebateSession returns a DebateSession awaiting participants.
func NewDebateSession(
	topic string,
	format string,
	durations DebatePhaseDurations,
) *DebateSession {
	return &DebateSession{
		Topic:       topic,
		Format:      format,
		Durations:   durations,
		phase:       DebatePhaseAwaiting,
		sides:       map[DebateSide]string{},
		transcripts: map[DebatePhase][]string{},
	}
}

// Phase returns the current phase.
func (d *DebateSession) Phase() DebatePhase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

func (d *DebateSession) setPhase(p DebatePhase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = p
}

// Claim binds a side to a user. A side, once claimed, cannot be
// reclaimed, and a single user cannot hold both sides.
func (d *DebateSession) Claim(side DebateSide, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.sides[side]; ok {
		if existing == userID {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrSideClaimed, side)
	}
	other := DebateSideAgainst
	if side == DebateSideAgainst {
		other = DebateSideFor
	}
	if d.sides[other] == userID {
		return ErrAlreadyDebating
	}
	d.sides[side] = userID
	return nil
}

// Side returns the user bound to a side, if any.
func (d *DebateSession) Side(side DebateSide) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	userID, ok := d.sides[side]
	return userID, ok
}

// Matched reports whether both sides are claimed.
func (d *DebateSession) Matched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sides) == 2
}

// AppendTranscript records a speaker's line for the given phase.
func (d *DebateSession) AppendTranscript(phase DebatePhase, line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transcripts[phase] = append(d.transcripts[phase], line)
}

// Transcript aggregates all phase transcripts into a single text block.
func (d *DebateSession) Transcript() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	for _, phase := range debateSpeakingPhases {
		lines := d.transcripts[phase]
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", phase, strings.Join(lines, "\n"))
	}
	return strings.TrimSpace(sb.String())
}

func phaseTitle(phase DebatePhase) string {
	s := string(phase)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// phaseDuration returns the configured duration for a speaking phase.
func (d *DebateSession) phaseDuration(phase DebatePhase) time.Duration {
	switch phase {
	case DebatePhaseOpening:
		return d.Durations.Opening
	case DebatePhaseMain:
		return d.Durations.Main
	case DebatePhaseClosing:
		return d.Durations.Closing
	default:
		return 0
	}
}

// DebateSummarizer is the slice of the generation client the debate
// orchestrator uses.
type DebateSummarizer interface {
	DebateSummary(ctx context.Context, topic, transcript string) (string, error)
}

// DebateOrchestrator drives debate sessions through
// AwaitingParticipants -> Opening -> Main -> Closing -> Completed.
type DebateOrchestrator struct {
	messenger  Messenger
	signals    SignalSource
	summarizer DebateSummarizer
	recorder   SessionRecorder
	logger     *slog.Logger
	config     *SessionConfig
}

// NewDebateOrchestrator returns a debate orchestrator. recorder may be nil.
func NewDebateOrchestrator(
	messenger Messenger,
	signals SignalSource,
	summarizer DebateSummarizer,
	recorder SessionRecorder,
	logger *slog.Logger,
	config *SessionConfig,
) *DebateOrchestrator {
	return &DebateOrchestrator{
		messenger:  messenger,
		signals:    signals,
		summarizer: summarizer,
		recorder:   recorder,
		logger:     logger,
		config:     config,
	}
}

// Run executes the debate session to a terminal phase. The caller removes
// the session from the store on return, on every path.
func (o *DebateOrchestrator) Run(ctx context.Context, sess *Session) error {
	debate := sess.Debate
	started := time.Now()

	if err := o.awaitParticipants(ctx, sess); err != nil {
		_, _ = o.messenger.Send(
			sess.ChannelID,
			"⏳ The debate was called off: both sides weren't claimed in time.",
		)
		o.archive(sess, started, "discarded")
		return err
	}

	forUser, _ := debate.Side(DebateSideFor)
	againstUser, _ := debate.Side(DebateSideAgainst)

	for i, phase := range debateSpeakingPhases {
		if ctx.Err() != nil {
			o.archive(sess, started, "aborted")
			return ctx.Err()
		}
		debate.setPhase(phase)
		duration := debate.phaseDuration(phase)
		_, _ = o.messenger.Send(
			sess.ChannelID,
			fmt.Sprintf(
				"🗣️ **%s phase** (%s per side)",
				phaseTitle(phase),
				duration,
			),
		)

		o.speakingSlot(ctx, sess, phase, DebateSideFor, forUser, duration)
		o.speakingSlot(ctx, sess, phase, DebateSideAgainst, againstUser, duration)

		if i < len(debateSpeakingPhases)-1 {
			_, _ = o.messenger.Send(
				sess.ChannelID,
				fmt.Sprintf(
					"☕ Short break (%ds) before the next phase.",
					int(o.config.DebatePhaseBreak.Seconds()),
				),
			)
			select {
			case <-time.After(o.config.DebatePhaseBreak):
			case <-ctx.Done():
			}
		}
	}

	debate.setPhase(DebatePhaseCompleted)
	o.complete(ctx, sess)
	o.archive(sess, started, "completed")
	return nil
}

// awaitParticipants waits for exactly one participant to claim each side,
// up to the claim timeout. An incomplete pairing discards the session.
func (o *DebateOrchestrator) awaitParticipants(
	ctx context.Context,
	sess *Session,
) error {
	debate := sess.Debate
	announcement, err := o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"⚔️ **Debate**: %s\nFormat: %s\nReact %s to argue **for**, %s to argue **against**. Both sides must be claimed within %d seconds.",
			debate.Topic,
			debate.Format,
			emojiDebateFor,
			emojiDebateAgainst,
			int(o.config.DebateClaimTimeout.Seconds()),
		),
	)
	if err != nil {
		return fmt.Errorf("error announcing debate: %w", err)
	}
	_ = o.messenger.React(sess.ChannelID, announcement.ID, emojiDebateFor)
	_ = o.messenger.React(sess.ChannelID, announcement.ID, emojiDebateAgainst)

	deadline := time.Now().Add(o.config.DebateClaimTimeout)
	for !debate.Matched() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrSidesUnclaimed
		}
		sig, ok := o.signals.AwaitReaction(
			ctx,
			announcement.ID,
			func(sig ReactionSignal) bool {
				return sig.Emoji == emojiDebateFor ||
					sig.Emoji == emojiDebateAgainst
			},
			remaining,
		)
		if !ok {
			return ErrSidesUnclaimed
		}

		side := DebateSideFor
		if sig.Emoji == emojiDebateAgainst {
			side = DebateSideAgainst
		}
		if err := debate.Claim(side, sig.UserID); err != nil {
			_, _ = o.messenger.Send(
				sess.ChannelID,
				fmt.Sprintf("<@%s> %s", sig.UserID, err.Error()),
			)
			continue
		}
		_, _ = o.messenger.Send(
			sess.ChannelID,
			fmt.Sprintf(
				"<@%s> will argue **%s** the motion!",
				sig.UserID,
				side,
			),
		)
	}
	return nil
}

// speakingSlot gives one side its half-duration speaking slot plus a
// quarter-duration warning window, collecting the speaker's messages as
// the phase transcript.
func (o *DebateOrchestrator) speakingSlot(
	ctx context.Context,
	sess *Session,
	phase DebatePhase,
	side DebateSide,
	userID string,
	duration time.Duration,
) {
	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf(
			"🎤 <@%s> (%s), the floor is yours for %s.",
			userID,
			side,
			duration/2,
		),
	)
	o.collectSpeech(ctx, sess, phase, userID, duration/2)

	_, _ = o.messenger.Send(
		sess.ChannelID,
		fmt.Sprintf("⚠️ <@%s>, %s left to wrap up!", userID, duration/4),
	)
	o.collectSpeech(ctx, sess, phase, userID, duration/4)
}

func (o *DebateOrchestrator) collectSpeech(
	ctx context.Context,
	sess *Session,
	phase DebatePhase,
	userID string,
	window time.Duration,
) {
	messages := o.signals.CollectMessages(
		ctx,
		sess.ChannelID,
		func(m *discordgo.Message) bool {
			return m.Author != nil && m.Author.ID == userID && m.Content != ""
		},
		window,
	)
	for _, m := range messages {
		sess.Debate.AppendTranscript(
			phase,
			fmt.Sprintf("%s: %s", m.Author.Username, m.Content),
		)
	}
}

// complete requests the neutral summary and emits it in bounded-size
// chunks. Summary failures are reported but don't fail the session.
func (o *DebateOrchestrator) complete(ctx context.Context, sess *Session) {
	debate := sess.Debate
	transcript := debate.Transcript()
	if transcript == "" {
		_, _ = o.messenger.Send(
			sess.ChannelID,
			"🏁 Debate complete! Neither side said anything on the record, so there's nothing to summarize.",
		)
		return
	}

	summary, err := o.summarizer.DebateSummary(ctx, debate.Topic, transcript)
	if err != nil {
		o.logger.ErrorContext(ctx, "debate summary failed", tint.Err(err))
		_, _ = o.messenger.Send(
			sess.ChannelID,
			"🏁 Debate complete! (The summary couldn't be generated: "+err.Error()+")",
		)
		return
	}

	_ = o.messenger.SendChunked(
		sess.ChannelID,
		"🏁 **Debate Summary**",
		summary,
	)
}

func (o *DebateOrchestrator) archive(
	sess *Session,
	started time.Time,
	outcome string,
) {
	if o.recorder == nil {
		return
	}
	participants := 0
	if _, ok := sess.Debate.Side(DebateSideFor); ok {
		participants++
	}
	if _, ok := sess.Debate.Side(DebateSideAgainst); ok {
		participants++
	}
	o.recorder.RecordSession(
		&SessionRecord{
			SessionID:    sess.ID,
			Kind:         string(SessionKindDebate),
			ChannelID:    sess.ChannelID,
			Outcome:      outcome,
			Participants: participants,
			Items:        len(debateSpeakingPhases),
			DurationMS:   time.Since(started).Milliseconds(),
		},
	)
}
