package farmbrief

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return newTintLogger(slog.LevelDebug, t.Name())
}

// fastSessionConfig returns session timing shrunk so orchestrator loops
// finish in milliseconds.
func fastSessionConfig() *SessionConfig {
	return &SessionConfig{
		QuizJoinWindow:        10 * time.Millisecond,
		QuizAnswerWindow:      10 * time.Millisecond,
		QuizQuestionPause:     time.Millisecond,
		DebateClaimTimeout:    20 * time.Millisecond,
		DebatePhaseBreak:      time.Millisecond,
		FlashcardIdleTimeout:  20 * time.Millisecond,
		WhiteboardPollTimeout: 5 * time.Millisecond,
	}
}

// fakeMessenger records everything sent through it.
type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	sent      []string
	files     []string
	reactions []string
	cleared   []string
	sendErr   error
}

func (m *fakeMessenger) Send(channelID string, content string) (
	*discordgo.Message,
	error,
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.nextID++
	m.sent = append(m.sent, content)
	return &discordgo.Message{
		ID:        fmt.Sprintf("msg-%d", m.nextID),
		ChannelID: channelID,
	}, nil
}

func (m *fakeMessenger) SendChunked(
	channelID string,
	header string,
	content string,
) error {
	for _, chunk := range chunkString(content, messageChunkSize) {
		if _, err := m.Send(channelID, header+"\n"+chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *fakeMessenger) SendFile(
	channelID string,
	content string,
	filename string,
	r io.Reader,
) (*discordgo.Message, error) {
	m.mu.Lock()
	m.files = append(m.files, filename)
	m.mu.Unlock()
	return m.Send(channelID, content)
}

func (m *fakeMessenger) React(
	channelID string,
	messageID string,
	emoji string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, messageID+":"+emoji)
	return nil
}

func (m *fakeMessenger) ClearReactions(channelID string, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, messageID)
	return nil
}

func (m *fakeMessenger) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *fakeMessenger) containsMessage(t testing.TB, substr string) bool {
	t.Helper()
	for _, msg := range m.messages() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// fakeSignals is a scripted SignalSource. Unset fields behave like an
// expired wait.
type fakeSignals struct {
	awaitReaction func(
		messageID string,
		match func(ReactionSignal) bool,
	) (ReactionSignal, bool)
	collectReactions func(
		messageID string,
		match func(ReactionSignal) bool,
	) []ReactionSignal
	awaitMessage func(
		channelID string,
		match func(*discordgo.Message) bool,
	) (*discordgo.Message, bool)
	collectMessages func(
		channelID string,
		match func(*discordgo.Message) bool,
	) []*discordgo.Message
}

func (f *fakeSignals) AwaitReaction(
	_ context.Context,
	messageID string,
	match func(ReactionSignal) bool,
	_ time.Duration,
) (ReactionSignal, bool) {
	if f.awaitReaction == nil {
		return ReactionSignal{}, false
	}
	return f.awaitReaction(messageID, match)
}

func (f *fakeSignals) CollectReactions(
	_ context.Context,
	messageID string,
	match func(ReactionSignal) bool,
	_ time.Duration,
) []ReactionSignal {
	if f.collectReactions == nil {
		return nil
	}
	return f.collectReactions(messageID, match)
}

func (f *fakeSignals) AwaitMessage(
	_ context.Context,
	channelID string,
	match func(*discordgo.Message) bool,
	_ time.Duration,
) (*discordgo.Message, bool) {
	if f.awaitMessage == nil {
		return nil, false
	}
	return f.awaitMessage(channelID, match)
}

func (f *fakeSignals) CollectMessages(
	_ context.Context,
	channelID string,
	match func(*discordgo.Message) bool,
	_ time.Duration,
) []*discordgo.Message {
	if f.collectMessages == nil {
		return nil
	}
	return f.collectMessages(channelID, match)
}

// recorderStub collects archived session records.
type recorderStub struct {
	mu      sync.Mutex
	records []*SessionRecord
}

func (r *recorderStub) RecordSession(rec *SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorderStub) last(t testing.TB) *SessionRecord {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		t.Fatal("no session records archived")
	}
	return r.records[len(r.records)-1]
}

// newTestGenerator builds a Generator around a scripted completion client.
func newTestGenerator(t testing.TB, client chatCompleter) *Generator {
	t.Helper()
	return &Generator{
		client:         client,
		config:         &LLMConfig{Model: "test-model", VisionModel: "test-vision"},
		logger:         testLogger(t),
		requestLimiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func testQuestions(n int) []Question {
	questions := make([]Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(
			questions,
			Question{
				Prompt: fmt.Sprintf("Question %d?", i+1),
				Options: map[string]string{
					"A": "option a",
					"B": "option b",
					"C": "option c",
					"D": "option d",
				},
				Correct:     "B",
				Explanation: "Because B.",
			},
		)
	}
	return questions
}
