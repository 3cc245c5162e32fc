package farmbrief

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ReactionSignal is an inbound reaction event consumed by an orchestrator
// wait point.
type ReactionSignal struct {
	UserID    string
	ChannelID string
	MessageID string
	Emoji     string
	At        time.Time
}

// SignalSource provides timed waits over the Discord event stream.
//
// Every wait carries an explicit timeout and reports expiry through the
// returned boolean (or an empty slice), never through an error: "nobody
// reacted in time" is an expected outcome, not a failure.
type SignalSource interface {
	// AwaitReaction waits for the first matching reaction on the given
	// message. ok is false if the timeout elapsed or ctx was cancelled.
	AwaitReaction(
		ctx context.Context,
		messageID string,
		match func(ReactionSignal) bool,
		timeout time.Duration,
	) (ReactionSignal, bool)

	// CollectReactions gathers all matching reactions on the given message
	// until the window closes, in arrival order.
	CollectReactions(
		ctx context.Context,
		messageID string,
		match func(ReactionSignal) bool,
		window time.Duration,
	) []ReactionSignal

	// AwaitMessage waits for the first matching message in the given
	// channel. ok is false if the timeout elapsed or ctx was cancelled.
	AwaitMessage(
		ctx context.Context,
		channelID string,
		match func(*discordgo.Message) bool,
		timeout time.Duration,
	) (*discordgo.Message, bool)

	// CollectMessages gathers all matching messages in the given channel
	// until the window closes, in arrival order.
	CollectMessages(
		ctx context.Context,
		channelID string,
		match func(*discordgo.Message) bool,
		window time.Duration,
	) []*discordgo.Message
}

// signalWaiterBuffer bounds how many undelivered signals a single waiter
// can hold. Signals beyond it are dropped rather than blocking the
// discordgo event dispatcher.
const signalWaiterBuffer = 64

type reactionWaiter struct {
	messageID string
	match     func(ReactionSignal) bool
	ch        chan ReactionSignal
}

type messageWaiter struct {
	channelID string
	match     func(*discordgo.Message) bool
	ch        chan *discordgo.Message
}

// SignalHub fans Discord reaction/message events out to registered
// orchestrator wait points. discordgo dispatches handlers on their own
// goroutines, so registration and delivery are mutex-guarded.
type SignalHub struct {
	mu              sync.Mutex
	nextID          int64
	reactionWaiters map[int64]*reactionWaiter
	messageWaiters  map[int64]*messageWaiter
	botUserID       string
}

// NewSignalHub returns an empty SignalHub.
func NewSignalHub() *SignalHub {
	return &SignalHub{
		reactionWaiters: map[int64]*reactionWaiter{},
		messageWaiters:  map[int64]*messageWaiter{},
	}
}

// SetBotUserID records the bot's own user ID so its reactions (the option
// emojis it adds to its own prompts) are never delivered to waiters.
func (h *SignalHub) SetBotUserID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.botUserID = id
}

// HandleReactionAdd is registered as a discordgo MessageReactionAdd handler.
func (h *SignalHub) HandleReactionAdd(
	_ *discordgo.Session,
	r *discordgo.MessageReactionAdd,
) {
	if r == nil || r.MessageReaction == nil {
		return
	}
	h.DispatchReaction(
		ReactionSignal{
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			MessageID: r.MessageID,
			Emoji:     r.Emoji.Name,
			At:        time.Now(),
		},
	)
}

// HandleMessageCreate is registered as a discordgo MessageCreate handler.
func (h *SignalHub) HandleMessageCreate(
	_ *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	if m == nil || m.Message == nil {
		return
	}
	h.DispatchMessage(m.Message)
}

// DispatchReaction delivers a reaction signal to all matching waiters.
func (h *SignalHub) DispatchReaction(sig ReactionSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.botUserID != "" && sig.UserID == h.botUserID {
		return
	}
	for _, w := range h.reactionWaiters {
		if w.messageID != sig.MessageID {
			continue
		}
		if w.match != nil && !w.match(sig) {
			continue
		}
		select {
		case w.ch <- sig:
		default:
		}
	}
}

// DispatchMessage delivers a message to all matching waiters.
func (h *SignalHub) DispatchMessage(m *discordgo.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.Author != nil && (m.Author.Bot || m.Author.ID == h.botUserID) {
		return
	}
	for _, w := range h.messageWaiters {
		if w.channelID != m.ChannelID {
			continue
		}
		if w.match != nil && !w.match(m) {
			continue
		}
		select {
		case w.ch <- m:
		default:
		}
	}
}

func (h *SignalHub) addReactionWaiter(w *reactionWaiter) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.reactionWaiters[id] = w
	return id
}

func (h *SignalHub) removeReactionWaiter(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.reactionWaiters, id)
}

func (h *SignalHub) addMessageWaiter(w *messageWaiter) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.messageWaiters[id] = w
	return id
}

func (h *SignalHub) removeMessageWaiter(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.messageWaiters, id)
}

// AwaitReaction implements SignalSource.
func (h *SignalHub) AwaitReaction(
	ctx context.Context,
	messageID string,
	match func(ReactionSignal) bool,
	timeout time.Duration,
) (ReactionSignal, bool) {
	w := &reactionWaiter{
		messageID: messageID,
		match:     match,
		ch:        make(chan ReactionSignal, signalWaiterBuffer),
	}
	id := h.addReactionWaiter(w)
	defer h.removeReactionWaiter(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-w.ch:
		return sig, true
	case <-timer.C:
		return ReactionSignal{}, false
	case <-ctx.Done():
		return ReactionSignal{}, false
	}
}

// CollectReactions implements SignalSource.
func (h *SignalHub) CollectReactions(
	ctx context.Context,
	messageID string,
	match func(ReactionSignal) bool,
	window time.Duration,
) []ReactionSignal {
	w := &reactionWaiter{
		messageID: messageID,
		match:     match,
		ch:        make(chan ReactionSignal, signalWaiterBuffer),
	}
	id := h.addReactionWaiter(w)
	defer h.removeReactionWaiter(id)

	timer := time.NewTimer(window)
	defer timer.Stop()

	var signals []ReactionSignal
	for {
		select {
		case sig := <-w.ch:
			signals = append(signals, sig)
		case <-timer.C:
			return signals
		case <-ctx.Done():
			return signals
		}
	}
}

// AwaitMessage implements SignalSource.
func (h *SignalHub) AwaitMessage(
	ctx context.Context,
	channelID string,
	match func(*discordgo.Message) bool,
	timeout time.Duration,
) (*discordgo.Message, bool) {
	w := &messageWaiter{
		channelID: channelID,
		match:     match,
		ch:        make(chan *discordgo.Message, signalWaiterBuffer),
	}
	id := h.addMessageWaiter(w)
	defer h.removeMessageWaiter(id)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-w.ch:
		return m, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// CollectMessages implements SignalSource.
func (h *SignalHub) CollectMessages(
	ctx context.Context,
	channelID string,
	match func(*discordgo.Message) bool,
	window time.Duration,
) []*discordgo.Message {
	w := &messageWaiter{
		channelID: channelID,
		match:     match,
		ch:        make(chan *discordgo.Message, signalWaiterBuffer),
	}
	id := h.addMessageWaiter(w)
	defer h.removeMessageWaiter(id)

	timer := time.NewTimer(window)
	defer timer.Stop()

	var messages []*discordgo.Message
	for {
		select {
		case m := <-w.ch:
			messages = append(messages, m)
		case <-timer.C:
			return messages
		case <-ctx.Done():
			return messages
		}
	}
}
