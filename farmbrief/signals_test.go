package farmbrief

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitReaction(t *testing.T) {
	hub := NewSignalHub()

	done := make(chan struct{})
	var got ReactionSignal
	var ok bool
	go func() {
		defer close(done)
		got, ok = hub.AwaitReaction(
			context.Background(),
			"msg-1",
			func(sig ReactionSignal) bool {
				return sig.Emoji == emojiQuizJoin
			},
			time.Second,
		)
	}()

	// give the waiter time to register
	require.Eventually(
		t, func() bool {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			return len(hub.reactionWaiters) == 1
		}, time.Second, time.Millisecond,
	)

	// wrong message, wrong emoji, then the match
	hub.DispatchReaction(
		ReactionSignal{UserID: "u1", MessageID: "other", Emoji: emojiQuizJoin},
	)
	hub.DispatchReaction(
		ReactionSignal{UserID: "u1", MessageID: "msg-1", Emoji: "🤷"},
	)
	hub.DispatchReaction(
		ReactionSignal{UserID: "u1", MessageID: "msg-1", Emoji: emojiQuizJoin},
	)

	<-done
	require.True(t, ok)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, emojiQuizJoin, got.Emoji)

	// waiter deregistered on return
	hub.mu.Lock()
	assert.Empty(t, hub.reactionWaiters)
	hub.mu.Unlock()
}

func TestAwaitReactionTimeout(t *testing.T) {
	hub := NewSignalHub()
	_, ok := hub.AwaitReaction(
		context.Background(),
		"msg-1",
		nil,
		5*time.Millisecond,
	)
	assert.False(t, ok)
}

func TestAwaitReactionContextCancelled(t *testing.T) {
	hub := NewSignalHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := hub.AwaitReaction(ctx, "msg-1", nil, time.Minute)
	assert.False(t, ok)
}

func TestCollectReactions(t *testing.T) {
	hub := NewSignalHub()
	hub.SetBotUserID("bot")

	var wg sync.WaitGroup
	wg.Add(1)
	var got []ReactionSignal
	go func() {
		defer wg.Done()
		got = hub.CollectReactions(
			context.Background(),
			"msg-1",
			nil,
			50*time.Millisecond,
		)
	}()

	require.Eventually(
		t, func() bool {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			return len(hub.reactionWaiters) == 1
		}, time.Second, time.Millisecond,
	)

	hub.DispatchReaction(
		ReactionSignal{UserID: "u1", MessageID: "msg-1", Emoji: emojiOptionA},
	)
	// the bot's own prompt reactions are filtered
	hub.DispatchReaction(
		ReactionSignal{UserID: "bot", MessageID: "msg-1", Emoji: emojiOptionB},
	)
	hub.DispatchReaction(
		ReactionSignal{UserID: "u2", MessageID: "msg-1", Emoji: emojiOptionC},
	)

	wg.Wait()
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "u2", got[1].UserID)
}

func TestAwaitMessageFiltersBots(t *testing.T) {
	hub := NewSignalHub()

	done := make(chan struct{})
	var got *discordgo.Message
	var ok bool
	go func() {
		defer close(done)
		got, ok = hub.AwaitMessage(
			context.Background(),
			"chan-1",
			func(m *discordgo.Message) bool {
				return len(m.Attachments) > 0
			},
			time.Second,
		)
	}()

	require.Eventually(
		t, func() bool {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			return len(hub.messageWaiters) == 1
		}, time.Second, time.Millisecond,
	)

	hub.DispatchMessage(
		&discordgo.Message{
			ChannelID:   "chan-1",
			Author:      &discordgo.User{ID: "b1", Bot: true},
			Attachments: []*discordgo.MessageAttachment{{}},
		},
	)
	hub.DispatchMessage(
		&discordgo.Message{
			ChannelID: "chan-1",
			Author:    &discordgo.User{ID: "u1"},
		},
	)
	hub.DispatchMessage(
		&discordgo.Message{
			ID:          "the-one",
			ChannelID:   "chan-1",
			Author:      &discordgo.User{ID: "u1"},
			Attachments: []*discordgo.MessageAttachment{{}},
		},
	)

	<-done
	require.True(t, ok)
	assert.Equal(t, "the-one", got.ID)
}

func TestCollectMessagesMultipleWaiters(t *testing.T) {
	hub := NewSignalHub()

	var wg sync.WaitGroup
	results := make([][]*discordgo.Message, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = hub.CollectMessages(
				context.Background(),
				"chan-1",
				nil,
				50*time.Millisecond,
			)
		}(i)
	}

	require.Eventually(
		t, func() bool {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			return len(hub.messageWaiters) == 2
		}, time.Second, time.Millisecond,
	)

	hub.DispatchMessage(
		&discordgo.Message{
			ChannelID: "chan-1",
			Author:    &discordgo.User{ID: "u1"},
			Content:   "hello",
		},
	)

	wg.Wait()
	// every registered waiter sees the same event
	require.Len(t, results[0], 1)
	require.Len(t, results[1], 1)
}

func TestHandleReactionAdd(t *testing.T) {
	hub := NewSignalHub()

	done := make(chan struct{})
	var got ReactionSignal
	var ok bool
	go func() {
		defer close(done)
		got, ok = hub.AwaitReaction(
			context.Background(), "msg-1", nil, time.Second,
		)
	}()

	require.Eventually(
		t, func() bool {
			hub.mu.Lock()
			defer hub.mu.Unlock()
			return len(hub.reactionWaiters) == 1
		}, time.Second, time.Millisecond,
	)

	hub.HandleReactionAdd(
		nil,
		&discordgo.MessageReactionAdd{
			MessageReaction: &discordgo.MessageReaction{
				UserID:    "u1",
				ChannelID: "chan-1",
				MessageID: "msg-1",
				Emoji:     discordgo.Emoji{Name: emojiOptionD},
			},
		},
	)

	<-done
	require.True(t, ok)
	assert.Equal(t, emojiOptionD, got.Emoji)
	assert.False(t, got.At.IsZero())
}
