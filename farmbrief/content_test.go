package farmbrief

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDiscussion(t *testing.T) {
	at := func(minute int) time.Time {
		return time.Date(2026, 8, 1, 14, minute, 0, 0, time.UTC)
	}
	// newest-first, as the channel history API returns them
	messages := []*discordgo.Message{
		{
			Author:    &discordgo.User{Username: "bob"},
			Content:   "second point",
			Timestamp: at(10),
		},
		{
			Author:    &discordgo.User{Username: "helper", Bot: true},
			Content:   "bot noise",
			Timestamp: at(8),
		},
		{
			Author:    &discordgo.User{Username: "alice"},
			Content:   "!oldcommand",
			Timestamp: at(6),
		},
		{
			Author:    &discordgo.User{Username: "alice"},
			Content:   "",
			Timestamp: at(4),
		},
		nil,
		{
			Author:    &discordgo.User{Username: "alice"},
			Content:   "first point",
			Timestamp: at(2),
		},
	}

	out := ExtractDiscussion(messages)
	require.Contains(t, out, "Discussion History:")
	assert.NotContains(t, out, "bot noise")
	assert.NotContains(t, out, "!oldcommand")

	// chronological order: alice's line before bob's
	aliceIdx := strings.Index(out, "[2026-08-01 14:02] alice: first point")
	bobIdx := strings.Index(out, "[2026-08-01 14:10] bob: second point")
	require.GreaterOrEqual(t, aliceIdx, 0)
	require.GreaterOrEqual(t, bobIdx, 0)
	assert.Less(t, aliceIdx, bobIdx)
}

func TestExtractDiscussionEmpty(t *testing.T) {
	assert.Equal(t, noDiscussionNotice, ExtractDiscussion(nil))

	onlyBots := []*discordgo.Message{
		{
			Author:  &discordgo.User{Username: "helper", Bot: true},
			Content: "automated",
		},
	}
	assert.Equal(t, noDiscussionNotice, ExtractDiscussion(onlyBots))
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := ExtractPDF([]byte("this is not a pdf"))
	assert.Error(t, err)
}
