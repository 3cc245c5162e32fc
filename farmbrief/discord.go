package farmbrief

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Reaction controls used by the interactive session kinds. Quiz answers use
// the regional indicator emojis so the option letter is visible in the
// reaction itself.
const (
	emojiQuizJoin      = "🎮"
	emojiOptionA       = "🇦"
	emojiOptionB       = "🇧"
	emojiOptionC       = "🇨"
	emojiOptionD       = "🇩"
	emojiDebateFor     = "✅"
	emojiDebateAgainst = "❌"
	emojiCardReveal    = "💡"
	emojiCardNext      = "➡️"
	emojiCardCorrect   = "✅"
	emojiCardIncorrect = "❌"
	emojiCardEnd       = "🛑"
)

var quizOptionEmojis = map[string]string{
	"A": emojiOptionA,
	"B": emojiOptionB,
	"C": emojiOptionC,
	"D": emojiOptionD,
}

var quizEmojiOptions = map[string]string{
	emojiOptionA: "A",
	emojiOptionB: "B",
	emojiOptionC: "C",
	emojiOptionD: "D",
}

// Messenger is the slice of Discord functionality orchestrators need to
// emit progress and results. The concrete implementation is [Discord];
// tests substitute a recorder.
type Messenger interface {
	Send(channelID string, content string) (*discordgo.Message, error)

	// SendChunked splits content into parts of at most messageChunkSize
	// runes and sends each, prefixed with the header and a part counter
	// when more than one part is needed.
	SendChunked(channelID string, header string, content string) error

	SendFile(
		channelID string,
		content string,
		filename string,
		r io.Reader,
	) (*discordgo.Message, error)

	React(channelID string, messageID string, emoji string) error

	// ClearReactions removes all reactions from a message. Best effort:
	// used to invalidate controls on superseded flashcard displays.
	ClearReactions(channelID string, messageID string) error
}

// Discord manages the gateway connection and implements Messenger.
type Discord struct {
	session           *discordgo.Session
	config            *DiscordConfig
	logger            *slog.Logger
	connected         atomic.Bool
	removeHandlerFns  []func()
	registeredCmdIDs  []string
	metricConnects    atomic.Int64
	metricDisconnects atomic.Int64
}

func newDiscord(config *DiscordConfig, logger *slog.Logger) (*Discord, error) {
	d := &Discord{
		config: config,
		logger: logger,
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.Identify.Intents = config.GatewayIntents
	session.SyncEvents = false
	session.StateEnabled = true
	if config.httpClient != nil {
		session.Client = config.httpClient
	}
	d.session = session
	return d, nil
}

// open connects to the gateway. Handlers must be registered beforehand.
func (d *Discord) open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening discord connection: %w", err)
	}
	return nil
}

func (d *Discord) close() error {
	for _, remove := range d.removeHandlerFns {
		remove()
	}
	d.removeHandlerFns = nil
	return d.session.Close()
}

func (d *Discord) addHandler(handler any) {
	d.removeHandlerFns = append(
		d.removeHandlerFns,
		d.session.AddHandler(handler),
	)
}

func (d *Discord) botUserID() string {
	if d.session.State != nil && d.session.State.User != nil {
		return d.session.State.User.ID
	}
	return ""
}

// Send implements Messenger.
func (d *Discord) Send(channelID string, content string) (
	*discordgo.Message,
	error,
) {
	return d.session.ChannelMessageSend(channelID, content)
}

// SendChunked implements Messenger.
func (d *Discord) SendChunked(
	channelID string,
	header string,
	content string,
) error {
	chunks := chunkString(content, messageChunkSize)
	for i, chunk := range chunks {
		var msg string
		switch {
		case len(chunks) == 1 && header == "":
			msg = chunk
		case len(chunks) == 1:
			msg = fmt.Sprintf("%s\n%s", header, chunk)
		case header == "":
			msg = fmt.Sprintf("Part %d/%d:\n%s", i+1, len(chunks), chunk)
		default:
			msg = fmt.Sprintf(
				"%s (Part %d/%d):\n%s",
				header,
				i+1,
				len(chunks),
				chunk,
			)
		}
		if _, err := d.session.ChannelMessageSend(channelID, msg); err != nil {
			return fmt.Errorf("error sending chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// SendFile implements Messenger.
func (d *Discord) SendFile(
	channelID string,
	content string,
	filename string,
	r io.Reader,
) (*discordgo.Message, error) {
	return d.session.ChannelFileSendWithMessage(
		channelID,
		content,
		filename,
		r,
	)
}

// React implements Messenger.
func (d *Discord) React(channelID string, messageID string, emoji string) error {
	return d.session.MessageReactionAdd(channelID, messageID, emoji)
}

// ClearReactions implements Messenger.
func (d *Discord) ClearReactions(channelID string, messageID string) error {
	return d.session.MessageReactionsRemoveAll(channelID, messageID)
}

// channelHistory fetches up to limit recent messages from a channel, newest
// first (the order Discord returns them in).
func (d *Discord) channelHistory(
	channelID string,
	limit int,
) ([]*discordgo.Message, error) {
	if limit <= 0 {
		limit = DefaultDiscussionLimit
	}
	var messages []*discordgo.Message
	beforeID := ""
	for len(messages) < limit {
		batchSize := limit - len(messages)
		if batchSize > 100 {
			batchSize = 100
		}
		batch, err := d.session.ChannelMessages(
			channelID,
			batchSize,
			beforeID,
			"",
			"",
		)
		if err != nil {
			return nil, fmt.Errorf("error fetching channel history: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		messages = append(messages, batch...)
		beforeID = batch[len(batch)-1].ID
	}
	return messages, nil
}

// registerCommands registers the application's slash commands, scoped to
// the configured guild if one is set.
func (d *Discord) registerCommands(ctx context.Context) error {
	appID := d.session.State.User.ID
	for _, cmd := range applicationCommands() {
		created, err := d.session.ApplicationCommandCreate(
			appID,
			d.config.GuildID,
			cmd,
		)
		if err != nil {
			return fmt.Errorf(
				"error registering command %q: %w",
				cmd.Name,
				err,
			)
		}
		d.registeredCmdIDs = append(d.registeredCmdIDs, created.ID)
		d.logger.InfoContext(
			ctx,
			"registered slash command",
			"name", cmd.Name,
			"id", created.ID,
		)
	}
	return nil
}
