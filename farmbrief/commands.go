package farmbrief

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// Slash command names.
const (
	cmdSummarize   = "summarize"
	cmdPodcast     = "podcast"
	cmdQuiz        = "quiz"
	cmdDebate      = "debate"
	cmdWhiteboard  = "whiteboard"
	cmdFlashcards  = "flashcards"
	cmdSpeak       = "speak"
	cmdSoundEffect = "soundeffect"
	cmdVoices      = "voices"
	cmdCleanup     = "cleanup"
)

// maxPodcastSegmentFailures is the number of per-segment TTS failures
// tolerated before the podcast pipeline gives up.
const maxPodcastSegmentFailures = 3

// voicesListLimit bounds the /voices catalog reply.
const voicesListLimit = 20

func applicationCommands() []*discordgo.ApplicationCommand {
	minMessages := float64(1)
	manageServer := int64(discordgo.PermissionManageServer)
	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdSummarize,
			Description: "Summarize recent discussion or an attached PDF",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "PDF to summarize instead of chat history",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "How many recent messages to include",
					MinValue:    &minMessages,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "words",
					Description: "Maximum summary length in words",
				},
			},
		},
		{
			Name:        cmdPodcast,
			Description: "Turn recent discussion or an attached PDF into a podcast",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "PDF to discuss instead of chat history",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "How many recent messages to include",
					MinValue:    &minMessages,
				},
			},
		},
		{
			Name:        cmdQuiz,
			Description: "Start an interactive quiz on recent discussion or a PDF",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "topic",
					Description: "Display topic for the quiz",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "questions",
					Description: "Number of questions",
					MinValue:    &minMessages,
				},
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "PDF to quiz on instead of chat history",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "How many recent messages to include",
					MinValue:    &minMessages,
				},
			},
		},
		{
			Name:        cmdDebate,
			Description: "Start a structured one-on-one debate",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "topic",
					Description: "The motion to debate",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "format",
					Description: "Debate format",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "quick", Value: "quick"},
						{Name: "standard", Value: "standard"},
					},
				},
			},
		},
		{
			Name:        cmdWhiteboard,
			Description: "Collect and summarize whiteboard images",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start a whiteboard session in this channel",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "title",
							Description: "Whiteboard title",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "end",
					Description: "End the active whiteboard session",
				},
			},
		},
		{
			Name:        cmdFlashcards,
			Description: "Start a flashcard review on recent discussion or a PDF",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "topic",
					Description: "Display topic for the deck",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "cards",
					Description: "Number of cards",
					MinValue:    &minMessages,
				},
				{
					Type:        discordgo.ApplicationCommandOptionAttachment,
					Name:        "file",
					Description: "PDF to study instead of chat history",
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "messages",
					Description: "How many recent messages to include",
					MinValue:    &minMessages,
				},
			},
		},
		{
			Name:        cmdSpeak,
			Description: "Convert text to speech",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "Text to speak",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "voice",
					Description: "Voice ID (default voice if omitted)",
				},
			},
		},
		{
			Name:        cmdSoundEffect,
			Description: "Generate a short sound effect from a description",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "description",
					Description: "What the sound should be",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "seconds",
					Description: "Duration in seconds (0.5 to 22)",
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "influence",
					Description: "Prompt influence (0 to 1)",
				},
			},
		},
		{
			Name:        cmdVoices,
			Description: "List available voices",
		},
		{
			Name:                     cmdCleanup,
			Description:              "Purge old generated and temporary files",
			DefaultMemberPermissions: &manageServer,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "hours",
					Description: "Remove files older than this many hours",
					MinValue:    &minMessages,
				},
			},
		},
	}
}

// handleInteractionCreate is registered as the discordgo InteractionCreate
// handler and dispatches slash commands.
func (b *FarmBrief) handleInteractionCreate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	b.logger.Info(
		"interaction received",
		"command", data.Name,
		"channel_id", i.ChannelID,
		"user_id", interactionUserID(i),
	)

	switch data.Name {
	case cmdSummarize:
		b.handleSummarize(s, i)
	case cmdPodcast:
		b.handlePodcast(s, i)
	case cmdQuiz:
		b.handleQuiz(s, i)
	case cmdDebate:
		b.handleDebate(s, i)
	case cmdWhiteboard:
		b.handleWhiteboard(s, i)
	case cmdFlashcards:
		b.handleFlashcards(s, i)
	case cmdSpeak:
		b.handleSpeak(s, i)
	case cmdSoundEffect:
		b.handleSoundEffect(s, i)
	case cmdVoices:
		b.handleVoices(s, i)
	case cmdCleanup:
		b.handleCleanup(s, i)
	default:
		b.replyInteraction(s, i, "Unknown command.")
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// replyInteraction sends an immediate visible response.
func (b *FarmBrief) replyInteraction(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	content string,
) {
	err := s.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content},
		},
	)
	if err != nil {
		b.logger.Error("error responding to interaction", tint.Err(err))
	}
}

// ackInteraction defers the response so slow work can follow up later.
func (b *FarmBrief) ackInteraction(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) bool {
	err := s.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	)
	if err != nil {
		b.logger.Error("error acknowledging interaction", tint.Err(err))
		return false
	}
	return true
}

func (b *FarmBrief) followUp(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	content string,
) {
	_, err := s.FollowupMessageCreate(
		i.Interaction,
		true,
		&discordgo.WebhookParams{Content: content},
	)
	if err != nil {
		b.logger.Error("error sending interaction followup", tint.Err(err))
	}
}

func commandOptions(
	opts []*discordgo.ApplicationCommandInteractionDataOption,
) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(
		map[string]*discordgo.ApplicationCommandInteractionDataOption,
		len(opts),
	)
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}

// sourcedContent resolves the content a generation command operates on:
// an attached PDF when the file option is set, recent channel history
// otherwise. PDFs are archived to local storage as a side effect.
func (b *FarmBrief) sourcedContent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
) (string, error) {
	if opt, ok := opts["file"]; ok {
		attID, _ := opt.Value.(string)
		att := i.ApplicationCommandData().Resolved.Attachments[attID]
		if att == nil {
			return "", fmt.Errorf("attachment not found in interaction data")
		}
		if !strings.EqualFold(att.ContentType, "application/pdf") &&
			!strings.HasSuffix(strings.ToLower(att.Filename), ".pdf") {
			return "", fmt.Errorf("%s doesn't look like a PDF", att.Filename)
		}
		data, err := b.fetcher.Fetch(ctx, att.URL)
		if err != nil {
			return "", fmt.Errorf("couldn't download %s: %w", att.Filename, err)
		}
		if _, err := b.storage.SavePDF(data, att.Filename); err != nil {
			b.logger.Warn("error archiving PDF", tint.Err(err))
		}
		return ExtractPDF(data)
	}

	limit := DefaultDiscussionLimit
	if opt, ok := opts["messages"]; ok {
		limit = int(opt.IntValue())
	}
	history, err := b.discord.channelHistory(i.ChannelID, limit)
	if err != nil {
		return "", err
	}
	content := ExtractDiscussion(history)
	if content == noDiscussionNotice {
		return "", fmt.Errorf("no messages found to work with")
	}
	return content, nil
}

// runSession launches an orchestrator in its own goroutine. The session is
// removed from the store on every exit path, panics included, so a crashed
// session never wedges its {kind, channel} slot.
func (b *FarmBrief) runSession(
	sess *Session,
	run func(context.Context, *Session) error,
) {
	go func() {
		ctx := b.sessionContext()
		defer b.store.Remove(sess.ID)
		defer func() {
			if rc := recover(); rc != nil {
				b.logger.Error(
					"session panicked",
					"session_id", sess.ID,
					"kind", sess.Kind,
					"panic", truncatedDiagnostic(rc),
				)
				_, _ = b.discord.Send(
					sess.ChannelID,
					"💥 Something went wrong and the session was ended.",
				)
			}
		}()

		err := run(ctx, sess)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoParticipants),
			errors.Is(err, ErrSidesUnclaimed),
			errors.Is(err, context.Canceled):
			b.logger.Info(
				"session ended early",
				"session_id", sess.ID,
				"kind", sess.Kind,
				"reason", err.Error(),
			)
		default:
			b.logger.Error(
				"session failed",
				tint.Err(err),
				"session_id", sess.ID,
				"kind", sess.Kind,
			)
		}
	}()
}

func (b *FarmBrief) handleSummarize(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	go func() {
		ctx := b.sessionContext()
		content, err := b.sourcedContent(ctx, i, opts)
		if err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}
		maxWords := 0
		if opt, ok := opts["words"]; ok {
			maxWords = int(opt.IntValue())
		}
		summary, err := b.generator.Summarize(ctx, content, maxWords)
		if err != nil {
			b.followUp(s, i, "⚠️ Summary generation failed: "+err.Error())
			return
		}
		b.followUp(s, i, "📝 Summary coming up!")
		_ = b.discord.SendChunked(i.ChannelID, "📝 **Summary**", summary)
	}()
}

func (b *FarmBrief) handlePodcast(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	go func() {
		ctx := b.sessionContext()
		content, err := b.sourcedContent(ctx, i, opts)
		if err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}
		b.followUp(s, i, "🎙️ Working on your podcast, this can take a few minutes...")
		if err := b.buildPodcast(ctx, i.ChannelID, content); err != nil {
			b.logger.Error("podcast pipeline failed", tint.Err(err))
			_, _ = b.discord.Send(
				i.ChannelID,
				"⚠️ Podcast generation failed: "+err.Error(),
			)
		}
	}()
}

// buildPodcast runs the full script-to-audio pipeline: generate the
// dialogue, post the script, synthesize each line with its host's voice,
// and attach the combined audio. Temp segment files are cleaned up on
// every exit path.
func (b *FarmBrief) buildPodcast(
	ctx context.Context,
	channelID string,
	content string,
) error {
	dialogue, err := b.generator.PodcastScript(ctx, content)
	if err != nil {
		return err
	}

	var script strings.Builder
	for _, line := range dialogue {
		fmt.Fprintf(&script, "**%s**: %s\n", line.Speaker, line.Text)
	}
	_ = b.discord.SendChunked(channelID, "🎙️ **Podcast Script**", script.String())

	var segmentPaths []string
	defer func() {
		removeFiles(segmentPaths)
	}()

	failures := 0
	for idx, line := range dialogue {
		data, err := b.audio.Speak(
			ctx,
			line.Text+segmentBreakTag,
			b.hostVoice(line.Speaker),
		)
		if err != nil {
			if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrInvalidAPIKey) {
				return err
			}
			failures++
			b.logger.Warn(
				"podcast segment synthesis failed",
				tint.Err(err),
				"segment", idx+1,
				"failures", failures,
			)
			if failures > maxPodcastSegmentFailures {
				return fmt.Errorf(
					"too many segment failures (%d), giving up: %w",
					failures,
					err,
				)
			}
			continue
		}

		path := b.storage.TempPath(
			fmt.Sprintf("segment_%03d_%s.mp3", idx, uuid.NewString()),
		)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("error writing segment: %w", err)
		}
		segmentPaths = append(segmentPaths, path)
	}

	if len(segmentPaths) == 0 {
		return fmt.Errorf("no podcast segments were synthesized")
	}

	podcastID := uuid.NewString()
	outPath := b.storage.TempPath("podcast_" + podcastID + ".mp3")
	if err := combineSegmentFiles(segmentPaths, outPath); err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(outPath)
	}()

	combined, err := os.ReadFile(outPath)
	if err != nil {
		return fmt.Errorf("error reading combined audio: %w", err)
	}
	if _, err := b.storage.SaveAudio(combined, "podcast_"+podcastID); err != nil {
		b.logger.Warn("error archiving podcast audio", tint.Err(err))
	}

	_, err = b.discord.SendFile(
		channelID,
		"🎧 Here's your podcast!",
		"podcast.mp3",
		bytes.NewReader(combined),
	)
	if err != nil {
		return fmt.Errorf("error attaching podcast audio: %w", err)
	}
	return nil
}

func (b *FarmBrief) handleQuiz(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	go func() {
		ctx := b.sessionContext()
		content, err := b.sourcedContent(ctx, i, opts)
		if err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}

		count := DefaultQuizQuestionCount
		if opt, ok := opts["questions"]; ok {
			count = int(opt.IntValue())
		}
		topic := "this channel's discussion"
		if opt, ok := opts["topic"]; ok {
			topic = opt.StringValue()
		}

		questions, err := b.generator.QuizQuestions(ctx, content, count)
		if err != nil {
			b.followUp(s, i, "⚠️ Quiz generation failed: "+err.Error())
			return
		}

		sess := &Session{
			ID:        i.ID,
			Kind:      SessionKindQuiz,
			ChannelID: i.ChannelID,
			CreatorID: interactionUserID(i),
			CreatedAt: time.Now(),
			Quiz:      NewQuizSession(topic, questions),
		}
		if err := b.store.Create(sess); err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}
		b.followUp(s, i, "🧠 Quiz starting!")
		b.runSession(sess, b.quizzes.Run)
	}()
}

func (b *FarmBrief) handleDebate(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	opts := commandOptions(i.ApplicationCommandData().Options)
	topic := opts["topic"].StringValue()
	format := "quick"
	if opt, ok := opts["format"]; ok {
		format = opt.StringValue()
	}
	durations, ok := DebateFormats[format]
	if !ok {
		b.replyInteraction(s, i, "⚠️ Unknown debate format: "+format)
		return
	}

	sess := &Session{
		ID:        i.ID,
		Kind:      SessionKindDebate,
		ChannelID: i.ChannelID,
		CreatorID: interactionUserID(i),
		CreatedAt: time.Now(),
		Debate:    NewDebateSession(topic, format, durations),
	}
	if err := b.store.Create(sess); err != nil {
		b.replyInteraction(s, i, "⚠️ "+err.Error())
		return
	}
	b.replyInteraction(s, i, "⚔️ Debate starting!")
	b.runSession(sess, b.debates.Run)
}

func (b *FarmBrief) handleWhiteboard(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		b.replyInteraction(s, i, "⚠️ Use `/whiteboard start` or `/whiteboard end`.")
		return
	}
	sub := data.Options[0]

	switch sub.Name {
	case "start":
		title := "Whiteboard"
		if subOpts := commandOptions(sub.Options); subOpts["title"] != nil {
			title = subOpts["title"].StringValue()
		}
		sess := &Session{
			ID:         i.ID,
			Kind:       SessionKindWhiteboard,
			ChannelID:  i.ChannelID,
			CreatorID:  interactionUserID(i),
			CreatedAt:  time.Now(),
			Whiteboard: NewWhiteboardSession(title, interactionUserID(i)),
		}
		if err := b.store.Create(sess); err != nil {
			b.replyInteraction(s, i, "⚠️ "+err.Error())
			return
		}
		b.replyInteraction(s, i, "🖼️ Whiteboard session starting!")
		b.runSession(sess, b.whiteboards.Run)

	case "end":
		sess := b.store.Find(
			func(sess *Session) bool {
				return sess.Kind == SessionKindWhiteboard &&
					sess.ChannelID == i.ChannelID
			},
		)
		if sess == nil {
			b.replyInteraction(
				s,
				i,
				"⚠️ There's no active whiteboard session in this channel.",
			)
			return
		}
		sess.Whiteboard.End()
		b.replyInteraction(s, i, "🖼️ Wrapping up the whiteboard session...")

	default:
		b.replyInteraction(s, i, "⚠️ Unknown whiteboard subcommand.")
	}
}

func (b *FarmBrief) handleFlashcards(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	go func() {
		ctx := b.sessionContext()
		content, err := b.sourcedContent(ctx, i, opts)
		if err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}

		count := DefaultFlashcardCount
		if opt, ok := opts["cards"]; ok {
			count = int(opt.IntValue())
		}
		topic := "this channel's discussion"
		if opt, ok := opts["topic"]; ok {
			topic = opt.StringValue()
		}

		cards, err := b.generator.Flashcards(ctx, content, count)
		if err != nil {
			b.followUp(s, i, "⚠️ Flashcard generation failed: "+err.Error())
			return
		}

		sess := &Session{
			ID:         i.ID,
			Kind:       SessionKindFlashcards,
			ChannelID:  i.ChannelID,
			CreatorID:  interactionUserID(i),
			CreatedAt:  time.Now(),
			Flashcards: NewFlashcardSession(topic, cards),
		}
		if err := b.store.Create(sess); err != nil {
			b.followUp(s, i, "⚠️ "+err.Error())
			return
		}
		b.followUp(s, i, "🗂️ Flashcards ready!")
		b.runSession(sess, b.flashcards.Run)
	}()
}

func (b *FarmBrief) handleSpeak(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	text := opts["text"].StringValue()
	voice := ""
	if opt, ok := opts["voice"]; ok {
		voice = opt.StringValue()
	}
	go func() {
		ctx := b.sessionContext()
		data, err := b.audio.Speak(ctx, text, voice)
		if err != nil {
			b.followUp(s, i, "⚠️ Speech generation failed: "+err.Error())
			return
		}
		if _, err := b.storage.SaveAudio(data, "speech_"+i.ID); err != nil {
			b.logger.Warn("error archiving speech audio", tint.Err(err))
		}
		b.followUp(s, i, "🔊 Here you go!")
		_, _ = b.discord.SendFile(
			i.ChannelID,
			"",
			"speech.mp3",
			bytes.NewReader(data),
		)
	}()
}

func (b *FarmBrief) handleSoundEffect(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	opts := commandOptions(i.ApplicationCommandData().Options)
	description := opts["description"].StringValue()
	seconds := 3.0
	if opt, ok := opts["seconds"]; ok {
		seconds = opt.FloatValue()
	}
	influence := 0.3
	if opt, ok := opts["influence"]; ok {
		influence = opt.FloatValue()
	}
	go func() {
		ctx := b.sessionContext()
		data, err := b.audio.SoundEffect(ctx, description, seconds, influence)
		if err != nil {
			b.followUp(s, i, "⚠️ Sound effect generation failed: "+err.Error())
			return
		}
		b.followUp(s, i, "🔊 Here's your sound effect!")
		_, _ = b.discord.SendFile(
			i.ChannelID,
			"",
			"effect.mp3",
			bytes.NewReader(data),
		)
	}()
}

func (b *FarmBrief) handleVoices(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !b.ackInteraction(s, i) {
		return
	}
	go func() {
		ctx := b.sessionContext()
		voices, err := b.audio.Voices(ctx)
		if err != nil {
			b.followUp(s, i, "⚠️ Couldn't fetch the voice catalog: "+err.Error())
			return
		}
		var sb strings.Builder
		sb.WriteString("🎤 **Available voices**\n")
		for idx, v := range voices {
			if idx >= voicesListLimit {
				fmt.Fprintf(&sb, "...and %d more\n", len(voices)-voicesListLimit)
				break
			}
			fmt.Fprintf(&sb, "`%s` %s", v.ID, v.Name)
			if gender := v.Labels["gender"]; gender != "" {
				fmt.Fprintf(&sb, " (%s)", gender)
			}
			sb.WriteString("\n")
		}
		b.followUp(s, i, sb.String())
	}()
}

// canManageServer reports whether the invoking member has the Manage
// Server permission. DM invocations carry no member and are rejected.
func canManageServer(i *discordgo.InteractionCreate) bool {
	return i.Member != nil &&
		i.Member.Permissions&discordgo.PermissionManageServer != 0
}

// cleanupMaxAge resolves the retention window for one cleanup run: the
// hours option when given, the configured default otherwise.
func cleanupMaxAge(
	opts map[string]*discordgo.ApplicationCommandInteractionDataOption,
	fallback time.Duration,
) time.Duration {
	if opt, ok := opts["hours"]; ok {
		return time.Duration(opt.IntValue()) * time.Hour
	}
	return fallback
}

func (b *FarmBrief) handleCleanup(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if !canManageServer(i) {
		b.replyInteraction(
			s,
			i,
			"🚫 You need the Manage Server permission to run cleanup.",
		)
		return
	}
	maxAge := cleanupMaxAge(
		commandOptions(i.ApplicationCommandData().Options),
		b.config.Storage.MaxFileAge,
	)
	removed, err := b.storage.CleanupOldFiles(maxAge)
	if err != nil {
		b.replyInteraction(
			s,
			i,
			fmt.Sprintf("⚠️ Cleanup finished with errors (%d removed): %s", removed, err.Error()),
		)
		return
	}
	b.replyInteraction(
		s,
		i,
		fmt.Sprintf("🧹 Cleanup complete: removed %d old file(s).", removed),
	)
}
