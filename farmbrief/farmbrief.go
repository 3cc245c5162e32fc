package farmbrief

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// fileCleanupInterval is how often old generated/temporary files are purged
// while the bot runs.
const fileCleanupInterval = time.Hour

// FarmBrief is the top-level bot: the Discord connection, the generation
// and audio clients, local storage, the session registry and the status
// API, wired together and run as one unit.
type FarmBrief struct {
	config *Config
	logger *slog.Logger

	discord   *Discord
	signals   *SignalHub
	store     *SessionStore
	generator *Generator
	audio     *AudioClient
	storage   *FileStorage
	fetcher   AttachmentFetcher
	db        *database
	api       *API

	quizzes     *QuizOrchestrator
	debates     *DebateOrchestrator
	whiteboards *WhiteboardOrchestrator
	flashcards  *FlashcardOrchestrator

	mu              sync.RWMutex
	runCtx          context.Context
	secondHostVoice string
}

// New validates the config and assembles a FarmBrief. Initialization
// errors are accumulated so a broken config reports everything wrong with
// it at once.
func New(config *Config) (*FarmBrief, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var errs []error

	if err := structValidator.Struct(config); err != nil {
		errs = append(errs, fmt.Errorf("invalid config: %w", err))
	}

	b := &FarmBrief{
		config: config,
		logger: newTintLogger(config.LogLevel, "farmbrief"),
		store:  NewSessionStore(),
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	gormDB, err := CreateDB(
		context.Background(),
		config.DatabaseType,
		config.Database,
		func(cfg *gorm.Config) {
			cfg.Logger = newGormStructuredLogger(
				newTintLogger(config.DatabaseLogLevel, "database"),
				config.DatabaseSlowThreshold,
			)
		},
	)
	if err != nil {
		errs = append(errs, err)
	} else {
		b.db = newDatabase(gormDB, newTintLogger(config.DatabaseLogLevel, "database"))
	}

	config.Discord.httpClient = httpClient
	discord, err := newDiscord(
		config.Discord,
		newTintLogger(config.Discord.LogLevel, "discord"),
	)
	if err != nil {
		errs = append(errs, err)
	}
	b.discord = discord

	b.signals = NewSignalHub()

	// db may be nil here; the generator treats a nil recorder as disabled
	var genRecorder GenerationRecorder
	var sessRecorder SessionRecorder
	if b.db != nil {
		genRecorder = b.db
		sessRecorder = b.db
	}
	b.generator = newGenerator(
		config.LLM,
		newTintLogger(config.LLM.LogLevel, "llm"),
		genRecorder,
	)
	b.audio = newAudioClient(
		config.Audio,
		httpClient,
		newTintLogger(config.Audio.LogLevel, "audio"),
	)
	b.fetcher = httpAttachmentFetcher{client: httpClient}

	storage, err := NewFileStorage(
		config.Storage.BaseDir,
		newTintLogger(config.LogLevel, "storage"),
	)
	if err != nil {
		errs = append(errs, err)
	}
	b.storage = storage

	sessionLogger := newTintLogger(config.LogLevel, "sessions")
	b.quizzes = NewQuizOrchestrator(
		b.discord,
		b.signals,
		sessRecorder,
		sessionLogger,
		config.Sessions,
	)
	b.debates = NewDebateOrchestrator(
		b.discord,
		b.signals,
		b.generator,
		sessRecorder,
		sessionLogger,
		config.Sessions,
	)
	b.whiteboards = NewWhiteboardOrchestrator(
		b.discord,
		b.signals,
		b.generator,
		b.fetcher,
		sessRecorder,
		sessionLogger,
		config.Sessions,
	)
	b.flashcards = NewFlashcardOrchestrator(
		b.discord,
		b.signals,
		sessRecorder,
		sessionLogger,
		config.Sessions,
	)

	api, err := newAPI(
		config.API,
		newTintLogger(config.API.LogLevel, "api"),
		b.store,
		b.db,
		b.storage,
		config.Storage.MaxFileAge,
	)
	if err != nil {
		errs = append(errs, err)
	}
	b.api = api

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b, nil
}

// Run connects to Discord, starts the status API, and blocks until ctx is
// cancelled or a component fails. Startup is bounded by StartupTimeout;
// shutdown by ShutdownTimeout.
func (b *FarmBrief) Run(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	startupCtx, cancelStartup := context.WithTimeout(
		ctx,
		b.config.StartupTimeout,
	)
	defer cancelStartup()

	discordgo.Logger = discordgoLoggerFunc(
		ctx,
		newTintLogger(b.config.Discord.DiscordgoLogLevel, "discordgo").Handler(),
	)

	b.discord.addHandler(b.signals.HandleReactionAdd)
	b.discord.addHandler(b.signals.HandleMessageCreate)
	b.discord.addHandler(b.handleInteractionCreate)
	b.discord.addHandler(
		func(_ *discordgo.Session, r *discordgo.Ready) {
			b.logger.Info(
				"discord ready",
				"username", r.User.Username,
				"session_id", r.SessionID,
			)
		},
	)

	if err := b.discord.open(); err != nil {
		return err
	}
	b.signals.SetBotUserID(b.discord.botUserID())

	if err := b.discord.registerCommands(startupCtx); err != nil {
		_ = b.discord.close()
		return err
	}

	b.resolveHostVoices(startupCtx)

	if b.config.Discord.StartupMessage != "" &&
		b.config.Discord.StatusChannelID != "" {
		_, err := b.discord.Send(
			b.config.Discord.StatusChannelID,
			b.config.Discord.StartupMessage,
		)
		if err != nil {
			b.logger.Warn("error sending startup message", tint.Err(err))
		}
	}

	b.logger.Info(
		"started",
		"version", Version,
		"config", b.config,
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(
		func() error {
			return b.api.Serve(groupCtx)
		},
	)
	g.Go(
		func() error {
			b.cleanupLoop(groupCtx)
			return nil
		},
	)
	g.Go(
		func() error {
			<-groupCtx.Done()
			return b.shutdown()
		},
	)
	return g.Wait()
}

// shutdown stops any sessions still waiting on Discord signals and closes
// the gateway connection, bounded by ShutdownTimeout.
func (b *FarmBrief) shutdown() error {
	b.logger.Info("shutting down")
	done := make(chan error, 1)
	go func() {
		done <- b.discord.close()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(b.config.ShutdownTimeout):
		return fmt.Errorf("discord close timed out after %s", b.config.ShutdownTimeout)
	}
}

// cleanupLoop periodically purges old generated and temporary files.
func (b *FarmBrief) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(fileCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := b.storage.CleanupOldFiles(b.config.Storage.MaxFileAge)
			if err != nil {
				b.logger.Warn("file cleanup failed", tint.Err(err))
			} else if removed > 0 {
				b.logger.Info("purged old files", "removed", removed)
			}
		}
	}
}

// resolveHostVoices picks the second podcast host's voice from the
// provider's catalog. Failures fall back to the default voice for both
// hosts.
func (b *FarmBrief) resolveHostVoices(ctx context.Context) {
	voices, err := b.audio.Voices(ctx)
	if err != nil {
		b.logger.Warn(
			"couldn't fetch voice catalog, using default voice for both hosts",
			tint.Err(err),
		)
		return
	}
	if v, ok := FemaleVoice(voices); ok {
		b.mu.Lock()
		b.secondHostVoice = v.ID
		b.mu.Unlock()
		b.logger.Info(
			"second host voice selected",
			"voice_id", v.ID,
			"voice_name", v.Name,
		)
	}
}

// hostVoice returns the voice ID for a podcast host.
func (b *FarmBrief) hostVoice(speaker string) string {
	if speaker == podcastHostTwo {
		b.mu.RLock()
		voice := b.secondHostVoice
		b.mu.RUnlock()
		if voice != "" {
			return voice
		}
	}
	return b.config.Audio.Voice
}

// sessionContext returns the bot's runtime context, used by session
// goroutines spawned from interaction handlers.
func (b *FarmBrief) sessionContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}
