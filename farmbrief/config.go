//nolint:lll // struct tags can't be split
package farmbrief

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultEnvPrefix    = "FARMBRIEF"
	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "farmbrief.sqlite3"

	DefaultLogLevel          = slog.LevelInfo
	DefaultDatabaseLogLevel  = slog.LevelInfo
	DefaultDiscordLogLevel   = slog.LevelWarn
	DefaultDiscordgoLogLevel = slog.LevelWarn
	DefaultLLMLogLevel       = slog.LevelInfo
	DefaultAudioLogLevel     = slog.LevelInfo
	DefaultAPILogLevel       = slog.LevelInfo

	DefaultStartupTimeout        = 30 * time.Second
	DefaultShutdownTimeout       = 60 * time.Second
	DefaultDatabaseSlowThreshold = 200 * time.Millisecond

	DefaultDiscordGatewayIntent = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions

	DefaultLLMModel              = "mistral-large-latest"
	DefaultLLMVisionModel        = "pixtral-large-latest"
	DefaultLLMBaseURL            = "https://api.mistral.ai/v1"
	DefaultLLMRequestsPerSecond  = 1
	DefaultAudioBaseURL          = "https://api.elevenlabs.io/v1"
	DefaultAudioVoice            = "21m00Tcm4TlvDq8ikWAM"
	DefaultAudioRequestInterval  = 2 * time.Second
	DefaultAudioMaxAttempts      = 3
	DefaultAudioRetryDelay       = 5 * time.Second
	DefaultStorageDir            = "storage"
	DefaultStorageMaxFileAge     = 48 * time.Hour
	DefaultQuizJoinWindow        = 10 * time.Second
	DefaultQuizAnswerWindow      = 10 * time.Second
	DefaultQuizQuestionPause     = 3 * time.Second
	DefaultQuizQuestionCount     = 3
	DefaultDebateClaimTimeout    = 300 * time.Second
	DefaultDebatePhaseBreak      = 30 * time.Second
	DefaultFlashcardCount        = 5
	DefaultFlashcardIdleTimeout  = 5 * time.Minute
	DefaultWhiteboardPollTimeout = 30 * time.Second
	DefaultDiscussionLimit       = 50

	DefaultAPIListen        = "127.0.0.1:5000"
	DefaultAPISessionMaxAge = 6 * time.Hour

	// discordMaxMessageLength is the hard limit Discord enforces on message
	// content. Chunked sends stay below it to leave room for part headers.
	discordMaxMessageLength = 2000
	messageChunkSize        = 1900
)

var structValidator = validator.New()

//nolint:gochecknoinits
func init() {
	structValidator.SetTagName("binding")
}

// Config is the static configuration for the bot, loaded once at startup.
type Config struct {
	// Database connection string (sqlite file path or postgres DSN)
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// LLM configures the text/vision generation client
	LLM *LLMConfig `yaml:"llm" mapstructure:"llm" json:"llm"`

	// Audio configures the TTS/sound-effect client
	Audio *AudioConfig `yaml:"audio" mapstructure:"audio" json:"audio"`

	// Storage configures local file storage
	Storage *StorageConfig `yaml:"storage" mapstructure:"storage" json:"storage"`

	// Sessions configures interactive session timing
	Sessions *SessionConfig `yaml:"sessions" mapstructure:"sessions" json:"sessions"`

	// API configures the backend status/admin API server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// initialize. If this is passed, the bot will abort startup.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the Discord gateway connection.
type DiscordConfig struct {
	// Token is the Discord bot token
	Token string `yaml:"token" mapstructure:"token" json:"-" binding:"required" log:"[redacted]"`

	// GatewayIntents sets the discordgo gateway intents. Message content and
	// reaction intents must be enabled for interactive sessions to work.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// StartupMessage, if set, is sent to the status channel on connect
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// StatusChannelID is the channel the startup message is sent to
	StatusChannelID string `yaml:"status_channel_id" mapstructure:"status_channel_id" json:"status_channel_id"`

	// GuildID optionally scopes slash-command registration to a single guild
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// DiscordgoLogLevel sets the log level for the discordgo library itself
	DiscordgoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	httpClient *http.Client
}

func (c DiscordConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// LLMConfig configures the generation client. The client speaks the
// OpenAI-compatible chat completion API, so BaseURL can point at any
// compatible provider (Mistral by default).
type LLMConfig struct {
	Token string `yaml:"token" mapstructure:"token" json:"-" binding:"required" log:"[redacted]"`

	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// Model is the chat model used for summaries, scripts, quizzes and flashcards
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// VisionModel is the model used for whiteboard image summaries
	VisionModel string `yaml:"vision_model" mapstructure:"vision_model" json:"vision_model"`

	// RequestsPerSecond caps outgoing generation requests
	RequestsPerSecond int `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c LLMConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// AudioConfig configures the TTS/sound-effect client.
type AudioConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"-" log:"[redacted]"`

	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url"`

	// Voice is the default voice ID, used for the first podcast host and
	// as a fallback for the second
	Voice string `yaml:"voice" mapstructure:"voice" json:"voice"`

	// RequestInterval is the minimum interval enforced between audio requests
	RequestInterval time.Duration `yaml:"request_interval" mapstructure:"request_interval" json:"request_interval"`

	// MaxAttempts is the number of attempts for transient audio failures
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" json:"max_attempts" binding:"gte=1"`

	// RetryDelay is the initial retry delay, doubled after each failed attempt
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" json:"retry_delay"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c AudioConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// StorageConfig configures local file storage for uploaded PDFs and
// generated audio.
type StorageConfig struct {
	// BaseDir is the root directory; audio/, pdf/ and temp/ are created under it
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir" json:"base_dir"`

	// MaxFileAge is the age past which generated/temporary files are purged
	MaxFileAge time.Duration `yaml:"max_file_age" mapstructure:"max_file_age" json:"max_file_age"`
}

// SessionConfig configures interactive session timing. Tests shrink these
// to keep orchestrator loops fast.
type SessionConfig struct {
	QuizJoinWindow    time.Duration `yaml:"quiz_join_window" mapstructure:"quiz_join_window" json:"quiz_join_window"`
	QuizAnswerWindow  time.Duration `yaml:"quiz_answer_window" mapstructure:"quiz_answer_window" json:"quiz_answer_window"`
	QuizQuestionPause time.Duration `yaml:"quiz_question_pause" mapstructure:"quiz_question_pause" json:"quiz_question_pause"`

	DebateClaimTimeout time.Duration `yaml:"debate_claim_timeout" mapstructure:"debate_claim_timeout" json:"debate_claim_timeout"`
	DebatePhaseBreak   time.Duration `yaml:"debate_phase_break" mapstructure:"debate_phase_break" json:"debate_phase_break"`

	FlashcardIdleTimeout time.Duration `yaml:"flashcard_idle_timeout" mapstructure:"flashcard_idle_timeout" json:"flashcard_idle_timeout"`

	// WhiteboardPollTimeout bounds each wait for a whiteboard image submission.
	// A timed-out wait just loops; the session only ends on an explicit end
	// signal or shutdown.
	WhiteboardPollTimeout time.Duration `yaml:"whiteboard_poll_timeout" mapstructure:"whiteboard_poll_timeout" json:"whiteboard_poll_timeout"`
}

// APIConfig configures the status/admin HTTP API.
type APIConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required"`

	// Secret is used to derive the cookie-store key pair. If empty, a random
	// key is generated at startup (sessions won't survive restarts).
	Secret string `yaml:"secret" mapstructure:"secret" json:"-" log:"[redacted]"`

	// SessionMaxAge is the max age of admin login sessions
	SessionMaxAge time.Duration `yaml:"session_max_age" mapstructure:"session_max_age" json:"session_max_age"`

	// CORSOrigins is the list of allowed CORS origins
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins" json:"cors_origins"`

	// Development enables pprof endpoints and insecure cookies
	Development bool `yaml:"development" mapstructure:"development" json:"development"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c APIConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DebatePhaseDurations is the per-phase duration table for a debate format.
type DebatePhaseDurations struct {
	Opening time.Duration
	Main    time.Duration
	Closing time.Duration
}

// DebateFormats maps a format name to its phase duration table.
var DebateFormats = map[string]DebatePhaseDurations{
	"quick": {
		Opening: 60 * time.Second,
		Main:    120 * time.Second,
		Closing: 60 * time.Second,
	},
	"standard": {
		Opening: 120 * time.Second,
		Main:    300 * time.Second,
		Closing: 120 * time.Second,
	},
}

// DefaultConfig returns a Config with default values set.
func DefaultConfig() *Config {
	logLevel := &slog.LevelVar{}
	logLevel.Set(DefaultLogLevel)

	dbLogLevel := &slog.LevelVar{}
	dbLogLevel.Set(DefaultDatabaseLogLevel)

	discordLogLevel := &slog.LevelVar{}
	discordLogLevel.Set(DefaultDiscordLogLevel)

	discordgoLogLevel := &slog.LevelVar{}
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)

	llmLogLevel := &slog.LevelVar{}
	llmLogLevel.Set(DefaultLLMLogLevel)

	audioLogLevel := &slog.LevelVar{}
	audioLogLevel.Set(DefaultAudioLogLevel)

	apiLogLevel := &slog.LevelVar{}
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              logLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:    DefaultDiscordGatewayIntent,
			LogLevel:          discordLogLevel,
			DiscordgoLogLevel: discordgoLogLevel,
		},
		LLM: &LLMConfig{
			BaseURL:           DefaultLLMBaseURL,
			Model:             DefaultLLMModel,
			VisionModel:       DefaultLLMVisionModel,
			RequestsPerSecond: DefaultLLMRequestsPerSecond,
			LogLevel:          llmLogLevel,
		},
		Audio: &AudioConfig{
			BaseURL:         DefaultAudioBaseURL,
			Voice:           DefaultAudioVoice,
			RequestInterval: DefaultAudioRequestInterval,
			MaxAttempts:     DefaultAudioMaxAttempts,
			RetryDelay:      DefaultAudioRetryDelay,
			LogLevel:        audioLogLevel,
		},
		Storage: &StorageConfig{
			BaseDir:    DefaultStorageDir,
			MaxFileAge: DefaultStorageMaxFileAge,
		},
		Sessions: DefaultSessionConfig(),
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			SessionMaxAge: DefaultAPISessionMaxAge,
			LogLevel:      apiLogLevel,
		},
	}
}

// DefaultSessionConfig returns session timing defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		QuizJoinWindow:        DefaultQuizJoinWindow,
		QuizAnswerWindow:      DefaultQuizAnswerWindow,
		QuizQuestionPause:     DefaultQuizQuestionPause,
		DebateClaimTimeout:    DefaultDebateClaimTimeout,
		DebatePhaseBreak:      DefaultDebatePhaseBreak,
		FlashcardIdleTimeout:  DefaultFlashcardIdleTimeout,
		WhiteboardPollTimeout: DefaultWhiteboardPollTimeout,
	}
}
