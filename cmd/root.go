package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yanismiraoui/ai-agent-FarmBrief/farmbrief"
)

var (
	cfg        = farmbrief.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "farmbrief [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("database", farmbrief.DefaultDatabase)
	viper.SetDefault("database_type", farmbrief.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		farmbrief.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		farmbrief.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", farmbrief.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", farmbrief.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", farmbrief.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.startup_message", "")
	viper.SetDefault("discord.status_channel_id", "")
	viper.SetDefault(
		"discord.log_level",
		farmbrief.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		farmbrief.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		farmbrief.DefaultDiscordGatewayIntent,
	)

	// LLM config
	viper.SetDefault("llm.token", "")
	viper.SetDefault("llm.base_url", farmbrief.DefaultLLMBaseURL)
	viper.SetDefault("llm.model", farmbrief.DefaultLLMModel)
	viper.SetDefault("llm.vision_model", farmbrief.DefaultLLMVisionModel)
	viper.SetDefault(
		"llm.requests_per_second",
		farmbrief.DefaultLLMRequestsPerSecond,
	)
	viper.SetDefault("llm.log_level", farmbrief.DefaultLLMLogLevel.String())

	// Audio config
	viper.SetDefault("audio.api_key", "")
	viper.SetDefault("audio.base_url", farmbrief.DefaultAudioBaseURL)
	viper.SetDefault("audio.voice", farmbrief.DefaultAudioVoice)
	viper.SetDefault(
		"audio.request_interval",
		farmbrief.DefaultAudioRequestInterval,
	)
	viper.SetDefault("audio.max_attempts", farmbrief.DefaultAudioMaxAttempts)
	viper.SetDefault("audio.retry_delay", farmbrief.DefaultAudioRetryDelay)
	viper.SetDefault("audio.log_level", farmbrief.DefaultAudioLogLevel.String())

	// Storage config
	viper.SetDefault("storage.base_dir", farmbrief.DefaultStorageDir)
	viper.SetDefault("storage.max_file_age", farmbrief.DefaultStorageMaxFileAge)

	// Session timing
	viper.SetDefault(
		"sessions.quiz_join_window",
		farmbrief.DefaultQuizJoinWindow,
	)
	viper.SetDefault(
		"sessions.quiz_answer_window",
		farmbrief.DefaultQuizAnswerWindow,
	)
	viper.SetDefault(
		"sessions.quiz_question_pause",
		farmbrief.DefaultQuizQuestionPause,
	)
	viper.SetDefault(
		"sessions.debate_claim_timeout",
		farmbrief.DefaultDebateClaimTimeout,
	)
	viper.SetDefault(
		"sessions.debate_phase_break",
		farmbrief.DefaultDebatePhaseBreak,
	)
	viper.SetDefault(
		"sessions.flashcard_idle_timeout",
		farmbrief.DefaultFlashcardIdleTimeout,
	)
	viper.SetDefault(
		"sessions.whiteboard_poll_timeout",
		farmbrief.DefaultWhiteboardPollTimeout,
	)

	// API config
	viper.SetDefault("api.listen", farmbrief.DefaultAPIListen)
	viper.SetDefault("api.secret", "")
	viper.SetDefault("api.session_max_age", farmbrief.DefaultAPISessionMaxAge)
	viper.SetDefault("api.cors_origins", []string{})
	viper.SetDefault("api.development", false)
	viper.SetDefault("api.log_level", farmbrief.DefaultAPILogLevel.String())

	viper.SetEnvPrefix(farmbrief.DefaultEnvPrefix)
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.Set(
		"api.cors_origins",
		viper.GetStringSlice("api.cors_origins"),
	)

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"llm.log_level",
		"audio.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
