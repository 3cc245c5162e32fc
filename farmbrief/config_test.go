package farmbrief

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultDatabaseType, cfg.DatabaseType)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel.Level())
	assert.Equal(t, DefaultDiscordgoLogLevel, cfg.Discord.DiscordgoLogLevel.Level())

	require.NotNil(t, cfg.LLM)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, DefaultLLMVisionModel, cfg.LLM.VisionModel)
	assert.Equal(t, DefaultLLMBaseURL, cfg.LLM.BaseURL)

	require.NotNil(t, cfg.Audio)
	assert.Equal(t, DefaultAudioBaseURL, cfg.Audio.BaseURL)
	assert.Equal(t, DefaultAudioMaxAttempts, cfg.Audio.MaxAttempts)

	require.NotNil(t, cfg.Sessions)
	assert.Equal(t, DefaultQuizJoinWindow, cfg.Sessions.QuizJoinWindow)
	assert.Equal(t, DefaultFlashcardIdleTimeout, cfg.Sessions.FlashcardIdleTimeout)

	require.NotNil(t, cfg.API)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.False(t, cfg.API.Development)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discord.Token = "discord-token"
	cfg.LLM.Token = "llm-token"
	require.NoError(t, structValidator.Struct(cfg))

	t.Run(
		"missing discord token", func(t *testing.T) {
			bad := DefaultConfig()
			bad.LLM.Token = "llm-token"
			assert.Error(t, structValidator.Struct(bad))
		},
	)
	t.Run(
		"bad database type", func(t *testing.T) {
			bad := DefaultConfig()
			bad.Discord.Token = "discord-token"
			bad.LLM.Token = "llm-token"
			bad.DatabaseType = "mysql"
			assert.Error(t, structValidator.Struct(bad))
		},
	)
	t.Run(
		"zero audio attempts", func(t *testing.T) {
			bad := DefaultConfig()
			bad.Discord.Token = "discord-token"
			bad.LLM.Token = "llm-token"
			bad.Audio.MaxAttempts = 0
			assert.Error(t, structValidator.Struct(bad))
		},
	)
}

func TestDebateFormats(t *testing.T) {
	quick, ok := DebateFormats["quick"]
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, quick.Opening)
	assert.Equal(t, 120*time.Second, quick.Main)

	standard, ok := DebateFormats["standard"]
	require.True(t, ok)
	assert.Equal(t, 300*time.Second, standard.Main)
}

func TestConfigLogValueRedactsSecrets(t *testing.T) {
	cfg := DiscordConfig{Token: "super-secret"}
	val := cfg.LogValue()

	found := false
	for _, attr := range val.Group() {
		if attr.Key == "gateway_intents" {
			found = true
		}
		assert.NotContains(t, attr.Value.String(), "super-secret")
	}
	assert.True(t, found)

	// nil pointer fields are skipped entirely
	for _, attr := range val.Group() {
		assert.NotEqual(t, "log_level", attr.Key)
	}
}
