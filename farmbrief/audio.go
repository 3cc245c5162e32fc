package farmbrief

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

var (
	// ErrMissingAPIKey indicates the audio API key isn't configured.
	// Fatal to the calling operation; never retried.
	ErrMissingAPIKey = errors.New(
		"audio API key not configured (set FARMBRIEF_AUDIO_API_KEY or audio.api_key)",
	)

	// ErrInvalidAPIKey indicates the provider rejected the credential.
	ErrInvalidAPIKey = errors.New("invalid or expired audio API key")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("audio API rate limit exceeded")

	// ErrBadRequest indicates a malformed audio request.
	ErrBadRequest = errors.New("bad request to audio API")
)

const (
	soundEffectMinSeconds = 0.5
	soundEffectMaxSeconds = 22
)

// Voice is one entry from the provider's voice catalog.
type Voice struct {
	ID     string            `json:"voice_id"`
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels"`
}

// AudioClient wraps an ElevenLabs-style TTS/sound-effect API.
//
// A minimum inter-request interval is enforced before every call to
// respect the provider's rate limit, and transient failures are retried
// with exponential backoff.
type AudioClient struct {
	config     *AudioConfig
	httpClient *http.Client
	logger     *slog.Logger

	// requestLimiter enforces the minimum interval between requests
	requestLimiter *rate.Limiter
}

func newAudioClient(
	config *AudioConfig,
	httpClient *http.Client,
	logger *slog.Logger,
) *AudioClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	interval := config.RequestInterval
	if interval <= 0 {
		interval = DefaultAudioRequestInterval
	}
	return &AudioClient{
		config:         config,
		httpClient:     httpClient,
		logger:         logger,
		requestLimiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Speak converts text to spoken audio with the given voice (the configured
// default voice if empty), returning the audio byte buffer.
//
// Transient provider failures are retried up to the configured number of
// attempts, with the delay doubling after each. Credential and bad-request
// errors are surfaced immediately.
func (a *AudioClient) Speak(
	ctx context.Context,
	text string,
	voiceID string,
) ([]byte, error) {
	if a.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if voiceID == "" {
		voiceID = a.config.Voice
	}

	maxAttempts := a.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := a.config.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := a.speakOnce(ctx, text, voiceID)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrBadRequest) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		a.logger.WarnContext(
			ctx,
			"audio request failed, retrying",
			tint.Err(err),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

func (a *AudioClient) speakOnce(
	ctx context.Context,
	text string,
	voiceID string,
) ([]byte, error) {
	if err := a.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/text-to-speech/%s", a.config.BaseURL, voiceID),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	return a.do(req)
}

// SoundEffect generates a short sound effect from a text description.
// seconds must be within [0.5, 22] and influence within [0, 1].
func (a *AudioClient) SoundEffect(
	ctx context.Context,
	description string,
	seconds float64,
	influence float64,
) ([]byte, error) {
	if a.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if seconds < soundEffectMinSeconds || seconds > soundEffectMaxSeconds {
		return nil, fmt.Errorf(
			"%w: duration %.1fs outside [%.1f, %.1f]",
			ErrBadRequest,
			seconds,
			float64(soundEffectMinSeconds),
			float64(soundEffectMaxSeconds),
		)
	}
	if influence < 0 || influence > 1 {
		return nil, fmt.Errorf(
			"%w: prompt influence %.2f outside [0, 1]",
			ErrBadRequest,
			influence,
		)
	}

	if err := a.requestLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(
		map[string]any{
			"text":             description,
			"duration_seconds": seconds,
			"prompt_influence": influence,
		},
	)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.config.BaseURL+"/sound-generation",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", a.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	return a.do(req)
}

// Voices fetches the provider's voice catalog.
func (a *AudioClient) Voices(ctx context.Context) ([]Voice, error) {
	if a.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		a.config.BaseURL+"/voices",
		nil,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", a.config.APIKey)

	data, err := a.do(req)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("error decoding voice catalog: %w", err)
	}
	return payload.Voices, nil
}

// FemaleVoice returns the first voice labeled female from the catalog,
// used for the second podcast host. ok is false if none is found.
func FemaleVoice(voices []Voice) (Voice, bool) {
	for _, v := range voices {
		if v.Labels["gender"] == "female" {
			return v, true
		}
	}
	return Voice{}, false
}

// do executes the request and maps provider status codes onto the error
// taxonomy: 401 credential, 429 rate limit, 400 malformed request, other
// non-2xx generic provider errors.
func (a *AudioClient) do(req *http.Request) ([]byte, error) {
	rv, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio request failed: %w", err)
	}
	defer func() {
		_ = rv.Body.Close()
	}()

	switch {
	case rv.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidAPIKey
	case rv.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case rv.StatusCode == http.StatusBadRequest:
		detail, _ := io.ReadAll(io.LimitReader(rv.Body, 512))
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, string(detail))
	case rv.StatusCode < 200 || rv.StatusCode > 299:
		detail, _ := io.ReadAll(io.LimitReader(rv.Body, 512))
		return nil, fmt.Errorf(
			"audio provider error: %d - %s",
			rv.StatusCode,
			string(detail),
		)
	}

	return io.ReadAll(rv.Body)
}
