package farmbrief

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAudioConfig(baseURL string) *AudioConfig {
	return &AudioConfig{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		Voice:           "default-voice",
		RequestInterval: time.Millisecond,
		MaxAttempts:     2,
		RetryDelay:      time.Millisecond,
	}
}

func TestSpeak(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotKey = r.Header.Get("xi-api-key")
				_ = json.NewDecoder(r.Body).Decode(&gotPayload)
				_, _ = w.Write([]byte("mp3-bytes"))
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))
	data, err := client.Speak(context.Background(), "hello there", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), data)

	// empty voice falls back to the configured default
	assert.Equal(t, "/text-to-speech/default-voice", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "hello there", gotPayload["text"])
	assert.Equal(t, "eleven_monolingual_v1", gotPayload["model_id"])
}

func TestSpeakMissingAPIKey(t *testing.T) {
	cfg := testAudioConfig("http://localhost:1")
	cfg.APIKey = ""
	client := newAudioClient(cfg, nil, testLogger(t))

	_, err := client.Speak(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestSpeakInvalidKeyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))
	_, err := client.Speak(context.Background(), "hello", "v1")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSpeakTransientFailureRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				if calls.Add(1) == 1 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				_, _ = w.Write([]byte("recovered"))
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))
	data, err := client.Speak(context.Background(), "hello", "v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("recovered"), data)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSpeakRateLimitExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusTooManyRequests)
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))
	_, err := client.Speak(context.Background(), "hello", "v1")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSoundEffect(t *testing.T) {
	var gotPayload map[string]any
	var calls atomic.Int32
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "/sound-generation", r.URL.Path)
				_ = json.NewDecoder(r.Body).Decode(&gotPayload)
				_, _ = w.Write([]byte("whoosh"))
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))

	t.Run(
		"valid request", func(t *testing.T) {
			data, err := client.SoundEffect(
				context.Background(),
				"a tractor starting",
				3.5,
				0.7,
			)
			require.NoError(t, err)
			assert.Equal(t, []byte("whoosh"), data)
			assert.Equal(t, "a tractor starting", gotPayload["text"])
			assert.Equal(t, 3.5, gotPayload["duration_seconds"])
		},
	)

	t.Run(
		"bounds rejected before any request", func(t *testing.T) {
			before := calls.Load()

			_, err := client.SoundEffect(context.Background(), "x", 0.1, 0.5)
			assert.ErrorIs(t, err, ErrBadRequest)

			_, err = client.SoundEffect(context.Background(), "x", 30, 0.5)
			assert.ErrorIs(t, err, ErrBadRequest)

			_, err = client.SoundEffect(context.Background(), "x", 5, 1.5)
			assert.ErrorIs(t, err, ErrBadRequest)

			assert.Equal(t, before, calls.Load())
		},
	)
}

func TestVoices(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/voices", r.URL.Path)
				_ = json.NewEncoder(w).Encode(
					map[string]any{
						"voices": []map[string]any{
							{
								"voice_id": "v1",
								"name":     "Sam",
								"labels":   map[string]string{"gender": "male"},
							},
							{
								"voice_id": "v2",
								"name":     "Maya",
								"labels":   map[string]string{"gender": "female"},
							},
						},
					},
				)
			},
		),
	)
	defer srv.Close()

	client := newAudioClient(testAudioConfig(srv.URL), srv.Client(), testLogger(t))
	voices, err := client.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "v1", voices[0].ID)

	female, ok := FemaleVoice(voices)
	require.True(t, ok)
	assert.Equal(t, "v2", female.ID)

	_, ok = FemaleVoice(voices[:1])
	assert.False(t, ok)
}
