package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "CORS_ALLOWED_ORIGINS", "AI_PROVIDER", "AI_REQUEST_TIMEOUT",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model",
		"SPEECH_DEVICE", "SPEECH_WARMUP_DELAY", "SPEECH_BUSY_RETRY_DELAY", "SPEECH_VOICE_PREFERENCES",
		"SPEECH_APP_ID", "SPEECH_ACCESS_TOKEN", "SPEECH_API_KEY", "SPEECH_TTS_VOICE", "SPEECH_TTS_LANGUAGE",
		"SPEECH_TTS_FORMAT", "SPEECH_TTS_ENDPOINT", "SPEECH_TIMEOUT",
		"FALLBACK_SEED", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ProviderAuto, cfg.AI.Provider)
	assert.Equal(t, ProviderNone, cfg.AI.ResolveProvider())
	assert.Equal(t, 30*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, "gemini-1.5-flash", cfg.AI.GeminiModel)
	assert.Equal(t, DeviceBridge, cfg.Speech.Device)
	assert.Equal(t, 800*time.Millisecond, cfg.Speech.WarmupDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Speech.BusyRetryDelay)
	assert.Nil(t, cfg.Fallback.Seed)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("AI_REQUEST_TIMEOUT", "5s")
	t.Setenv("SPEECH_DEVICE", "say")
	t.Setenv("SPEECH_VOICE_PREFERENCES", "Karen, Samantha ,")
	t.Setenv("FALLBACK_SEED", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, ProviderGemini, cfg.AI.ResolveProvider())
	assert.Equal(t, 5*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, DeviceSay, cfg.Speech.Device)
	assert.Equal(t, []string{"Karen", "Samantha"}, cfg.Speech.VoicePreferences)
	require.NotNil(t, cfg.Fallback.Seed)
	assert.Equal(t, uint64(42), *cfg.Fallback.Seed)
}

func TestResolveProviderPrefersGeminiThenArk(t *testing.T) {
	cfg := AIConfig{Provider: ProviderAuto, ArkAPIKey: "ark", ArkModel: "doubao"}
	assert.Equal(t, ProviderArk, cfg.ResolveProvider())

	cfg.GeminiAPIKey = "gem"
	cfg.GeminiModel = "gemini-1.5-flash"
	assert.Equal(t, ProviderGemini, cfg.ResolveProvider())

	cfg.Provider = ProviderNone
	assert.Equal(t, ProviderNone, cfg.ResolveProvider())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":               "80 80",
		"AI_PROVIDER":        "openai",
		"AI_REQUEST_TIMEOUT": "soon",
		"SPEECH_DEVICE":      "speaker",
		"SPEECH_TIMEOUT":     "later",
		"FALLBACK_SEED":      "-1",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestArkChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{}.NewArkChatModel(t.Context())
	assert.Error(t, err)
}

func TestLoadVolcengineDevice(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPEECH_DEVICE", "Volcengine")
	t.Setenv("SPEECH_APP_ID", "app")
	t.Setenv("SPEECH_API_KEY", "legacy-key")
	t.Setenv("SPEECH_TTS_VOICE", "zh_female_vv_venus_bigtts")
	t.Setenv("SPEECH_TTS_FORMAT", "PCM")
	t.Setenv("SPEECH_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DeviceVolcengine, cfg.Speech.Device)
	volc := cfg.Speech.Volcengine
	assert.Equal(t, "app", volc.AppID)
	assert.Equal(t, "legacy-key", volc.AccessToken)
	assert.Equal(t, "zh_female_vv_venus_bigtts", volc.Speaker)
	assert.Equal(t, "pcm", volc.Format)
	assert.Equal(t, 10*time.Second, volc.Timeout)
}

func TestLoadVolcengineRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPEECH_DEVICE", "volcengine")
	t.Setenv("SPEECH_APP_ID", "app")

	_, err := Load()
	assert.ErrorContains(t, err, "SPEECH_ACCESS_TOKEN")

	t.Setenv("SPEECH_ACCESS_TOKEN", "token")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.Speech.Volcengine.AccessToken)
	assert.Equal(t, 30*time.Second, cfg.Speech.Volcengine.Timeout)
}
