package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Fallback FallbackConfig
	Log      LogConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	fallback, err := loadFallbackConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Speech:   speech,
		Fallback: fallback,
		Log:      loadLogConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origins := parseListEnv("CORS_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are passed through as-is.
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// Provider selects which remote language model backs the conversation client.
type Provider string

const (
	ProviderAuto   Provider = "auto"
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
	ProviderNone   Provider = "none"
)

// AIConfig describes the remote language model.
type AIConfig struct {
	Provider       Provider
	RequestTimeout time.Duration

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string
}

// GeminiEnabled reports whether a Gemini key is configured.
func (c AIConfig) GeminiEnabled() bool {
	return c.GeminiAPIKey != "" && c.GeminiModel != ""
}

// ArkEnabled reports whether Ark credentials and a model are configured.
func (c AIConfig) ArkEnabled() bool {
	return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

// ResolveProvider turns ProviderAuto into a concrete choice. Gemini wins when
// both providers are configured.
func (c AIConfig) ResolveProvider() Provider {
	switch c.Provider {
	case ProviderGemini, ProviderArk, ProviderNone:
		return c.Provider
	}
	if c.GeminiEnabled() {
		return ProviderGemini
	}
	if c.ArkEnabled() {
		return ProviderArk
	}
	return ProviderNone
}

// NewArkChatModel creates an Ark chat model from the configured credentials.
func (c AIConfig) NewArkChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + Model or an AK/SK pair")
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.ArkBaseURL,
		Region:    c.ArkRegion,
		APIKey:    c.ArkAPIKey,
		AccessKey: c.ArkAccessKey,
		SecretKey: c.ArkSecretKey,
		Model:     c.ArkModel,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderAuto))))
	switch provider {
	case ProviderAuto, ProviderGemini, ProviderArk, ProviderNone:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	timeout, err := parseDurationEnv("AI_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}
	if timeout <= 0 {
		return AIConfig{}, fmt.Errorf("AI_REQUEST_TIMEOUT must be positive, got %s", timeout)
	}

	return AIConfig{
		Provider:       provider,
		RequestTimeout: timeout,
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:  getEnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		ArkAPIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:       strings.TrimSpace(os.Getenv("Model")),
		ArkBaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
	}, nil
}

// Device selects the speech output implementation.
type Device string

const (
	DeviceBridge     Device = "bridge"
	DeviceSay        Device = "say"
	DeviceNone       Device = "none"
	DeviceVolcengine Device = "volcengine"
)

// SpeechConfig describes speech output.
type SpeechConfig struct {
	Device           Device
	WarmupDelay      time.Duration
	BusyRetryDelay   time.Duration
	VoicePreferences []string
	Volcengine       VolcengineConfig
}

// VolcengineConfig holds server-side synthesis settings. Empty fields fall
// back to the client defaults.
type VolcengineConfig struct {
	AppID       string
	AccessToken string
	Speaker     string
	Language    string
	Format      string
	Endpoint    string
	Timeout     time.Duration
}

func loadVolcengineConfig() (VolcengineConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return VolcengineConfig{}, err
	}

	token := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return VolcengineConfig{
		AppID:       strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken: token,
		Speaker:     strings.TrimSpace(os.Getenv("SPEECH_TTS_VOICE")),
		Language:    strings.TrimSpace(os.Getenv("SPEECH_TTS_LANGUAGE")),
		Format:      strings.ToLower(strings.TrimSpace(os.Getenv("SPEECH_TTS_FORMAT"))),
		Endpoint:    strings.TrimSpace(os.Getenv("SPEECH_TTS_ENDPOINT")),
		Timeout:     timeout,
	}, nil
}

func loadSpeechConfig() (SpeechConfig, error) {
	device := Device(strings.ToLower(getEnvOrDefault("SPEECH_DEVICE", string(DeviceBridge))))
	switch device {
	case DeviceBridge, DeviceSay, DeviceNone, DeviceVolcengine:
	default:
		return SpeechConfig{}, fmt.Errorf("invalid SPEECH_DEVICE value %q", device)
	}

	warmup, err := parseDurationEnv("SPEECH_WARMUP_DELAY", 800*time.Millisecond)
	if err != nil {
		return SpeechConfig{}, err
	}

	retry, err := parseDurationEnv("SPEECH_BUSY_RETRY_DELAY", 100*time.Millisecond)
	if err != nil {
		return SpeechConfig{}, err
	}

	if warmup < 0 || retry < 0 {
		return SpeechConfig{}, fmt.Errorf("speech delays must not be negative")
	}

	volc, err := loadVolcengineConfig()
	if err != nil {
		return SpeechConfig{}, err
	}
	if device == DeviceVolcengine && (volc.AppID == "" || volc.AccessToken == "") {
		return SpeechConfig{}, fmt.Errorf("SPEECH_DEVICE=volcengine requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}

	return SpeechConfig{
		Device:           device,
		WarmupDelay:      warmup,
		BusyRetryDelay:   retry,
		VoicePreferences: parseListEnv("SPEECH_VOICE_PREFERENCES"),
		Volcengine:       volc,
	}, nil
}

// FallbackConfig controls the local reply generator.
type FallbackConfig struct {
	// Seed pins the canned-reply selection; nil means randomly seeded.
	Seed *uint64
}

func loadFallbackConfig() (FallbackConfig, error) {
	raw := strings.TrimSpace(os.Getenv("FALLBACK_SEED"))
	if raw == "" {
		return FallbackConfig{}, nil
	}

	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return FallbackConfig{}, fmt.Errorf("invalid FALLBACK_SEED value %q: %w", raw, err)
	}
	return FallbackConfig{Seed: &seed}, nil
}

// LogConfig describes log output.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
