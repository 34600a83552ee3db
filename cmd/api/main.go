package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/fallback"
	"github.com/zhouzirui/talking-therapist/backend/internal/config"
	"github.com/zhouzirui/talking-therapist/backend/internal/handler"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/metrics"
	speechModel "github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/speech/volcengine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.NewWithFormat(cfg.Log.Format, cfg.Log.Level)
	zlog.Logger = log.Zerolog()
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	metrics.MustRegister()

	gen := fallback.New(nil)
	if cfg.Fallback.Seed != nil {
		gen = fallback.NewSeeded(*cfg.Fallback.Seed)
	}

	chatModel, provider, err := ai.NewChatModel(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("remote model unavailable, continuing with local replies only")
		chatModel, provider = nil, config.ProviderNone
	}

	aiService, err := ai.NewService(ctx, chatModel, gen, log.Sub("ai"), ai.Options{
		Timeout:  cfg.AI.RequestTimeout,
		Provider: string(provider),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation client")
	}
	log.Info().Str("provider", string(provider)).Msg("conversation client ready")

	device, bridge := newDevice(cfg.Speech, log.Sub("speech"))
	controller := speech.NewController(device, log.Sub("speech"), speech.Options{
		BusyRetryDelay:   cfg.Speech.BusyRetryDelay,
		VoicePreferences: cfg.Speech.VoicePreferences,
	})

	chatService := chat.NewService(aiService, controller, log.Sub("session"), chat.Options{
		WarmupDelay: cfg.Speech.WarmupDelay,
	})
	defer chatService.Close()

	router := handler.NewRouter(handler.Deps{
		Chat:           chatService,
		AI:             aiService,
		Device:         device,
		Bridge:         bridge,
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router, log)
}

// newDevice picks the speech output from configuration.
func newDevice(cfg config.SpeechConfig, log *logging.Logger) (speech.Device, *speech.Bridge) {
	switch cfg.Device {
	case config.DeviceSay:
		say := speech.NewSayDevice(log, "")
		if say.Available() {
			log.Info().Msg("speaking through the local say command")
			return say, nil
		}
		log.Warn().Msg("say command not found, speech output disabled")
		return speech.NopDevice{}, nil
	case config.DeviceNone:
		log.Info().Msg("speech output disabled by configuration")
		return speech.NopDevice{}, nil
	case config.DeviceVolcengine:
		bridge := speech.NewBridge(log.Sub("bridge"))
		volc := cfg.Volcengine
		client, err := volcengine.NewClient(volcengine.Config{
			AppID:       volc.AppID,
			AccessToken: volc.AccessToken,
			Speaker:     volc.Speaker,
			Language:    volc.Language,
			Format:      volc.Format,
			Endpoint:    volc.Endpoint,
			Timeout:     volc.Timeout,
		}, log.Sub("volcengine"))
		if err != nil {
			log.Warn().Err(err).Msg("volcengine tts unavailable, clients will synthesize locally")
			return bridge, bridge
		}
		log.Info().Str("speaker", client.Speaker()).Msg("synthesizing speech through volcengine")
		voice := speechModel.Voice{Name: client.Speaker(), Language: client.Language()}
		return volcengine.NewDevice(client, bridge, voice, log.Sub("volcengine")), bridge
	default:
		bridge := speech.NewBridge(log.Sub("bridge"))
		log.Info().Msg("speaking through connected websocket clients")
		return bridge, bridge
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logging.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("talking therapist backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
