package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/talking-therapist/backend/internal/handler/chat"
	"github.com/zhouzirui/talking-therapist/backend/internal/handler/speech"
	"github.com/zhouzirui/talking-therapist/backend/internal/handler/stream"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/talking-therapist/backend/internal/middleware"
	aiService "github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
	chatService "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	speechService "github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
	"github.com/zhouzirui/talking-therapist/backend/pkg/utils"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Chat           *chatService.Service
	AI             *aiService.Service
	Device         speechService.Device
	Bridge         *speechService.Bridge
	Log            *logging.Logger
	AllowedOrigins []string
	// Heartbeat is the SSE keep-alive interval; zero uses the stream default.
	Heartbeat time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Sub("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	chatHandler := chat.New(deps.Chat, deps.AI, log.Sub("chat"))
	streamHandler := stream.New(deps.Chat, log.Sub("sse"), deps.Heartbeat)
	speechHandler := speech.New(deps.Chat, deps.Device, deps.Bridge, log.Sub("speech"))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"remote": deps.AI != nil && deps.AI.RemoteEnabled(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
	})

	return r
}
