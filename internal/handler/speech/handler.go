package speech

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	chatservice "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
	"github.com/zhouzirui/talking-therapist/backend/pkg/utils"
)

// Handler 语音输出相关的HTTP与WebSocket处理器
type Handler struct {
	chatSvc  *chatservice.Service
	device   speechsvc.Device
	bridge   *speechsvc.Bridge
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// New 创建语音处理器。仅当语音由WebSocket客户端播放时 bridge 才不为 nil
func New(chatSvc *chatservice.Service, device speechsvc.Device, bridge *speechsvc.Bridge, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		chatSvc: chatSvc,
		device:  device,
		bridge:  bridge,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Get("/voices", h.handleVoices)
		speechRouter.Post("/stop", h.handleStop)
		speechRouter.Get("/health", h.handleHealth)
	})
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	var voices any = []any{}
	if h.device != nil {
		if list := h.device.Voices(); len(list) > 0 {
			voices = list
		}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (h *Handler) handleStop(w http.ResponseWriter, _ *http.Request) {
	h.chatSvc.StopSpeech()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"speaking": h.chatSvc.State().Speaking,
	}
	if h.bridge != nil {
		resp["outputs"] = h.bridge.Outputs()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}
