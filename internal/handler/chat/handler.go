package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/emotion"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	aiService "github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
	chatService "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	"github.com/zhouzirui/talking-therapist/backend/pkg/utils"
)

// Handler 会话相关的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	aiSvc   *aiService.Service
	log     *logging.Logger
}

// New 创建会话处理器。aiSvc 可以为 nil，此时 /history 返回空列表
func New(chatSvc *chatService.Service, aiSvc *aiService.Service, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{chatSvc: chatSvc, aiSvc: aiSvc, log: log}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSubmit)
	r.Get("/messages", h.handleTranscript)
	r.Delete("/messages", h.handleClear)
	r.Get("/state", h.handleState)
	r.Get("/history", h.handleHistory)
	r.Get("/emotions", h.handleEmotions)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	exchange, err := h.chatSvc.Submit(r.Context(), payload.Text)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, exchange)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages": h.chatSvc.Transcript(),
	})
}

func (h *Handler) handleClear(w http.ResponseWriter, _ *http.Request) {
	h.chatSvc.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleState(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.chatSvc.State())
}

func (h *Handler) handleHistory(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"history": []any{}, "remote": false}
	if h.aiSvc != nil {
		resp["history"] = h.aiSvc.History()
		resp["remote"] = h.aiSvc.RemoteEnabled()
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleEmotions(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"emotions": emotion.Labels(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrBusy), errors.Is(err, chatService.ErrDiscarded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
