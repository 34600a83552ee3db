package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	chatService "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
	"github.com/zhouzirui/talking-therapist/backend/pkg/utils"
)

// DefaultHeartbeat is the keep-alive interval for idle streams.
const DefaultHeartbeat = 8 * time.Second

// Handler streams session events to renderers via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	log       *logging.Logger
	heartbeat time.Duration
}

// New creates a stream handler. A non-positive heartbeat uses DefaultHeartbeat.
func New(chatSvc *chatService.Service, log *logging.Logger, heartbeat time.Duration) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{chatSvc: chatSvc, log: log, heartbeat: heartbeat}
}

// RegisterRoutes mounts the event stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.chatSvc.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("opening event stream")

	if err := utils.SendSSEEvent(w, flusher, string(chatService.EventState), chatService.Event{
		Kind:  chatService.EventState,
		State: h.chatSvc.State(),
	}); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Str("remote", r.RemoteAddr).Msg("closing event stream")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Kind), ev); err != nil {
				h.log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
