package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/talking-therapist/backend/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// VoicesMessage 客户端语音合成器可用的声音列表
type VoicesMessage struct {
	Voices []speech.Voice `json:"voices"`
}

// client 表示一个WebSocket连接，同时作为语音桥接的输出端
type client struct {
	id      string
	conn    *websocket.Conn
	log     *logging.Logger
	writeMu sync.Mutex
}

func (c *client) send(msgType string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func (c *client) sendError(message string) {
	if err := c.send("error", map[string]string{"message": message}); err != nil {
		c.log.Debug().Err(err).Msg("write error failed")
	}
}

func (c *client) SendSpeak(u speech.Utterance) error {
	return c.send("speak", u)
}

// audioMessage 服务端合成的音频片段，audio 字段为base64编码
type audioMessage struct {
	speech.Utterance
	speech.Audio
}

func (c *client) SendAudio(u speech.Utterance, clip speech.Audio) error {
	return c.send("audio", audioMessage{Utterance: u, Audio: clip})
}

func (c *client) SendCancel() error {
	return c.send("cancel", nil)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{id: uuid.NewString(), conn: conn}
	c.log = h.log.Sub("ws:" + c.id[:8])
	c.log.Info().Str("remote", r.RemoteAddr).Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	events, unsubscribe := h.chatSvc.Subscribe()
	defer unsubscribe()

	if err := c.send("connected", map[string]any{
		"clientId": c.id,
		"bridge":   h.bridge != nil,
	}); err != nil {
		return
	}
	if err := c.send("state", h.chatSvc.State()); err != nil {
		return
	}

	go h.pingLoop(ctx, c)
	go h.forwardEvents(ctx, c, events)

	if h.bridge != nil {
		h.bridge.Attach(c.id, c)
		defer h.bridge.Detach(c.id)
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			c.log.Info().Msg("websocket disconnected")
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(ctx, c, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *client, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			c.sendError("invalid text payload")
			return
		}
		go h.submit(ctx, c, text.Text)
	case "clear":
		h.chatSvc.Clear()
	case "stop":
		h.chatSvc.StopSpeech()
	case "voices":
		var voices VoicesMessage
		if err := json.Unmarshal(msg.Data, &voices); err != nil {
			c.sendError("invalid voices payload")
			return
		}
		if h.bridge != nil {
			h.bridge.SetVoices(voices.Voices)
		}
	case "speech":
		var ev speech.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.sendError("invalid speech payload")
			return
		}
		if h.bridge != nil {
			h.bridge.Dispatch(ev)
		}
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) submit(ctx context.Context, c *client, text string) {
	if _, err := h.chatSvc.Submit(ctx, text); err != nil {
		if !errors.Is(err, chatservice.ErrDiscarded) {
			c.sendError(err.Error())
		}
	}
}

// forwardEvents 将会话事件转发给客户端，所有连接都会收到消息与状态
func (h *Handler) forwardEvents(ctx context.Context, c *client, events <-chan chatservice.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var data any = ev.State
			if ev.Kind == chatservice.EventMessage && ev.Message != nil {
				data = ev.Message
			}
			if err := c.send(string(ev.Kind), data); err != nil {
				c.log.Debug().Err(err).Msg("write event failed")
				return
			}
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
