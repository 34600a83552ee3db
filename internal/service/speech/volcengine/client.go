package volcengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

// 默认配置
const (
	DefaultEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
	DefaultSpeaker  = "en_female_amy_jupiter_bigtts"
	DefaultFormat   = "mp3"
	DefaultTimeout  = 30 * time.Second

	sampleRate = 24000
)

// 资源ID，按音色选择
const (
	resourceDefault = "volc.service_type.10029"
	resourceMega    = "volc.megatts.default"
	resourceSeed    = "seed-tts-2.0"
)

var (
	// ErrMissingCredentials 未配置 AppID 或 AccessToken
	ErrMissingCredentials = errors.New("volcengine: app id and access token are required")
	// ErrEmptyText 合成文本为空
	ErrEmptyText = errors.New("volcengine: text is empty")
	// ErrEmptyAudio 服务端未返回音频
	ErrEmptyAudio = errors.New("volcengine: synthesized audio is empty")
)

// Config 火山引擎TTS配置
type Config struct {
	AppID       string
	AccessToken string
	Speaker     string
	Language    string
	Format      string
	Endpoint    string
	Timeout     time.Duration
}

func (c Config) withDefaults() Config {
	c.AppID = strings.TrimSpace(c.AppID)
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	if strings.TrimSpace(c.Speaker) == "" {
		c.Speaker = DefaultSpeaker
	}
	// 服务端不支持wav流式输出
	if c.Format == "" || c.Format == "wav" {
		c.Format = DefaultFormat
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Request 单次合成请求，比例为 0 或 1 时使用服务端默认值
type Request struct {
	Text        string
	Speaker     string
	SpeedRatio  float32
	VolumeRatio float32
}

// Client 火山引擎TTS WebSocket客户端
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logging.Logger
}

// NewClient 创建TTS客户端
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.AppID == "" || cfg.AccessToken == "" {
		return nil, ErrMissingCredentials
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		log:    log,
	}, nil
}

// Speaker 返回配置的默认音色
func (c *Client) Speaker() string { return c.cfg.Speaker }

// Language 返回配置的合成语言
func (c *Client) Language() string { return c.cfg.Language }

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string      `json:"speaker"`
		Text        string      `json:"text"`
		AudioParams audioParams `json:"audio_params"`
		Additions   string      `json:"additions,omitempty"`
		Language    string      `json:"language,omitempty"`
	} `json:"req_params"`
}

type audioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

type ttsResponse struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize 合成一段语音。资源ID与音色不匹配时依次尝试候选组合
func (c *Client) Synthesize(ctx context.Context, req Request) (speech.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return speech.Audio{}, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	speakers := speakerCandidates(req.Speaker, c.cfg.Speaker)
	var lastMismatch error

	for _, speaker := range speakers {
		for i, resource := range resourceCandidates(speaker) {
			clip, err := c.synthesizeWith(ctx, req, speaker, resource)
			if err == nil {
				if i > 0 {
					c.log.Info().Str("speaker", speaker).Str("resource", resource).Msg("tts succeeded with fallback resource")
				}
				return clip, nil
			}
			if !isResourceMismatch(err) {
				return speech.Audio{}, err
			}
			c.log.Warn().Err(err).Str("speaker", speaker).Str("resource", resource).Msg("tts resource mismatch")
			lastMismatch = err
		}
	}

	if lastMismatch != nil {
		return speech.Audio{}, lastMismatch
	}
	return speech.Audio{}, fmt.Errorf("volcengine: no compatible resource for speakers %v", speakers)
}

func (c *Client) synthesizeWith(ctx context.Context, req Request, speaker, resource string) (speech.Audio, error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if err != nil {
		return speech.Audio{}, fmt.Errorf("connect tts websocket: %w", err)
	}
	defer conn.Close()
	// 取消时关闭连接以中断阻塞的读取
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			c.log.Debug().Str("logid", logID).Msg("tts connected")
		}
	}

	payload, err := json.Marshal(c.buildRequest(req, speaker))
	if err != nil {
		return speech.Audio{}, fmt.Errorf("marshal tts request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newRequestFrame(payload).marshal()); err != nil {
		return speech.Audio{}, fmt.Errorf("send tts request: %w", err)
	}

	var (
		audio    bytes.Buffer
		duration int64
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return speech.Audio{}, ctxErr
			}
			return speech.Audio{}, fmt.Errorf("read tts response: %w", err)
		}

		f, err := unmarshalFrame(data)
		if err != nil {
			return speech.Audio{}, fmt.Errorf("decode tts frame: %w", err)
		}
		body, err := f.body()
		if err != nil {
			return speech.Audio{}, fmt.Errorf("decompress tts frame: %w", err)
		}

		switch f.kind {
		case errorResponse:
			return speech.Audio{}, fmt.Errorf("tts error %d: %s", f.errorCode, body)

		case audioOnlyResponse:
			audio.Write(body)
			if !f.last() {
				continue
			}

		case fullServerResponse:
			var msg ttsResponse
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					c.log.Warn().Err(err).Msg("tts response payload is not json")
				} else {
					if msg.Code != 0 && msg.Code != 3000 {
						return speech.Audio{}, fmt.Errorf("tts api error %d: %s", msg.Code, msg.Message)
					}
					if d, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
						duration = d
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return speech.Audio{}, fmt.Errorf("decode tts audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}
			finished := f.hasEvent() && f.event == eventSessionFinished
			if !finished && !f.last() && msg.Sequence >= 0 {
				continue
			}

		default:
			c.log.Debug().Int("type", int(f.kind)).Msg("tts unexpected frame")
			continue
		}

		if audio.Len() == 0 {
			return speech.Audio{}, ErrEmptyAudio
		}
		return speech.Audio{
			Format:     c.cfg.Format,
			Data:       audio.Bytes(),
			DurationMs: duration,
		}, nil
	}
}

// buildRequest 构建合成参数，语速与音量为 1 时省略
func (c *Client) buildRequest(req Request, speaker string) *ttsRequest {
	r := &ttsRequest{}
	r.User.UID = uuid.NewString()
	r.ReqParams.Speaker = speaker
	r.ReqParams.Text = req.Text
	r.ReqParams.Language = strings.TrimSpace(c.cfg.Language)
	r.ReqParams.Additions = `{"disable_markdown_filter":false}`
	r.ReqParams.AudioParams = audioParams{
		Format:          c.cfg.Format,
		SampleRate:      sampleRate,
		EnableTimestamp: true,
	}
	if req.SpeedRatio > 0 && req.SpeedRatio != 1 {
		r.ReqParams.AudioParams.SpeedRatio = req.SpeedRatio
	}
	if req.VolumeRatio > 0 && req.VolumeRatio != 1 {
		r.ReqParams.AudioParams.VolumeRatio = req.VolumeRatio
	}
	return r
}

// resourceCandidates 根据音色名推断可用的资源ID
func resourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceMega}
	}

	normalized := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "neptune", "mercury", "pluto", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{resourceSeed, resourceDefault}
		}
	}
	return []string{resourceDefault, resourceSeed}
}

// speakerCandidates 先尝试请求的音色，再回退到默认音色
func speakerCandidates(requested, fallback string) []string {
	aliases := map[string]string{
		"default":    fallback,
		"en_default": DefaultSpeaker,
		"female":     DefaultSpeaker,
	}

	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if mapped, ok := aliases[strings.ToLower(s)]; ok {
			s = mapped
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}
	add(requested)
	add(fallback)
	return out
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
