package volcengine

import (
	"context"
	"strings"
	"sync"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
	speechService "github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
)

// Synthesizer 将文本合成为音频
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (speech.Audio, error)
}

// Player 播放服务端合成的音频，生命周期事件由播放端回报
type Player interface {
	Play(u speech.Utterance, clip speech.Audio, notify func(speech.Event)) error
	Cancel()
	Speaking() bool
}

var (
	_ Synthesizer          = (*Client)(nil)
	_ Player               = (*speechService.Bridge)(nil)
	_ speechService.Device = (*Device)(nil)
)

// Device 在服务端合成语音，再交给WebSocket客户端播放
type Device struct {
	synth  Synthesizer
	player Player
	voices []speech.Voice
	log    *logging.Logger

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
}

// NewDevice 创建语音设备。voice 为 /voices 接口展示的默认音色
func NewDevice(synth Synthesizer, player Player, voice speech.Voice, log *logging.Logger) *Device {
	if log == nil {
		log = logging.Nop()
	}
	d := &Device{synth: synth, player: player, log: log}
	if strings.TrimSpace(voice.Name) != "" {
		voice.Default = true
		d.voices = []speech.Voice{voice}
	}
	return d
}

// Speak 异步合成并播放，语速与音量映射为合成参数
func (d *Device) Speak(u speech.Utterance, notify func(speech.Event)) error {
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.active, d.cancel = u.ID, cancel
	d.mu.Unlock()

	go d.render(ctx, cancel, u, notify)
	return nil
}

func (d *Device) render(ctx context.Context, cancel context.CancelFunc, u speech.Utterance, notify func(speech.Event)) {
	defer cancel()

	clip, err := d.synth.Synthesize(ctx, Request{
		Text:        u.Text,
		Speaker:     u.Voice,
		SpeedRatio:  u.Rate,
		VolumeRatio: u.Volume,
	})

	d.mu.Lock()
	// 已被取消或被新的语句替代
	if d.active != u.ID || ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	d.active, d.cancel = "", nil
	if err == nil {
		err = d.player.Play(u, clip, notify)
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Warn().Err(err).Str("utterance", u.ID).Msg("synthesized speech failed")
		notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventErrored, Err: err.Error()})
	}
}

// Cancel 中止合成并停止播放
func (d *Device) Cancel() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.active, d.cancel = "", nil
	d.mu.Unlock()

	d.player.Cancel()
}

// Speaking 合成中或播放中均视为正在说话
func (d *Device) Speaking() bool {
	d.mu.Lock()
	synthesizing := d.active != ""
	d.mu.Unlock()
	return synthesizing || d.player.Speaking()
}

func (d *Device) Voices() []speech.Voice {
	return append([]speech.Voice(nil), d.voices...)
}
