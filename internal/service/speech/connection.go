package speech

import (
	"errors"
	"sync"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

var (
	// ErrNoOutput is returned when the bridge has no attached client to speak through.
	ErrNoOutput = errors.New("speech: no output attached")
	// ErrAudioUnsupported is returned by Play when the primary output cannot play clips.
	ErrAudioUnsupported = errors.New("speech: output cannot play audio")
)

// Output is a remote synthesizer, typically a browser connected over websocket.
type Output interface {
	SendSpeak(u speech.Utterance) error
	SendCancel() error
}

// AudioOutput is an Output that also plays clips synthesized server-side.
type AudioOutput interface {
	Output
	SendAudio(u speech.Utterance, clip speech.Audio) error
}

// Bridge is a Device that forwards commands to the most recently attached
// Output and receives lifecycle events back through Dispatch.
type Bridge struct {
	log *logging.Logger

	mu       sync.Mutex
	order    []string
	outputs  map[string]Output
	pending  map[string]func(speech.Event)
	owner    map[string]string
	active   string
	speaking bool
	voices   []speech.Voice
}

var _ Device = (*Bridge)(nil)

// NewBridge creates a bridge with no outputs attached.
func NewBridge(log *logging.Logger) *Bridge {
	if log == nil {
		log = logging.Nop()
	}
	return &Bridge{
		log:     log,
		outputs: make(map[string]Output),
		pending: make(map[string]func(speech.Event)),
		owner:   make(map[string]string),
	}
}

// Attach registers an output; the latest attached output receives commands.
func (b *Bridge) Attach(id string, out Output) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// a client that reattaches keeps only its latest registration
	b.removeLocked(id)
	b.outputs[id] = out
	b.order = append(b.order, id)
	b.log.Debug().Str("client", id).Int("outputs", len(b.outputs)).Msg("speech output attached")
}

// Detach removes an output. An utterance still playing on it is reported as errored.
func (b *Bridge) Detach(id string) {
	b.mu.Lock()
	b.removeLocked(id)

	var (
		notify  func(speech.Event)
		orphan  string
		outputs = len(b.outputs)
	)
	if b.active != "" && b.owner[b.active] == id {
		orphan = b.active
		notify = b.pending[orphan]
		delete(b.pending, orphan)
		delete(b.owner, orphan)
		b.active = ""
		b.speaking = false
	}
	b.mu.Unlock()

	b.log.Debug().Str("client", id).Int("outputs", outputs).Msg("speech output detached")
	if notify != nil {
		notify(speech.Event{UtteranceID: orphan, Kind: speech.EventErrored, Err: "output detached"})
	}
}

// Outputs returns the number of attached outputs.
func (b *Bridge) Outputs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outputs)
}

// Speak forwards the utterance to the primary output, which synthesizes it.
func (b *Bridge) Speak(u speech.Utterance, notify func(speech.Event)) error {
	return b.deliver(u, notify, func(out Output) error {
		return out.SendSpeak(u)
	})
}

// Play sends a synthesized clip to the primary output. The output reports
// playback through Dispatch exactly as it does for Speak.
func (b *Bridge) Play(u speech.Utterance, clip speech.Audio, notify func(speech.Event)) error {
	return b.deliver(u, notify, func(out Output) error {
		audioOut, ok := out.(AudioOutput)
		if !ok {
			return ErrAudioUnsupported
		}
		return audioOut.SendAudio(u, clip)
	})
}

func (b *Bridge) deliver(u speech.Utterance, notify func(speech.Event), send func(Output) error) error {
	b.mu.Lock()
	id, out := b.primaryLocked()
	if out == nil {
		b.mu.Unlock()
		return ErrNoOutput
	}
	b.pending[u.ID] = notify
	b.owner[u.ID] = id
	b.active = u.ID
	b.speaking = false
	b.mu.Unlock()

	if err := send(out); err != nil {
		b.mu.Lock()
		b.forgetLocked(u.ID)
		b.mu.Unlock()
		return err
	}
	return nil
}

// Cancel asks the primary output to stop and forgets every pending utterance.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	_, out := b.primaryLocked()
	b.pending = make(map[string]func(speech.Event))
	b.owner = make(map[string]string)
	b.active = ""
	b.speaking = false
	b.mu.Unlock()

	if out == nil {
		return
	}
	if err := out.SendCancel(); err != nil {
		b.log.Warn().Err(err).Msg("failed to forward speech cancel")
	}
}

// Speaking reports whether the primary output has a started, unfinished utterance.
func (b *Bridge) Speaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speaking
}

// Voices returns the voices last reported by a client.
func (b *Bridge) Voices() []speech.Voice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]speech.Voice(nil), b.voices...)
}

// SetVoices replaces the advertised voice list.
func (b *Bridge) SetVoices(voices []speech.Voice) {
	b.mu.Lock()
	b.voices = append([]speech.Voice(nil), voices...)
	b.mu.Unlock()
}

// Dispatch routes a lifecycle event reported by a client to the utterance's
// notifier. Events for unknown utterances are ignored.
func (b *Bridge) Dispatch(ev speech.Event) {
	b.mu.Lock()
	notify, ok := b.pending[ev.UtteranceID]
	if !ok {
		b.mu.Unlock()
		b.log.Debug().Str("utterance", ev.UtteranceID).Str("kind", string(ev.Kind)).Msg("ignoring event for unknown utterance")
		return
	}

	switch ev.Kind {
	case speech.EventStarted:
		if ev.UtteranceID == b.active {
			b.speaking = true
		}
	case speech.EventEnded, speech.EventErrored:
		b.forgetLocked(ev.UtteranceID)
	default:
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if notify != nil {
		notify(ev)
	}
}

func (b *Bridge) primaryLocked() (string, Output) {
	if len(b.order) == 0 {
		return "", nil
	}
	id := b.order[len(b.order)-1]
	return id, b.outputs[id]
}

func (b *Bridge) removeLocked(id string) {
	if _, ok := b.outputs[id]; !ok {
		return
	}
	delete(b.outputs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *Bridge) forgetLocked(utteranceID string) {
	delete(b.pending, utteranceID)
	delete(b.owner, utteranceID)
	if b.active == utteranceID {
		b.active = ""
		b.speaking = false
	}
}
