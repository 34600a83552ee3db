package speech

import (
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

// Device is a text-to-speech output. notify may be called from any goroutine,
// including synchronously from Speak.
type Device interface {
	Speak(u speech.Utterance, notify func(speech.Event)) error
	// Cancel stops the current utterance. It must not block on playback.
	Cancel()
	Speaking() bool
	Voices() []speech.Voice
}

// NopDevice accepts every utterance and reports it finished immediately.
type NopDevice struct{}

var _ Device = NopDevice{}

func (NopDevice) Speak(u speech.Utterance, notify func(speech.Event)) error {
	go func() {
		notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventStarted})
		notify(speech.Event{UtteranceID: u.ID, Kind: speech.EventEnded})
	}()
	return nil
}

func (NopDevice) Cancel() {}

func (NopDevice) Speaking() bool { return false }

func (NopDevice) Voices() []speech.Voice { return nil }
