package speech_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	model "github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/speech"
)

type fakeOutput struct {
	mu      sync.Mutex
	spoken  []model.Utterance
	cancels int
	err     error
}

func (o *fakeOutput) SendSpeak(u model.Utterance) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.spoken = append(o.spoken, u)
	return nil
}

func (o *fakeOutput) SendCancel() error {
	o.mu.Lock()
	o.cancels++
	o.mu.Unlock()
	return nil
}

func TestBridgeWithoutOutput(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())

	err := bridge.Speak(model.Utterance{ID: "u1", Text: "hi"}, func(model.Event) {})
	assert.ErrorIs(t, err, speech.ErrNoOutput)
}

func TestBridgeForwardsToLatestOutput(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	older, newer := &fakeOutput{}, &fakeOutput{}
	bridge.Attach("a", older)
	bridge.Attach("b", newer)
	assert.Equal(t, 2, bridge.Outputs())

	require.NoError(t, bridge.Speak(model.Utterance{ID: "u1", Text: "hi"}, func(model.Event) {}))

	assert.Empty(t, older.spoken)
	require.Len(t, newer.spoken, 1)
	assert.Equal(t, "u1", newer.spoken[0].ID)

	bridge.Detach("b")
	require.NoError(t, bridge.Speak(model.Utterance{ID: "u2", Text: "hi"}, func(model.Event) {}))
	require.Len(t, older.spoken, 1)
}

func TestBridgeDispatchTracksSpeaking(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	bridge.Attach("a", &fakeOutput{})

	var got []model.Event
	require.NoError(t, bridge.Speak(model.Utterance{ID: "u1"}, func(ev model.Event) { got = append(got, ev) }))

	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventStarted})
	assert.True(t, bridge.Speaking())

	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventEnded})
	assert.False(t, bridge.Speaking())

	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventEnded})
	bridge.Dispatch(model.Event{UtteranceID: "unknown", Kind: model.EventStarted})
	assert.Len(t, got, 2)
}

func TestBridgeDetachErrorsActiveUtterance(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	bridge.Attach("a", &fakeOutput{})

	var got []model.Event
	require.NoError(t, bridge.Speak(model.Utterance{ID: "u1"}, func(ev model.Event) { got = append(got, ev) }))
	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventStarted})

	bridge.Detach("a")

	require.Len(t, got, 2)
	assert.Equal(t, model.EventErrored, got[1].Kind)
	assert.False(t, bridge.Speaking())
	assert.Zero(t, bridge.Outputs())
}

func TestBridgeCancelForwardsAndForgets(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	out := &fakeOutput{}
	bridge.Attach("a", out)

	var got []model.Event
	require.NoError(t, bridge.Speak(model.Utterance{ID: "u1"}, func(ev model.Event) { got = append(got, ev) }))
	bridge.Cancel()

	assert.Equal(t, 1, out.cancels)
	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventEnded})
	assert.Empty(t, got)
}

func TestBridgeSendFailure(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	bridge.Attach("a", &fakeOutput{err: errors.New("closed")})

	err := bridge.Speak(model.Utterance{ID: "u1"}, func(model.Event) {})
	assert.EqualError(t, err, "closed")
	assert.False(t, bridge.Speaking())
}

func TestBridgeVoices(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	voices := []model.Voice{{Name: "Samantha", Language: "en-US", Default: true}}
	bridge.SetVoices(voices)

	got := bridge.Voices()
	assert.Equal(t, voices, got)
	got[0].Name = "changed"
	assert.Equal(t, "Samantha", bridge.Voices()[0].Name)
}

func TestControllerOverBridge(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	out := &fakeOutput{}
	bridge.Attach("a", out)
	bridge.SetVoices([]model.Voice{{Name: "Google US English Female"}})

	ctrl, rec := newController(bridge, 0)
	id := ctrl.Speak("hello\nthere")

	require.Len(t, out.spoken, 1)
	assert.Equal(t, "hello there", out.spoken[0].Text)
	assert.Equal(t, "Google US English Female", out.spoken[0].Voice)

	bridge.Dispatch(model.Event{UtteranceID: id, Kind: model.EventStarted})
	assert.True(t, ctrl.Speaking())
	bridge.Dispatch(model.Event{UtteranceID: id, Kind: model.EventEnded})
	assert.False(t, ctrl.Speaking())
	assert.Len(t, rec.all(), 2)
}

func TestControllerOverDetachedBridge(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	ctrl, rec := newController(bridge, 0)

	ctrl.Speak("hello")

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventErrored, events[0].Kind)
}

type fakeAudioOutput struct {
	fakeOutput
	clips []model.Audio
}

func (o *fakeAudioOutput) SendAudio(u model.Utterance, clip model.Audio) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spoken = append(o.spoken, u)
	o.clips = append(o.clips, clip)
	return nil
}

func TestBridgePlaySendsClip(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	out := &fakeAudioOutput{}
	bridge.Attach("a", out)

	var got []model.Event
	clip := model.Audio{Format: "mp3", Data: []byte{0xff, 0xfb}}
	require.NoError(t, bridge.Play(model.Utterance{ID: "u1", Text: "hi"}, clip, func(ev model.Event) { got = append(got, ev) }))

	require.Len(t, out.clips, 1)
	assert.Equal(t, clip, out.clips[0])

	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventStarted})
	assert.True(t, bridge.Speaking())
	bridge.Dispatch(model.Event{UtteranceID: "u1", Kind: model.EventEnded})
	assert.False(t, bridge.Speaking())
	assert.Len(t, got, 2)
}

func TestBridgePlayNeedsAudioOutput(t *testing.T) {
	bridge := speech.NewBridge(logging.Nop())
	bridge.Attach("a", &fakeOutput{})

	err := bridge.Play(model.Utterance{ID: "u1"}, model.Audio{Format: "mp3"}, func(model.Event) {})

	assert.ErrorIs(t, err, speech.ErrAudioUnsupported)
	assert.False(t, bridge.Speaking())
}
