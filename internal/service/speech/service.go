package speech

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/metrics"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
)

// DefaultBusyRetryDelay is how long Speak waits before re-issuing when the
// device still reports an utterance after being cancelled.
const DefaultBusyRetryDelay = 100 * time.Millisecond

// Options tunes a Controller.
type Options struct {
	BusyRetryDelay   time.Duration
	VoicePreferences []string
	Prosody          speech.Prosody
}

// Controller keeps at most one utterance active on a Device and relays its
// lifecycle to listeners. Signals from superseded utterances are dropped.
type Controller struct {
	device      Device
	log         *logging.Logger
	retryDelay  time.Duration
	preferences []string
	prosody     speech.Prosody
	newID       func() string

	// cmdMu serializes commands sent to the device.
	cmdMu sync.Mutex

	mu        sync.Mutex
	current   string
	speaking  bool
	retry     *time.Timer
	listeners []func(speech.Event)
}

// NewController creates a speech controller over device.
func NewController(device Device, log *logging.Logger, opts Options) *Controller {
	if device == nil {
		device = NopDevice{}
	}
	if log == nil {
		log = logging.Nop()
	}
	if opts.BusyRetryDelay < 0 {
		opts.BusyRetryDelay = 0
	}
	if len(opts.VoicePreferences) == 0 {
		opts.VoicePreferences = speech.DefaultVoicePreferences
	}
	if opts.Prosody == (speech.Prosody{}) {
		opts.Prosody = speech.DefaultProsody
	}

	return &Controller{
		device:      device,
		log:         log,
		retryDelay:  opts.BusyRetryDelay,
		preferences: append([]string(nil), opts.VoicePreferences...),
		prosody:     opts.Prosody,
		newID:       uuid.NewString,
	}
}

// OnSignal registers a listener for lifecycle signals of the current
// utterance. Listeners run outside the controller's lock but must not call
// Speak or Stop synchronously.
func (c *Controller) OnSignal(listener func(speech.Event)) {
	if listener == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// Speak cancels whatever is playing and issues text as a new utterance. It
// returns the utterance ID, or "" when text is blank.
func (c *Controller) Speak(text string) string {
	normalized := Normalize(text)

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	hadActive := c.current != ""
	c.resetLocked()
	c.mu.Unlock()

	if hadActive {
		c.device.Cancel()
	}
	if normalized == "" {
		return ""
	}

	u := speech.Utterance{
		ID:     c.newID(),
		Text:   normalized,
		Rate:   c.prosody.Rate,
		Pitch:  c.prosody.Pitch,
		Volume: c.prosody.Volume,
	}
	if voice, ok := SelectVoice(c.device.Voices(), c.preferences); ok {
		u.Voice = voice.Name
	}

	busy := c.device.Speaking()

	c.mu.Lock()
	c.current = u.ID
	if busy {
		c.retry = time.AfterFunc(c.retryDelay, func() { c.retryIssue(u) })
	}
	c.mu.Unlock()

	if busy {
		c.log.Debug().Str("utterance", u.ID).Dur("delay", c.retryDelay).Msg("device busy, retrying after cancel")
		c.device.Cancel()
		return u.ID
	}

	c.issueLocked(u)
	return u.ID
}

// Stop cancels the active or pending utterance. It is safe to call at any time.
func (c *Controller) Stop() {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	c.device.Cancel()
}

// Speaking reports whether the current utterance has started and not finished.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Current returns the ID of the active or pending utterance.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) retryIssue(u speech.Utterance) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if c.current != u.ID {
		c.mu.Unlock()
		return
	}
	c.retry = nil
	c.mu.Unlock()

	c.issueLocked(u)
}

// issueLocked requires cmdMu.
func (c *Controller) issueLocked(u speech.Utterance) {
	if err := c.device.Speak(u, c.handle); err != nil {
		c.log.Warn().Err(err).Str("utterance", u.ID).Msg("speech device refused utterance")
		c.handle(speech.Event{UtteranceID: u.ID, Kind: speech.EventErrored, Err: err.Error()})
	}
}

func (c *Controller) handle(ev speech.Event) {
	c.mu.Lock()
	if ev.UtteranceID == "" || ev.UtteranceID != c.current {
		c.mu.Unlock()
		return
	}

	switch ev.Kind {
	case speech.EventStarted:
		c.speaking = true
	case speech.EventEnded, speech.EventErrored:
		c.speaking = false
		c.current = ""
	default:
		c.mu.Unlock()
		return
	}
	listeners := append([]func(speech.Event){}, c.listeners...)
	c.mu.Unlock()

	metrics.ObserveUtterance(string(ev.Kind))
	if ev.Kind == speech.EventErrored {
		c.log.Warn().Str("utterance", ev.UtteranceID).Str("error", ev.Err).Msg("utterance failed")
	}

	for _, listener := range listeners {
		listener(ev)
	}
}

func (c *Controller) resetLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.current = ""
	c.speaking = false
}
