package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/emotion"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/metrics"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/talking-therapist/backend/internal/model/speech"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
)

// DefaultWarmupDelay is the pause between a reply settling and it being spoken.
const DefaultWarmupDelay = 800 * time.Millisecond

var (
	ErrEmptyMessage = errors.New("message text is required")
	ErrBusy         = errors.New("a reply is already being generated")
	// ErrDiscarded is returned when the conversation was cleared while the
	// reply was being generated.
	ErrDiscarded = errors.New("conversation cleared before the reply arrived")
)

// Replier produces one reply per user message and owns the remote-context history.
type Replier interface {
	GenerateReply(ctx context.Context, userText string, mood emotion.Label) ai.Reply
	ClearHistory()
}

// Speaker voices replies.
type Speaker interface {
	Speak(text string) string
	Stop()
	Speaking() bool
	OnSignal(listener func(speechmodel.Event))
}

// Options tunes the orchestrator.
type Options struct {
	WarmupDelay time.Duration
}

// Exchange is the result of an accepted submission.
type Exchange struct {
	User    chat.Message  `json:"user"`
	Reply   chat.Message  `json:"reply"`
	Emotion emotion.Label `json:"emotion"`
	Source  ai.Source     `json:"source"`
}

// EventKind identifies a session notification.
type EventKind string

const (
	EventState   EventKind = "state"
	EventMessage EventKind = "message"
	EventCleared EventKind = "cleared"
)

// Event is pushed to subscribers whenever the session changes.
type Event struct {
	Kind    EventKind     `json:"type"`
	State   chat.State    `json:"state"`
	Message *chat.Message `json:"message,omitempty"`
}

// Service orchestrates a single conversation session: transcript, emotion,
// the busy guard and speech of the latest reply.
type Service struct {
	replier     Replier
	speaker     Speaker
	log         *logging.Logger
	warmupDelay time.Duration

	// speechMu orders speaker commands; it is always taken before mu.
	speechMu sync.Mutex

	mu         sync.Mutex
	transcript []chat.Message
	emotion    emotion.Label
	busy       bool
	nextID     uint64
	epoch      uint64
	warmup     *time.Timer
	warmupSeq  uint64

	subMu       sync.Mutex
	subscribers map[uint64]chan Event
	nextSub     uint64
}

// NewService wires the orchestrator to a conversation client and a speaker.
func NewService(replier Replier, speaker Speaker, log *logging.Logger, opts Options) *Service {
	if log == nil {
		log = logging.Nop()
	}
	if opts.WarmupDelay < 0 {
		opts.WarmupDelay = 0
	}

	s := &Service{
		replier:     replier,
		speaker:     speaker,
		log:         log,
		warmupDelay: opts.WarmupDelay,
		emotion:     emotion.Neutral,
		transcript:  make([]chat.Message, 0, 16),
		subscribers: make(map[uint64]chan Event),
	}
	speaker.OnSignal(s.onSpeech)
	return s
}

// Submit sends text to the conversation client and blocks until the reply
// settles. Generation is detached from ctx cancellation; the client bounds it.
func (s *Service) Submit(ctx context.Context, text string) (Exchange, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		metrics.SubmissionRejected("empty")
		return Exchange{}, ErrEmptyMessage
	}

	s.speechMu.Lock()
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.speechMu.Unlock()
		metrics.SubmissionRejected("busy")
		s.log.Debug().Msg("submission rejected while busy")
		return Exchange{}, ErrBusy
	}
	s.busy = true
	s.stopWarmupLocked()
	epoch := s.epoch
	mood := s.emotion
	userMsg := s.appendLocked(trimmed, chat.SenderUser, "")
	s.mu.Unlock()
	s.speaker.Stop()
	s.speechMu.Unlock()

	s.publishMessage(userMsg)
	s.publishState()

	started := time.Now()
	reply := s.replier.GenerateReply(context.WithoutCancel(ctx), trimmed, mood)
	latency := time.Since(started)
	label := emotion.Classify(reply.Text)
	metrics.ObserveReply(string(reply.Source), latency)

	s.mu.Lock()
	if s.epoch != epoch {
		s.busy = false
		s.mu.Unlock()
		s.log.Info().Msg("discarding reply for cleared conversation")
		s.publishState()
		return Exchange{User: userMsg}, ErrDiscarded
	}
	s.emotion = label
	agentMsg := s.appendLocked(reply.Text, chat.SenderAgent, label)
	s.busy = false
	s.scheduleSpeechLocked(reply.Text)
	s.mu.Unlock()

	metrics.ObserveEmotion(string(label))
	s.log.Info().
		Str("source", string(reply.Source)).
		Str("emotion", string(label)).
		Dur("latency", latency).
		Msg("reply settled")

	s.publishMessage(agentMsg)
	s.publishState()

	return Exchange{
		User:    userMsg,
		Reply:   agentMsg,
		Emotion: label,
		Source:  reply.Source,
	}, nil
}

// Clear empties the transcript, resets the emotion, clears the client's
// history and silences speech. A reply still in flight is discarded when it
// settles, and until then Submit keeps returning ErrBusy.
func (s *Service) Clear() {
	s.speechMu.Lock()
	s.mu.Lock()
	s.transcript = make([]chat.Message, 0, 16)
	s.emotion = emotion.Neutral
	s.epoch++
	s.stopWarmupLocked()
	s.mu.Unlock()
	s.replier.ClearHistory()
	s.speaker.Stop()
	s.speechMu.Unlock()

	s.log.Info().Msg("conversation cleared")
	s.publish(Event{Kind: EventCleared, State: s.State()})
	s.publishState()
}

// Transcript returns a copy of the visible messages in creation order.
func (s *Service) Transcript() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]chat.Message, len(s.transcript))
	copy(copied, s.transcript)
	return copied
}

// State returns the renderer-facing snapshot.
func (s *Service) State() chat.State {
	speaking := s.speaker.Speaking()

	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.State{
		Emotion:   s.emotion,
		Busy:      s.busy,
		Speaking:  speaking,
		IsTalking: speaking,
		Messages:  len(s.transcript),
	}
}

// Subscribe returns a feed of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// StopSpeech silences the current reply and any reply waiting to be spoken.
func (s *Service) StopSpeech() {
	s.silence()
	s.publishState()
}

// Close cancels pending speech. The session stays usable.
func (s *Service) Close() {
	s.silence()
}

func (s *Service) silence() {
	s.speechMu.Lock()
	defer s.speechMu.Unlock()

	s.mu.Lock()
	s.stopWarmupLocked()
	s.mu.Unlock()
	s.speaker.Stop()
}

func (s *Service) appendLocked(text string, sender chat.Sender, label emotion.Label) chat.Message {
	s.nextID++
	msg := chat.Message{
		ID:        s.nextID,
		Text:      text,
		Sender:    sender,
		Emotion:   string(label),
		Timestamp: time.Now().UTC(),
	}
	s.transcript = append(s.transcript, msg)
	return msg
}

func (s *Service) scheduleSpeechLocked(text string) {
	s.warmupSeq++
	seq := s.warmupSeq
	s.warmup = time.AfterFunc(s.warmupDelay, func() { s.speakReply(seq, text) })
}

func (s *Service) speakReply(seq uint64, text string) {
	s.speechMu.Lock()
	defer s.speechMu.Unlock()

	s.mu.Lock()
	if s.warmup == nil || s.warmupSeq != seq {
		s.mu.Unlock()
		return
	}
	s.warmup = nil
	s.mu.Unlock()

	s.speaker.Speak(text)
	s.publishState()
}

func (s *Service) stopWarmupLocked() {
	if s.warmup != nil {
		s.warmup.Stop()
		s.warmup = nil
	}
}

func (s *Service) onSpeech(ev speechmodel.Event) {
	s.log.Debug().Str("utterance", ev.UtteranceID).Str("kind", string(ev.Kind)).Msg("speech signal")
	s.publishState()
}

func (s *Service) publishState() {
	s.publish(Event{Kind: EventState, State: s.State()})
}

func (s *Service) publishMessage(msg chat.Message) {
	s.publish(Event{Kind: EventMessage, State: s.State(), Message: &msg})
}

func (s *Service) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
