package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/emotion"
	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/fallback"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/chat"
)

// DefaultRequestTimeout bounds a single remote generation.
const DefaultRequestTimeout = 30 * time.Second

var (
	// ErrModelUnavailable is reported when no remote model is configured.
	ErrModelUnavailable = errors.New("ai: no chat model configured")
	// ErrEmptyReply is reported when the model answers without text.
	ErrEmptyReply = errors.New("ai: model returned an empty reply")
)

// Source tells where a reply came from.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// Reply is the outcome of one generation.
type Reply struct {
	Text   string
	Source Source
}

// Options tunes the service.
type Options struct {
	Timeout time.Duration
	// Provider is only used to label log lines.
	Provider string
}

// Service is the conversation client: it owns the remote-context history and
// turns every user message into exactly one reply, remote or fallback.
type Service struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	fallback *fallback.Generator
	log      *logging.Logger
	timeout  time.Duration
	provider string

	mu      sync.Mutex
	history []chat.Turn
	epoch   uint64
}

// NewService creates a conversation client. A nil chatModel is allowed and
// makes every reply come from the fallback generator.
func NewService(ctx context.Context, chatModel model.BaseChatModel, gen *fallback.Generator, log *logging.Logger, opts Options) (*Service, error) {
	if gen == nil {
		gen = fallback.New(nil)
	}
	if log == nil {
		log = logging.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.Provider == "" {
		opts.Provider = "none"
	}

	svc := &Service{
		fallback: gen,
		log:      log,
		timeout:  opts.Timeout,
		provider: opts.Provider,
	}

	if chatModel == nil {
		return svc, nil
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(newPromptTemplate())
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	svc.chain = runnable
	return svc, nil
}

// GenerateReply answers userText. It never fails: transport errors, timeouts
// and empty payloads all resolve to a fallback reply. Only remote replies are
// recorded as model turns in the history.
func (s *Service) GenerateReply(ctx context.Context, userText string, mood emotion.Label) Reply {
	if strings.TrimSpace(userText) == "" {
		return Reply{Text: s.fallback.Reply(""), Source: SourceFallback}
	}

	epoch := s.appendTurn(chat.RoleUser, userText)

	started := time.Now()
	text, err := s.remote(ctx, userText, mood)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("provider", s.provider).
			Dur("elapsed", time.Since(started)).
			Msg("remote model unavailable, using fallback reply")
		return Reply{Text: s.fallback.Reply(userText), Source: SourceFallback}
	}

	s.appendTurnAt(epoch, chat.RoleModel, text)
	s.log.Debug().
		Str("provider", s.provider).
		Int("length", len(text)).
		Dur("elapsed", time.Since(started)).
		Msg("generated reply")
	return Reply{Text: text, Source: SourceRemote}
}

// ClearHistory empties the remote-context history.
func (s *Service) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.epoch++
	s.mu.Unlock()
}

// History returns a copy of the remote-context history.
func (s *Service) History() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Turn(nil), s.history...)
}

// RemoteEnabled reports whether a chat model is wired.
func (s *Service) RemoteEnabled() bool {
	return s.chain != nil
}

func (s *Service) remote(ctx context.Context, userText string, mood emotion.Label) (string, error) {
	if s.chain == nil {
		return "", ErrModelUnavailable
	}
	if mood == "" {
		mood = emotion.Neutral
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := map[string]any{
		"emotion": string(mood),
		"query":   userText,
	}
	resp, err := s.chain.Invoke(ctx, input, compose.WithChatModelOption(
		model.WithTemperature(Temperature),
		model.WithTopP(TopP),
		model.WithMaxTokens(MaxOutputTokens),
	))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Content, nil
}

func (s *Service) appendTurn(role chat.Role, text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, chat.Turn{Role: role, Text: text})
	return s.epoch
}

// appendTurnAt drops the turn when the history was cleared after epoch.
func (s *Service) appendTurnAt(epoch uint64, role chat.Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.history = append(s.history, chat.Turn{Role: role, Text: text})
}
