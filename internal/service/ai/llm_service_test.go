package ai_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/emotion"
	"github.com/zhouzirui/talking-therapist/backend/internal/analysis/fallback"
	"github.com/zhouzirui/talking-therapist/backend/internal/logging"
	"github.com/zhouzirui/talking-therapist/backend/internal/model/chat"
	"github.com/zhouzirui/talking-therapist/backend/internal/service/ai"
)

type fakeChatModel struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    bool
	prompts  []string
	options  []*model.Options
	onInvoke func()
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	for _, msg := range input {
		f.prompts = append(f.prompts, msg.Content)
	}
	f.options = append(f.options, model.GetCommonOptions(&model.Options{}, opts...))
	hook := f.onInvoke
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func newService(t *testing.T, cm model.BaseChatModel, timeout time.Duration) *ai.Service {
	t.Helper()
	svc, err := ai.NewService(context.Background(), cm, fallback.NewSeeded(1), logging.Nop(), ai.Options{Timeout: timeout, Provider: "fake"})
	require.NoError(t, err)
	return svc
}

func TestGenerateReplyRemoteSuccess(t *testing.T) {
	cm := &fakeChatModel{reply: "Welcome! How can I help?"}
	svc := newService(t, cm, time.Second)

	reply := svc.GenerateReply(context.Background(), "hello", emotion.Neutral)

	assert.Equal(t, ai.SourceRemote, reply.Source)
	assert.Equal(t, "Welcome! How can I help?", reply.Text)
	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Text: "hello"},
		{Role: chat.RoleModel, Text: "Welcome! How can I help?"},
	}, svc.History())
}

func TestGenerateReplyComposesSinglePrompt(t *testing.T) {
	cm := &fakeChatModel{reply: "ok"}
	svc := newService(t, cm, time.Second)

	svc.GenerateReply(context.Background(), "I can't sleep", emotion.Worried)

	require.Len(t, cm.prompts, 1)
	prompt := cm.prompts[0]
	assert.Contains(t, prompt, "You are a compassionate AI therapist.")
	assert.Contains(t, prompt, "Current emotion context: worried.")
	assert.Contains(t, prompt, "User: I can't sleep")
	assert.Contains(t, prompt, "(2-3 sentences maximum)")
}

func TestGenerateReplyAppliesGenerationPolicy(t *testing.T) {
	cm := &fakeChatModel{reply: "ok"}
	svc := newService(t, cm, time.Second)

	svc.GenerateReply(context.Background(), "hi", "")

	require.Len(t, cm.options, 1)
	opts := cm.options[0]
	require.NotNil(t, opts.Temperature)
	require.NotNil(t, opts.TopP)
	require.NotNil(t, opts.MaxTokens)
	assert.InDelta(t, 0.7, *opts.Temperature, 1e-6)
	assert.InDelta(t, 0.95, *opts.TopP, 1e-6)
	assert.Equal(t, 150, *opts.MaxTokens)
	assert.Contains(t, cm.prompts[0], "Current emotion context: neutral.")
}

func TestGenerateReplyFallbackKeepsUserTurnOnly(t *testing.T) {
	cm := &fakeChatModel{err: errors.New("503 service unavailable")}
	svc := newService(t, cm, time.Second)

	reply := svc.GenerateReply(context.Background(), "I'm so stressed", emotion.Neutral)

	assert.Equal(t, ai.SourceFallback, reply.Source)
	assert.Contains(t, fallback.Candidates(fallback.Stress), reply.Text)
	assert.Equal(t, []chat.Turn{{Role: chat.RoleUser, Text: "I'm so stressed"}}, svc.History())
}

func TestGenerateReplyEmptyPayloadFallsBack(t *testing.T) {
	cm := &fakeChatModel{reply: "   "}
	svc := newService(t, cm, time.Second)

	reply := svc.GenerateReply(context.Background(), "I feel anxious", emotion.Neutral)

	assert.Equal(t, ai.SourceFallback, reply.Source)
	assert.Contains(t, fallback.Candidates(fallback.Anxiety), reply.Text)
	assert.Len(t, svc.History(), 1)
}

func TestGenerateReplyTimeoutFallsBack(t *testing.T) {
	cm := &fakeChatModel{block: true}
	svc := newService(t, cm, 20*time.Millisecond)

	start := time.Now()
	reply := svc.GenerateReply(context.Background(), "hello", emotion.Neutral)

	assert.Equal(t, ai.SourceFallback, reply.Source)
	assert.Contains(t, fallback.Candidates(fallback.Greeting), reply.Text)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerateReplyWithoutModel(t *testing.T) {
	svc := newService(t, nil, time.Second)
	assert.False(t, svc.RemoteEnabled())

	reply := svc.GenerateReply(context.Background(), "I am so angry", emotion.Neutral)

	assert.Equal(t, ai.SourceFallback, reply.Source)
	assert.Contains(t, fallback.Candidates(fallback.Anger), reply.Text)
	assert.Len(t, svc.History(), 1)
}

func TestGenerateReplyEmptyInputRecordsNothing(t *testing.T) {
	cm := &fakeChatModel{reply: "unused"}
	svc := newService(t, cm, time.Second)

	reply := svc.GenerateReply(context.Background(), "  \n ", emotion.Neutral)

	assert.Equal(t, ai.SourceFallback, reply.Source)
	assert.Contains(t, fallback.Candidates(fallback.Default), reply.Text)
	assert.Empty(t, svc.History())
	assert.Empty(t, cm.prompts)
}

func TestHistoryGrowsByTwoPerExchange(t *testing.T) {
	cm := &fakeChatModel{reply: "I hear you."}
	svc := newService(t, cm, time.Second)

	for i := 1; i <= 3; i++ {
		svc.GenerateReply(context.Background(), "tell me more", emotion.Neutral)
		assert.Len(t, svc.History(), 2*i)
	}
}

func TestClearHistoryIsIdempotent(t *testing.T) {
	cm := &fakeChatModel{reply: "ok"}
	svc := newService(t, cm, time.Second)
	svc.GenerateReply(context.Background(), "hello", emotion.Neutral)

	svc.ClearHistory()
	svc.ClearHistory()

	assert.Empty(t, svc.History())
}

func TestClearDuringGenerationDropsModelTurn(t *testing.T) {
	cm := &fakeChatModel{reply: "late reply"}
	svc := newService(t, cm, time.Second)
	cm.onInvoke = svc.ClearHistory

	reply := svc.GenerateReply(context.Background(), "hello", emotion.Neutral)

	assert.Equal(t, "late reply", reply.Text)
	assert.Empty(t, svc.History())
}

func TestHistoryReturnsCopy(t *testing.T) {
	cm := &fakeChatModel{reply: "ok"}
	svc := newService(t, cm, time.Second)
	svc.GenerateReply(context.Background(), "hello", emotion.Neutral)

	history := svc.History()
	history[0].Text = "mutated"

	assert.Equal(t, "hello", svc.History()[0].Text)
}
