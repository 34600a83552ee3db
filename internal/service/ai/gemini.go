package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

var (
	// ErrEmptyCandidate is returned when the response carries no generated text.
	ErrEmptyCandidate = errors.New("gemini: response has no candidate text")
	// ErrToolsUnsupported is returned by BindTools.
	ErrToolsUnsupported = errors.New("gemini: tool binding is not supported")
)

var _ model.ChatModel = (*GeminiChatModel)(nil)

// GeminiConfig configures the Gemini chat model.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient is wrapped so the key travels as a query credential.
	HTTPClient *http.Client
}

// GeminiChatModel adapts the Gemini generateContent API to eino's chat model
// interface.
type GeminiChatModel struct {
	client *genai.Client
	model  string
}

// NewGeminiChatModel creates a Gemini chat model using the official SDK.
func NewGeminiChatModel(ctx context.Context, cfg GeminiConfig) (*GeminiChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini: empty model name")
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := *base
	httpClient.Transport = &apiKeyTransport{key: cfg.APIKey, next: transport}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: "v1beta",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiChatModel{client: client, model: cfg.Model}, nil
}

// Generate sends the conversation to generateContent and returns the first
// candidate's first text part.
func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature, topP, maxTokens := Temperature, TopP, MaxOutputTokens
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   &maxTokens,
	}, opts...)

	config := &genai.GenerateContentConfig{
		Temperature:     options.Temperature,
		TopP:            options.TopP,
		TopK:            float32Ptr(TopK),
		MaxOutputTokens: int32(*options.MaxTokens),
	}

	contents, system := toContents(input)
	if system != nil {
		config.SystemInstruction = system
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: no messages")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	text := firstCandidateText(resp)
	if text == "" {
		return nil, ErrEmptyCandidate
	}
	return schema.AssistantMessage(text, nil), nil
}

// Stream wraps Generate; the therapist reply is short enough that a single
// chunk is sufficient.
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is not supported.
func (g *GeminiChatModel) BindTools(_ []*schema.ToolInfo) error {
	return ErrToolsUnsupported
}

func toContents(input []*schema.Message) ([]*genai.Content, *genai.Content) {
	contents := make([]*genai.Content, 0, len(input))
	var system *genai.Content
	for _, msg := range input {
		if msg == nil {
			continue
		}
		part := &genai.Part{Text: msg.Content}
		switch msg.Role {
		case schema.System:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, part)
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		}
	}
	return contents, system
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}
	part := candidate.Content.Parts[0]
	if part == nil || strings.TrimSpace(part.Text) == "" {
		return ""
	}
	return part.Text
}

func float32Ptr(v float32) *float32 { return &v }

// apiKeyTransport adds the API key as the "key" query parameter.
type apiKeyTransport struct {
	key  string
	next http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	query := clone.URL.Query()
	query.Set("key", t.key)
	clone.URL.RawQuery = query.Encode()
	return t.next.RoundTrip(clone)
}
