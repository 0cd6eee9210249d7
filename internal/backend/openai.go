// internal/backend/openai.go
package backend

import (
	"context"
	"fmt"

	"bidforge/internal/common/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator speaks the OpenAI chat completions API. DeepSeek and
// Qwen expose OpenAI-compatible endpoints, so the same implementation
// serves all three with different base URLs.
type OpenAIGenerator struct {
	name        Name
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI creates a generator against api.openai.com.
func NewOpenAI(cfg config.BackendConfig) *OpenAIGenerator {
	return newOpenAICompatible(OpenAI, cfg)
}

// NewDeepSeek creates a generator against the DeepSeek OpenAI-compatible API.
func NewDeepSeek(cfg config.BackendConfig) *OpenAIGenerator {
	return newOpenAICompatible(DeepSeek, cfg)
}

// NewQwen creates a generator against the DashScope OpenAI-compatible API.
func NewQwen(cfg config.BackendConfig) *OpenAIGenerator {
	return newOpenAICompatible(Qwen, cfg)
}

func newOpenAICompatible(name Name, cfg config.BackendConfig) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		name:        name,
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (g *OpenAIGenerator) Name() Name {
	return g.name
}

func (g *OpenAIGenerator) Generate(ctx context.Context, input GenerationInput) (*GenerationOutcome, error) {
	system, user := buildPrompt(input)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(g.maxTokens))
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &Error{Backend: g.name, Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &Error{Backend: g.name, Err: fmt.Errorf("empty completion from model %s", g.model)}
	}

	content := resp.Choices[0].Message.Content
	inTokens := int(resp.Usage.PromptTokens)
	outTokens := int(resp.Usage.CompletionTokens)
	if inTokens == 0 {
		inTokens = estimateTokens(system + user)
	}
	if outTokens == 0 {
		outTokens = estimateTokens(content)
	}

	return &GenerationOutcome{
		Content:      content,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
	}, nil
}
