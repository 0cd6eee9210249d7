// internal/backend/gemini.go
package backend

import (
	"context"
	"fmt"

	"bidforge/internal/common/config"

	genai "google.golang.org/genai"
)

// GeminiGenerator speaks the Gemini API through the official genai client.
type GeminiGenerator struct {
	cli         *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewGemini(ctx context.Context, cfg config.BackendConfig) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiGenerator{
		cli:         cli,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (g *GeminiGenerator) Name() Name {
	return Gemini
}

func (g *GeminiGenerator) Generate(ctx context.Context, input GenerationInput) (*GenerationOutcome, error) {
	system, user := buildPrompt(input)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}
	if g.temperature > 0 {
		temp := float32(g.temperature)
		cfg.Temperature = &temp
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: user}}}},
		cfg,
	)
	if err != nil {
		return nil, &Error{Backend: Gemini, Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Backend: Gemini, Err: fmt.Errorf("empty candidate from model %s", g.model)}
	}

	content := resp.Candidates[0].Content.Parts[0].Text
	if content == "" {
		return nil, &Error{Backend: Gemini, Err: fmt.Errorf("empty text part from model %s", g.model)}
	}

	inTokens := estimateTokens(system + user)
	outTokens := estimateTokens(content)
	if resp.UsageMetadata != nil {
		inTokens = int(resp.UsageMetadata.PromptTokenCount)
		outTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &GenerationOutcome{
		Content:      content,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
	}, nil
}
