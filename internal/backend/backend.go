// Package backend provides a uniform interface over interchangeable LLM
// generation providers, selected by name from a registry.
package backend

import (
	"context"
	"fmt"
	"strings"

	"bidforge/internal/common/logger"
)

// Name identifies a generation provider. The enumeration is closed;
// unknown names resolve to the configured default.
type Name string

const (
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
	Gemini    Name = "gemini"
	DeepSeek  Name = "deepseek"
	Qwen      Name = "qwen"
)

// ParseName normalizes a stored backend preference. ok is false for
// names outside the enumeration.
func ParseName(s string) (Name, bool) {
	switch Name(strings.ToLower(strings.TrimSpace(s))) {
	case OpenAI:
		return OpenAI, true
	case Anthropic:
		return Anthropic, true
	case Gemini:
		return Gemini, true
	case DeepSeek:
		return DeepSeek, true
	case Qwen:
		return Qwen, true
	default:
		return "", false
	}
}

// GenerationInput is the per-invocation payload passed to a provider.
type GenerationInput struct {
	Instructions string
	Context      string
	Tone         string
}

// GenerationOutcome is produced once per backend invocation attempt.
type GenerationOutcome struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Error wraps any transport, authentication, or malformed-response
// condition from a provider.
type Error struct {
	Backend Name
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Generator is the capability interface every provider implements.
type Generator interface {
	Name() Name
	Generate(ctx context.Context, input GenerationInput) (*GenerationOutcome, error)
}

// Registry maps backend names to providers. New backends are added by
// registration, not by editing a conditional.
type Registry struct {
	generators  map[Name]Generator
	defaultName Name
	logger      logger.Logger
}

func NewRegistry(defaultName Name, log logger.Logger) *Registry {
	return &Registry{
		generators:  make(map[Name]Generator),
		defaultName: defaultName,
		logger:      log.WithFields(map[string]interface{}{"component": "backend-registry"}),
	}
}

func (r *Registry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Default returns the configured default backend name.
func (r *Registry) Default() Name {
	return r.defaultName
}

// Names lists the registered backends.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	return names
}

// Resolve returns the generator for name, falling back to the default
// for unknown or unregistered names so older stored preferences keep
// working.
func (r *Registry) Resolve(name Name) (Generator, Name) {
	if g, ok := r.generators[name]; ok {
		return g, name
	}

	if name != "" {
		r.logger.Warn("unknown backend requested, using default", map[string]interface{}{
			"requested": string(name),
			"default":   string(r.defaultName),
		})
	}
	return r.generators[r.defaultName], r.defaultName
}

// Invoke dispatches a generation to the named backend.
func (r *Registry) Invoke(ctx context.Context, name Name, input GenerationInput) (*GenerationOutcome, Name, error) {
	g, resolved := r.Resolve(name)
	if g == nil {
		return nil, resolved, &Error{Backend: resolved, Err: fmt.Errorf("no generator registered for %q", resolved)}
	}

	outcome, err := g.Generate(ctx, input)
	if err != nil {
		return nil, resolved, err
	}
	return outcome, resolved, nil
}

// buildPrompt produces the system and user messages shared by all
// providers. The assembled context arrives already formatted; the tone
// hint rides along when present.
func buildPrompt(input GenerationInput) (system, user string) {
	var sys []string
	sys = append(sys, "You are a professional construction bid writer. Draft a complete, well-structured bid document grounded strictly in the provided project context.")
	if input.Tone != "" {
		sys = append(sys, fmt.Sprintf("Write in a %s tone.", input.Tone))
	}

	var usr []string
	if input.Context != "" {
		usr = append(usr, "PROJECT CONTEXT:")
		usr = append(usr, input.Context)
	}
	usr = append(usr, "INSTRUCTIONS:")
	usr = append(usr, input.Instructions)

	return strings.Join(sys, " "), strings.Join(usr, "\n\n")
}

// estimateTokens approximates token usage when a provider response
// omits usage metadata. Four characters per token is the usual rough
// ratio for English text.
func estimateTokens(text string) int {
	return len(text)/4 + 1
}
