// Package pricing converts token counts into a monetary cost per model
// backend, used for usage-based billing.
package pricing

// Rate holds USD prices per one million tokens.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// rates is the static per-backend pricing table. Prices track each
// provider's published sheet for the default model.
var rates = map[string]Rate{
	"openai":    {InputPerMillion: 2.50, OutputPerMillion: 10.00}, // gpt-4o
	"anthropic": {InputPerMillion: 3.00, OutputPerMillion: 15.00}, // claude-3-5-sonnet
	"gemini":    {InputPerMillion: 0.10, OutputPerMillion: 0.40},  // gemini-2.0-flash
	"deepseek":  {InputPerMillion: 0.14, OutputPerMillion: 0.28},  // deepseek-chat
	"qwen":      {InputPerMillion: 0.40, OutputPerMillion: 1.20},  // qwen-vl-max
}

// LookupRate returns the pricing entry for a backend.
func LookupRate(backend string) (Rate, bool) {
	r, ok := rates[backend]
	return r, ok
}

// Cost computes the USD cost of one generation. Unknown backends cost
// zero rather than failing; cost metering is bookkeeping, never a
// reason to reject a generation.
func Cost(backend string, inputTokens, outputTokens int) float64 {
	r, ok := rates[backend]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*r.InputPerMillion +
		float64(outputTokens)/1_000_000*r.OutputPerMillion
}
