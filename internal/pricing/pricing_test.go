// internal/pricing/pricing_test.go
package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCostMatchesTableFormula(t *testing.T) {
	// Round-trip against the table rather than hard-coded literals.
	for _, backend := range []string{"openai", "anthropic", "gemini", "deepseek", "qwen"} {
		rate, ok := LookupRate(backend)
		assert.True(t, ok, backend)

		expected := 1000.0/1_000_000*rate.InputPerMillion + 500.0/1_000_000*rate.OutputPerMillion
		assert.InDelta(t, expected, Cost(backend, 1000, 500), 1e-12, backend)
	}
}

func TestCostScalesLinearly(t *testing.T) {
	small := Cost("openai", 1000, 500)
	large := Cost("openai", 2000, 1000)

	assert.InDelta(t, small*2, large, 1e-12)
}

func TestCostZeroTokens(t *testing.T) {
	assert.Zero(t, Cost("anthropic", 0, 0))
}

func TestCostUnknownBackendIsZero(t *testing.T) {
	assert.Zero(t, Cost("mystery-model", 1000, 500))

	_, ok := LookupRate("mystery-model")
	assert.False(t, ok)
}
