// internal/contenthash/hash_test.go
package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsStableAcrossCalls(t *testing.T) {
	text := "Build a bid for the warehouse extension"

	first := Sum(text)
	second := Sum(text)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestSumNormalizesCaseAndWhitespace(t *testing.T) {
	base := Sum("build a bid for the warehouse extension")

	assert.Equal(t, base, Sum("Build A Bid   for the\twarehouse extension"))
	assert.Equal(t, base, Sum("  build a bid\nfor the warehouse extension  "))
}

func TestSumDistinguishesDifferentText(t *testing.T) {
	assert.NotEqual(t, Sum("warehouse extension"), Sum("warehouse demolition"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  A\t B \n C "))
	assert.Equal(t, "", Normalize("   "))
}
