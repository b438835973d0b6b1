package synthesizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlendWithoutHistoryScalesRaw(t *testing.T) {
	m := newAdjacencyMemory(0.5)
	terms := []string{"Ada", "Babbage"}
	raw := [][]float64{{0, 2}, {2, 0}}

	blended := m.blend(terms, raw)
	assert.Equal(t, 1.0, blended[0][1], "(1-0.5)*2 with empty memory")
	assert.Equal(t, blended[0][1], blended[1][0], "blended matrix stays symmetric")
}

func TestBlendDampsRepeatedPairs(t *testing.T) {
	m := newAdjacencyMemory(0.5)
	terms := []string{"Ada", "Babbage"}
	raw := [][]float64{{0, 2}, {2, 0}}

	m.blend(terms, raw)
	blended := m.blend(terms, raw)
	assert.Equal(t, 1.5, blended[0][1], "0.5*2 + 0.5*1.0 from the first block")
}

func TestBlendZeroAlphaPassesRawThrough(t *testing.T) {
	m := newAdjacencyMemory(0)
	terms := []string{"Ada", "Babbage"}
	raw := [][]float64{{0, 3}, {3, 0}}

	m.blend(terms, raw)
	blended := m.blend(terms, raw)
	assert.Equal(t, 3.0, blended[0][1])
}

func TestMemoryKeepsUnseenPairs(t *testing.T) {
	m := newAdjacencyMemory(0.5)
	m.blend([]string{"Ada", "Babbage"}, [][]float64{{0, 2}, {2, 0}})

	// A block without the pair leaves its stored weight untouched.
	m.blend([]string{"Curie", "Darwin"}, [][]float64{{0, 4}, {4, 0}})
	assert.Equal(t, 1.0, m.weight("Ada", "Babbage"))
	assert.Equal(t, 1.0, m.weight("Babbage", "Ada"), "pair keys are unordered")

	assert.Equal(t, []string{"Ada", "Babbage", "Curie", "Darwin"}, m.knownTerms())
}
