package synthesizer

import "sort"

// pairKey identifies an unordered term pair.
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// adjacencyMemory is the run-lifetime association state. For every term
// pair it holds the last blended weight, so abrupt topic shifts between
// adjacent blocks are damped instead of discarding earlier structure.
type adjacencyMemory struct {
	alpha   float64
	weights map[pairKey]float64
}

func newAdjacencyMemory(alpha float64) *adjacencyMemory {
	return &adjacencyMemory{
		alpha:   alpha,
		weights: map[pairKey]float64{},
	}
}

// blend folds a block's raw association matrix into the memory and
// returns the blended matrix aligned with terms. Each seen pair becomes
// (1-alpha)*raw + alpha*previous; pairs absent from this block keep their
// stored weight untouched.
func (m *adjacencyMemory) blend(terms []string, raw [][]float64) [][]float64 {
	n := len(terms)
	blended := make([][]float64, n)
	for i := range blended {
		blended[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			key := newPairKey(terms[i], terms[j])
			prev := m.weights[key]
			w := (1-m.alpha)*raw[i][j] + m.alpha*prev
			if w > 0 {
				m.weights[key] = w
			}
			blended[i][j] = w
			blended[j][i] = w
		}
	}
	return blended
}

// weight returns the remembered weight for a term pair.
func (m *adjacencyMemory) weight(x, y string) float64 {
	return m.weights[newPairKey(x, y)]
}

// knownTerms lists every term the memory has seen, sorted.
func (m *adjacencyMemory) knownTerms() []string {
	seen := map[string]struct{}{}
	for key := range m.weights {
		seen[key.a] = struct{}{}
		seen[key.b] = struct{}{}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
