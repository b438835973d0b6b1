package synthesizer

import (
	"sort"

	"github.com/c360/semlattice/lifter"
	"github.com/c360/semlattice/padic"
	"github.com/c360/semlattice/solver"
)

// localManifold is one block's solve outcome for one prime: coordinates,
// their precision depths, and the solve statistics the orchestrator
// reports.
type localManifold struct {
	prime  int64
	coords map[string]int64
	depths map[string]int

	layers     int
	liftDepths []int
}

// localSolver owns the per-prime solving machinery. Instances are
// read-only during a block, so per-prime solves can run concurrently.
type localSolver struct {
	prime   int64
	encoder *padic.Encoder
	solver  *solver.Solver
	lifter  *lifter.Lifter

	minSize      int
	minRatio     float64
	maxDepth     int
	minConsensus float64
}

// solve turns one block's blended association matrix into a local
// manifold. Terms are ranked by connectivity, walked into provisional
// base-p addresses, and the (rank, address) observations are peeled into
// residue layers whose inliers get lifted coordinates.
func (ls *localSolver) solve(terms []string, blended [][]float64) *localManifold {
	m := &localManifold{
		prime:  ls.prime,
		coords: map[string]int64{},
		depths: map[string]int{},
	}
	if len(terms) == 0 {
		return m
	}

	ranked := rankByConnectivity(terms, blended)
	addresses := ls.walkAddresses(ranked, terms, blended)

	data := make([]solver.Point, len(ranked))
	for rank, ti := range ranked {
		data[rank] = solver.Point{Index: int64(rank), Value: addresses[ti]}
	}
	for _, ti := range ranked {
		m.coords[terms[ti]] = addresses[ti]
		m.depths[terms[ti]] = walkDepth(ls.encoder, addresses[ti])
	}

	layers := ls.solver.RansacIterative(data, ls.minSize, ls.minRatio)
	m.layers = len(layers)

	for _, layer := range layers {
		inputs := make([]int64, len(layer.Inliers))
		outputs := make([]int64, len(layer.Inliers))
		for i, pt := range layer.Inliers {
			inputs[i] = pt.Index
			outputs[i] = pt.Value
		}
		branches := ls.lifter.Lift(inputs, outputs, ls.maxDepth, ls.minConsensus)
		best, ok := dominantBranch(branches)
		if !ok {
			continue
		}
		m.liftDepths = append(m.liftDepths, best.Depth)
		for _, pt := range layer.Inliers {
			term := terms[ranked[pt.Index]]
			m.coords[term] = best.Eval(pt.Index, ls.prime)
			m.depths[term] = best.Depth
		}
	}
	return m
}

// rankByConnectivity orders term indices by weighted degree of the
// blended matrix, descending, breaking ties alphabetically so ranking is
// stable across runs.
func rankByConnectivity(terms []string, blended [][]float64) []int {
	conn := make([]float64, len(terms))
	for i := range terms {
		for j := range terms {
			conn[i] += blended[i][j]
		}
	}
	ranked := make([]int, len(terms))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		if conn[ranked[a]] != conn[ranked[b]] {
			return conn[ranked[a]] > conn[ranked[b]]
		}
		return terms[ranked[a]] < terms[ranked[b]]
	})
	return ranked
}

// walkAddresses assigns a provisional base-p address per term index via an
// iterative breadth-first walk of the thresholded adjacency graph. Each
// connected component's root takes the next congruence class in 1..p-1;
// children extend the parent's address by one digit per level.
func (ls *localSolver) walkAddresses(ranked []int, terms []string, blended [][]float64) map[int]int64 {
	threshold := halfMeanPositive(blended)
	p := ls.prime

	addresses := map[int]int64{}
	level := map[int]int{}
	roots := 0

	for _, start := range ranked {
		if _, seen := addresses[start]; seen {
			continue
		}
		class := 1 + int64(roots)%(p-1)
		roots++
		addresses[start] = class
		level[start] = 0

		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			digit := int64(1)
			for _, next := range ranked {
				if _, seen := addresses[next]; seen {
					continue
				}
				if blended[cur][next] < threshold || blended[cur][next] == 0 {
					continue
				}
				addresses[next] = childAddress(addresses[cur], digit, level[cur]+1, p)
				level[next] = level[cur] + 1
				queue = append(queue, next)
				digit++
				if digit >= p {
					digit = 1
				}
			}
		}
	}
	return addresses
}

// childAddress extends a parent address with one digit at the given
// level. When the positional power would overflow int64 the parent
// address is reused; precision past that point comes from lifting, not
// the walk.
func childAddress(parent, digit int64, level int, p int64) int64 {
	power := int64(1)
	for i := 0; i < level; i++ {
		if power > (int64(1)<<62)/p {
			return parent
		}
		power *= p
	}
	return parent + digit*power
}

// halfMeanPositive is the walk threshold: half the mean of the strictly
// positive weights. Zero when the matrix carries no association at all.
func halfMeanPositive(blended [][]float64) float64 {
	sum, count := 0.0, 0
	for i := range blended {
		for j := range blended[i] {
			if i != j && blended[i][j] > 0 {
				sum += blended[i][j]
				count++
			}
		}
	}
	if count == 0 {
		return 0.0
	}
	return sum / float64(count) / 2.0
}

// dominantBranch picks the branch a layer's inliers adopt: highest
// consensus, then deepest precision, then first reported.
func dominantBranch(branches []lifter.Branch) (lifter.Branch, bool) {
	if len(branches) == 0 {
		return lifter.Branch{}, false
	}
	best := branches[0]
	for _, br := range branches[1:] {
		if br.Consensus > best.Consensus ||
			(br.Consensus == best.Consensus && br.Depth > best.Depth) {
			best = br
		}
	}
	return best, true
}

// walkDepth is the precision credited to an unlifted walk address: the
// address valuation, floored at zero for the infinite sentinel of zero.
func walkDepth(encoder *padic.Encoder, address int64) int {
	v := encoder.ValuationInt64(address)
	if v == padic.ValuationInfinite {
		return 0
	}
	return v
}
