package synthesizer

import (
	"math/big"
	"sort"

	"github.com/c360/semlattice/padic"
)

// buildTree derives the parent/children hierarchy from a coordinate map.
// A term's parent is the already-placed term with strictly fewer base-p
// digits whose low-order digits agree with it the longest; terms with no
// such agreement are roots. Placement runs shallow to deep, so edges can
// only point from shorter addresses to longer ones and the result is a
// forest.
func buildTree(encoder *padic.Encoder, coords map[string]*big.Int) (map[string][]string, []string) {
	terms := make([]string, 0, len(coords))
	for t := range coords {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(a, b int) bool {
		la, lb := digitLen(encoder, coords[terms[a]]), digitLen(encoder, coords[terms[b]])
		if la != lb {
			return la < lb
		}
		if c := coords[terms[a]].Cmp(coords[terms[b]]); c != 0 {
			return c < 0
		}
		return terms[a] < terms[b]
	})

	tree := map[string][]string{}
	roots := []string{}
	diff := new(big.Int)

	for i, term := range terms {
		length := digitLen(encoder, coords[term])
		bestAgree := 0
		parent := ""
		for _, prior := range terms[:i] {
			pl := digitLen(encoder, coords[prior])
			if pl >= length {
				continue
			}
			diff.Sub(coords[term], coords[prior])
			agree := encoder.Valuation(diff)
			if agree > pl {
				agree = pl
			}
			if agree > bestAgree {
				bestAgree = agree
				parent = prior
			}
		}
		if bestAgree == 0 {
			roots = append(roots, term)
			continue
		}
		tree[parent] = append(tree[parent], term)
	}

	for _, children := range tree {
		sort.Strings(children)
	}
	sort.Strings(roots)
	return tree, roots
}

// digitLen is the number of base-p digits of |v|: zero for zero, one for
// the classes 1..p-1, and so on.
func digitLen(encoder *padic.Encoder, v *big.Int) int {
	if v.Sign() == 0 {
		return 0
	}
	abs := new(big.Int).Abs(v)
	p := big.NewInt(encoder.Base())
	n := 0
	for abs.Sign() != 0 {
		abs.Quo(abs, p)
		n++
	}
	return n
}

// WalkTree flattens a hierarchy breadth-first from its roots. Traversal
// is iterative and keeps a visited set, so a malformed tree with a cycle
// terminates instead of recursing forever.
func WalkTree(tree map[string][]string, roots []string) []string {
	order := []string{}
	visited := map[string]struct{}{}
	queue := append([]string{}, roots...)
	for len(queue) > 0 {
		term := queue[0]
		queue = queue[1:]
		if _, seen := visited[term]; seen {
			continue
		}
		visited[term] = struct{}{}
		order = append(order, term)
		queue = append(queue, tree[term]...)
	}
	return order
}
