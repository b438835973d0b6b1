// Package lifter deepens a coarse modular model to higher p-adic precision
// by Hensel lifting. Each step extends coefficients from precision p^d to
// p^(d+1) by fitting a correction term to the per-point residuals. When the
// correction system is algebraically singular (the Jacobian loses rank mod
// p, so multiple corrections are equally valid) the lift forks into one
// branch per admissible correction. Singularities are not errors; they are
// the expected trigger for branching.
package lifter

import (
	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/solver"
)

const (
	// DefaultMaxDepth bounds lifting steps per branch.
	DefaultMaxDepth = 5

	// MaxDepthLimit caps lifting steps for any base. The effective cap
	// also shrinks per prime, via maxDepthFor, so p^depth stays within
	// int64 range for large bases.
	MaxDepthLimit = 12

	// MaxBranches bounds fork fan-out: once this many branches exist,
	// each surviving branch continues only its dominant correction.
	MaxBranches = 8

	// levelTrials is the RANSAC trial count used per lifting step.
	levelTrials = 100
)

// Branch is one finalized lifting path: the coefficients it reached, the
// precision it achieved, and the consensus it held when it stopped.
type Branch struct {
	// Coefficients are the combined ascending coefficients modulo
	// p^Depth: Coefficients[i] = sum over levels of levelCoeff * p^level.
	Coefficients []int64

	// Degree of the lifted model, locked at depth 0.
	Degree int

	// Depth is the number of p-adic digits of precision achieved. Depth 1
	// means only the coarse model mod p survived.
	Depth int

	// Consensus is the fraction of the full dataset still matching the
	// branch when it finalized.
	Consensus float64

	// Profile records the mean residual valuation observed at each
	// lifting step; it is the branch's Newton-polygon trace.
	Profile []float64
}

// Lifter lifts modular models for a fixed prime.
type Lifter struct {
	p      int64
	solver *solver.Solver
}

// Option configures a Lifter.
type Option func(*Lifter)

// WithSolver substitutes a pre-configured solver, typically to share a
// seeded RNG with the caller for reproducible lifts.
func WithSolver(s *solver.Solver) Option {
	return func(l *Lifter) {
		l.solver = s
	}
}

// New creates a Lifter for prime p. Fails fast when p is not prime.
func New(p int64, opts ...Option) (*Lifter, error) {
	l := &Lifter{p: p}
	for _, opt := range opts {
		opt(l)
	}
	if l.solver == nil {
		s, err := solver.New(p)
		if err != nil {
			return nil, errors.Wrap(err, "Lifter", "New", "validate prime")
		}
		l.solver = s
	}
	return l, nil
}

// branchState is a live lifting path before finalization.
type branchState struct {
	levels    [][]int64 // per-level coefficients, each mod p
	degree    int
	active    []int   // indices into the original inputs still supporting
	outputs   []int64 // residual outputs aligned with active
	consensus float64
	profile   []float64
}

// Lift refines the relationship between inputs and outputs to higher
// p-adic precision, returning every finalized branch. The depth-0 model is
// always represented: if no lift step is ever accepted the result still
// holds one branch with Depth 1. Termination is bounded by
// maxDepth x MaxBranches.
func (l *Lifter) Lift(inputs, outputs []int64, maxDepth int, minConsensus float64) []Branch {
	if len(inputs) == 0 || len(inputs) != len(outputs) {
		return nil
	}
	if maxDepth < 1 {
		maxDepth = 1
	}
	if limit := maxDepthFor(l.p); maxDepth > limit {
		maxDepth = limit
	}
	total := len(inputs)

	// Depth 0: coarse model mod p over the full dataset.
	data := make([]solver.Point, total)
	for i := range inputs {
		data[i] = solver.Point{Index: inputs[i], Value: modp(outputs[i], l.p)}
	}
	model, inliers, ok := l.solver.BestFit(data, levelTrials)
	if !ok {
		return nil
	}

	base := &branchState{
		levels:    [][]int64{model.Coefficients()[:model.Degree+1]},
		degree:    model.Degree,
		consensus: float64(len(inliers)) / float64(total),
		profile:   []float64{meanValuation(l.solver, model, inliers)},
	}

	// Restrict support to depth-0 inliers and divide out the first digit.
	inSet := make(map[solver.Point]struct{}, len(inliers))
	for _, d := range inliers {
		inSet[d] = struct{}{}
	}
	for i := range inputs {
		pt := solver.Point{Index: inputs[i], Value: modp(outputs[i], l.p)}
		if _, hit := inSet[pt]; !hit {
			continue
		}
		diff := outputs[i] - evalInt(base.levels[0], inputs[i])
		if modp(diff, l.p) != 0 {
			continue
		}
		base.active = append(base.active, i)
		base.outputs = append(base.outputs, diff/l.p)
	}

	live := []*branchState{base}
	finalized := []Branch{}

	for depth := 1; depth < maxDepth && len(live) > 0; depth++ {
		next := []*branchState{}
		for _, br := range live {
			limit := MaxBranches - len(finalized) - len(next)
			if limit < 1 {
				limit = 1
			}
			children, done := l.step(br, inputs, total, minConsensus, limit)
			if done != nil {
				finalized = append(finalized, *done)
			}
			next = append(next, children...)
		}
		live = next
	}

	for _, br := range live {
		finalized = append(finalized, l.finalize(br))
	}
	return finalized
}

// correction is one admissible level fit: its ascending coefficients mod
// p, the points it explains, and its consensus against the full dataset.
type correction struct {
	coeffs    []int64
	inliers   []solver.Point
	consensus float64
}

// step lifts a branch by one level. Every admissible correction becomes a
// child branch: a unique correction continues the same path, more than one
// is a singularity and forks. A branch with no admissible correction
// finalizes with the precision it already achieved.
func (l *Lifter) step(br *branchState, inputs []int64, total int, minConsensus float64, limit int) ([]*branchState, *Branch) {
	if len(br.active) == 0 {
		done := l.finalize(br)
		return nil, &done
	}

	data := make([]solver.Point, len(br.active))
	for i, idx := range br.active {
		data[i] = solver.Point{Index: inputs[idx], Value: modp(br.outputs[i], l.p)}
	}

	corrections := l.corrections(data, br.degree, total, minConsensus, limit)
	if len(corrections) == 0 {
		done := l.finalize(br)
		return nil, &done
	}

	children := make([]*branchState, 0, len(corrections))
	for _, c := range corrections {
		child := l.extend(br, inputs, c.coeffs, c.inliers, c.consensus)
		child.profile = append(child.profile, meanResidualValuation(c.coeffs, c.inliers, l.p))
		children = append(children, child)
	}
	return children, nil
}

// corrections enumerates every level correction holding minConsensus, by
// fixed-degree peeling: fit the dominant correction, remove its inliers,
// repeat on the remainder. When the remainder's support collapses below
// degree+1 distinct residues the exact fitter can no longer sample, and
// the free columns of the underdetermined Vandermonde system supply the
// remaining candidates.
func (l *Lifter) corrections(data []solver.Point, degree, total int, minConsensus float64, limit int) []correction {
	out := []correction{}
	remaining := data
	for len(out) < limit && len(remaining) > 0 {
		if float64(len(remaining))/float64(total) < minConsensus {
			break
		}

		if l.isSingular(remaining, degree) {
			out = append(out, l.freeColumnCorrections(remaining, degree, total, minConsensus, limit-len(out))...)
			break
		}

		model, inliers, ok := l.solver.RansacDegree(remaining, levelTrials, degree)
		if !ok {
			break
		}
		consensus := float64(len(inliers)) / float64(total)
		if consensus < minConsensus {
			break
		}
		out = append(out, correction{
			coeffs:    model.Coefficients()[:degree+1],
			inliers:   inliers,
			consensus: consensus,
		})
		remaining = removePoints(remaining, inliers)
	}
	return out
}

// isSingular reports whether the correction system for the locked degree
// is underdetermined: fewer distinct index residues mod p than unknowns
// means the Vandermonde Jacobian loses rank.
func (l *Lifter) isSingular(data []solver.Point, degree int) bool {
	distinct := map[int64]struct{}{}
	for _, d := range data {
		distinct[modp(d.Index, l.p)] = struct{}{}
	}
	return len(distinct) < degree+1
}

// freeColumnCorrections enumerates admissible corrections over a collapsed
// support. The Vandermonde system over the distinct residues is
// underdetermined, so each residue value of its first free column is
// substituted in turn and the reduced system re-solved; every candidate
// holding minConsensus is admissible.
func (l *Lifter) freeColumnCorrections(data []solver.Point, degree, total int, minConsensus float64, limit int) []correction {
	cols := degree + 1

	// One representative row per distinct index residue, in first-seen
	// order to keep enumeration deterministic.
	seen := map[int64]struct{}{}
	a := [][]int64{}
	b := []int64{}
	for _, d := range data {
		r := modp(d.Index, l.p)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		row := make([]int64, cols)
		pow := int64(1)
		for i := 0; i < cols; i++ {
			row[i] = modp(pow, l.p)
			pow = modp(pow*d.Index, l.p)
		}
		a = append(a, row)
		b = append(b, modp(d.Value, l.p))
	}

	_, free, ok := l.solver.SolveLinearSystem(a, b)
	if !ok || len(free) == 0 {
		return nil
	}
	f := free[0]

	out := []correction{}
	for t := int64(0); t < l.p && len(out) < limit; t++ {
		// Substitute column f with value t and re-solve the rest.
		ra := make([][]int64, len(a))
		rb := make([]int64, len(b))
		for i := range a {
			row := make([]int64, 0, cols-1)
			for j, v := range a[i] {
				if j != f {
					row = append(row, v)
				}
			}
			ra[i] = row
			rb[i] = modp(b[i]-t*a[i][f], l.p)
		}
		sol, _, ok := l.solver.SolveLinearSystem(ra, rb)
		if !ok {
			continue
		}
		candidate := make([]int64, 0, cols)
		candidate = append(candidate, sol[:f]...)
		candidate = append(candidate, t)
		candidate = append(candidate, sol[f:]...)

		inliers := []solver.Point{}
		for _, d := range data {
			if evalMod(candidate, d.Index, l.p) == modp(d.Value, l.p) {
				inliers = append(inliers, d)
			}
		}
		consensus := float64(len(inliers)) / float64(total)
		if consensus < minConsensus || len(inliers) == 0 {
			continue
		}
		out = append(out, correction{coeffs: candidate, inliers: inliers, consensus: consensus})
	}
	return out
}

// removePoints drops the inlier set from the pool by (index, value)
// identity.
func removePoints(pool, inliers []solver.Point) []solver.Point {
	inSet := make(map[solver.Point]struct{}, len(inliers))
	for _, d := range inliers {
		inSet[d] = struct{}{}
	}
	next := make([]solver.Point, 0, len(pool))
	for _, d := range pool {
		if _, ok := inSet[d]; !ok {
			next = append(next, d)
		}
	}
	return next
}

// extend applies an accepted level correction, dividing the residuals by p
// for the surviving support.
func (l *Lifter) extend(br *branchState, inputs []int64, levelCoeffs []int64, inliers []solver.Point, consensus float64) *branchState {
	inSet := make(map[solver.Point]struct{}, len(inliers))
	for _, d := range inliers {
		inSet[d] = struct{}{}
	}

	child := &branchState{
		levels:    append(cloneLevels(br.levels), levelCoeffs),
		degree:    br.degree,
		consensus: consensus,
		profile:   append([]float64{}, br.profile...),
	}
	for i, idx := range br.active {
		pt := solver.Point{Index: inputs[idx], Value: modp(br.outputs[i], l.p)}
		if _, hit := inSet[pt]; !hit {
			continue
		}
		diff := br.outputs[i] - evalInt(levelCoeffs, inputs[idx])
		if modp(diff, l.p) != 0 {
			continue
		}
		child.active = append(child.active, idx)
		child.outputs = append(child.outputs, diff/l.p)
	}
	return child
}

// finalize combines per-level coefficients into their p-adic sum.
func (l *Lifter) finalize(br *branchState) Branch {
	depth := len(br.levels)
	coeffs := make([]int64, br.degree+1)
	power := int64(1)
	for _, level := range br.levels {
		for i := range coeffs {
			if i < len(level) {
				coeffs[i] += level[i] * power
			}
		}
		power *= l.p
	}
	return Branch{
		Coefficients: coeffs,
		Degree:       br.degree,
		Depth:        depth,
		Consensus:    br.consensus,
		Profile:      br.profile,
	}
}

// Modulus returns p^depth, the precision a branch of the given depth is
// valid to. Depths beyond the int64-safe bound for the base clamp to it,
// matching the depths Lift can actually produce.
func (l *Lifter) Modulus(depth int) int64 {
	if limit := maxDepthFor(l.p); depth > limit {
		depth = limit
	}
	power := int64(1)
	for i := 0; i < depth; i++ {
		power *= l.p
	}
	return power
}

// maxDepthFor is the deepest precision whose modulus fits int64 for base
// p, never above MaxDepthLimit.
func maxDepthFor(p int64) int {
	depth := 0
	power := int64(1)
	for depth < MaxDepthLimit && power <= (int64(1)<<62)/p {
		power *= p
		depth++
	}
	return depth
}

func meanValuation(s *solver.Solver, model solver.Model, inliers []solver.Point) float64 {
	_, profile := s.NewtonSlope(model, inliers)
	if len(profile) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range profile {
		sum += v
	}
	return sum / float64(len(profile))
}

// meanResidualValuation averages the p-adic valuation of the correction
// residuals for a fork candidate. Exact matches contribute the valuation
// cap rather than infinity so the mean stays finite.
func meanResidualValuation(coeffs []int64, inliers []solver.Point, p int64) float64 {
	if len(inliers) == 0 {
		return 0.0
	}
	const valCap = 10.0
	sum := 0.0
	for _, d := range inliers {
		r := d.Value - evalInt(coeffs, d.Index)
		if r < 0 {
			r = -r
		}
		if r == 0 {
			sum += valCap
			continue
		}
		v := 0.0
		for r%p == 0 && v < valCap {
			r /= p
			v++
		}
		sum += v
	}
	return sum / float64(len(inliers))
}

func cloneLevels(levels [][]int64) [][]int64 {
	out := make([][]int64, len(levels))
	for i, lv := range levels {
		out[i] = append([]int64{}, lv...)
	}
	return out
}

func evalInt(coeffs []int64, x int64) int64 {
	result := int64(0)
	pow := int64(1)
	for _, c := range coeffs {
		result += c * pow
		pow *= x
	}
	return result
}

func evalMod(coeffs []int64, x, p int64) int64 {
	result := int64(0)
	pow := int64(1)
	for _, c := range coeffs {
		result = modp(result+modp(c*pow, p), p)
		pow = modp(pow*x, p)
	}
	return result
}

func modp(a, p int64) int64 {
	r := a % p
	if r < 0 {
		r += p
	}
	return r
}

// Eval evaluates a finalized branch at x modulo its precision p^Depth.
func (b Branch) Eval(x, p int64) int64 {
	modulus := int64(1)
	for i := 0; i < b.Depth && modulus <= (int64(1)<<62)/p; i++ {
		modulus *= p
	}
	result := int64(0)
	pow := int64(1)
	for _, c := range b.Coefficients {
		result = modp(result+modp(c*pow, modulus), modulus)
		pow = modp(pow*x, modulus)
	}
	return result
}
