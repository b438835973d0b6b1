// Package solver fits residue relationships to noisy (index, value) data
// modulo a prime. The discovery loop is multimodal RANSAC with iterative
// peeling: the dominant layer is extracted, its inliers removed, and the
// search repeats on the remainder until no candidate clears the consensus
// threshold. Each accepted layer carries a Newton-polygon valuation slope
// used downstream to flag ramified (unstable) relationships.
package solver

import (
	"math"
	"math/rand"
	"sort"

	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/padic"
)

const (
	// DefaultTrialBudget bounds the total number of RANSAC sampling trials
	// across all peeling iterations, guaranteeing termination on
	// adversarial input.
	DefaultTrialBudget = 500

	// DefaultMaxDegree is the highest polynomial degree attempted.
	DefaultMaxDegree = 2

	// MaxDegreeLimit is the highest degree the exact fitter supports.
	MaxDegreeLimit = 3

	// MaxLayers caps peeling iterations so pure noise cannot loop.
	MaxLayers = 5

	// valuationCap stands in for an unbounded valuation (exact residual
	// zero) in Newton profiles.
	valuationCap = 10.0

	// newtonSampleSize bounds the inliers profiled per layer.
	newtonSampleSize = 15
)

// Point is one observation: Value observed at Index.
type Point struct {
	Index int64
	Value int64
}

// Layer is one residue relationship discovered by peeling: the model, the
// observations it explains, its consensus against the pool it was peeled
// from, and its Newton-polygon ramification profile.
type Layer struct {
	Model   Model
	Inliers []Point

	// Ratio is inlier count over the size of the remaining pool at the
	// time this layer was accepted.
	Ratio float64

	// ValuationSlope is the rate of change of residual valuation across
	// inliers ordered by index magnitude. Steep negative slopes indicate
	// ramification: the relationship degrades with scale.
	ValuationSlope float64

	// NewtonProfile holds the per-inlier residual valuations behind
	// ValuationSlope.
	NewtonProfile []float64
}

// Solver discovers residue layers modulo a fixed prime.
type Solver struct {
	p       int64
	encoder *padic.Encoder

	rng         *rand.Rand
	trialBudget int
	maxDegree   int
}

// Option configures a Solver.
type Option func(*Solver)

// WithSeed makes trial sampling deterministic for reproducible layer
// discovery.
func WithSeed(seed int64) Option {
	return func(s *Solver) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithTrialBudget overrides the total sampling trial budget.
func WithTrialBudget(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.trialBudget = n
		}
	}
}

// WithMaxDegree bounds the polynomial degree sweep.
func WithMaxDegree(d int) Option {
	return func(s *Solver) {
		if d >= 0 && d <= MaxDegreeLimit {
			s.maxDegree = d
		}
	}
}

// New creates a Solver for prime p. Fails fast when p is not prime.
func New(p int64, opts ...Option) (*Solver, error) {
	encoder, err := padic.New(p)
	if err != nil {
		return nil, errors.Wrap(err, "Solver", "New", "validate prime")
	}
	s := &Solver{
		p:           p,
		encoder:     encoder,
		rng:         rand.New(rand.NewSource(1)),
		trialBudget: DefaultTrialBudget,
		maxDegree:   DefaultMaxDegree,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Prime returns the solver's modulus.
func (s *Solver) Prime() int64 {
	return s.p
}

// RansacIterative discovers residue layers by iterative peeling. While the
// remaining pool has at least minSize points, the best candidate model is
// searched within the trial budget; if its inlier ratio (against the
// remaining pool) reaches minRatio it becomes a layer and its inliers are
// peeled off. An empty result is a valid outcome signaling no discoverable
// structure, not an error.
func (s *Solver) RansacIterative(data []Point, minSize int, minRatio float64) []Layer {
	layers := []Layer{}
	if len(data) == 0 {
		return layers
	}

	remaining := make([]Point, len(data))
	copy(remaining, data)

	budget := s.trialBudget
	for layerIdx := 0; layerIdx < MaxLayers; layerIdx++ {
		if len(remaining) < minSize || budget <= 0 {
			break
		}

		// Spread the remaining budget over the layers still allowed.
		trials := budget / (MaxLayers - layerIdx)
		if trials < 1 {
			trials = 1
		}
		budget -= trials

		model, inliers, ok := s.bestCandidate(remaining, trials)
		if !ok {
			break
		}

		ratio := float64(len(inliers)) / float64(len(remaining))
		if ratio < minRatio {
			break
		}

		slope, profile := s.newtonProfile(model, inliers)
		layers = append(layers, Layer{
			Model:          model,
			Inliers:        inliers,
			Ratio:          ratio,
			ValuationSlope: slope,
			NewtonProfile:  profile,
		})

		next := peel(remaining, inliers)
		if len(next) == len(remaining) {
			// No reduction; guard against looping on degenerate data.
			break
		}
		remaining = next
	}

	return layers
}

// BestFit searches for the single best model over data within the given
// trial count, sweeping degrees from 0 upward. Ties on inlier ratio keep
// the lower degree. The second return is the inlier set; ok is false when
// no trial produced a model.
func (s *Solver) BestFit(data []Point, trials int) (Model, []Point, bool) {
	return s.bestCandidate(data, trials)
}

// RansacDegree runs fixed-degree RANSAC over data within the given trial
// count. The lifter uses it with a locked degree when refining a level's
// correction term.
func (s *Solver) RansacDegree(data []Point, trials, degree int) (Model, []Point, bool) {
	return s.ransacDegree(data, trials, degree)
}

// NewtonSlope computes the Newton-polygon valuation slope and profile of a
// model over its inliers.
func (s *Solver) NewtonSlope(model Model, inliers []Point) (float64, []float64) {
	return s.newtonProfile(model, inliers)
}

// FitExact fits the lowest-representation polynomial of the given degree
// through degree+1 points via Lagrange interpolation mod p. Fails when the
// points do not have distinct residues mod p.
func (s *Solver) FitExact(points []Point, degree int) (Model, bool) {
	coeffs, ok := s.interpolate(points, degree)
	if !ok {
		return Model{}, false
	}
	return newModel(coeffs, degree), true
}

func (s *Solver) bestCandidate(data []Point, trials int) (Model, []Point, bool) {
	var (
		bestModel   Model
		bestInliers []Point
		found       bool
	)
	bestRatio := 0.0

	for degree := 0; degree <= s.maxDegree; degree++ {
		needed := degree + 1
		if len(data) < needed {
			continue
		}

		degTrials := trials / (s.maxDegree + 1)
		if degTrials < 1 {
			degTrials = 1
		}

		model, inliers, ok := s.ransacDegree(data, degTrials, degree)
		if !ok {
			continue
		}
		ratio := float64(len(inliers)) / float64(len(data))

		// Strict improvement required, so equal consensus keeps the
		// lowest degree found first.
		if ratio > bestRatio {
			bestRatio = ratio
			bestModel = model
			bestInliers = inliers
			found = true
		}

		// A perfect fit cannot be beaten by a higher degree, and ties
		// keep the lower degree, so the sweep can stop here.
		if ratio == 1.0 {
			return model, inliers, true
		}
	}

	return bestModel, bestInliers, found
}

// ransacDegree runs fixed-degree RANSAC: sample degree+1 points, fit
// exactly, keep the model with the most inliers.
func (s *Solver) ransacDegree(data []Point, trials, degree int) (Model, []Point, bool) {
	needed := degree + 1
	if len(data) < needed {
		return Model{}, nil, false
	}
	var (
		bestModel   Model
		bestInliers []Point
		found       bool
	)

	for trial := 0; trial < trials; trial++ {
		sample := s.samplePoints(data, needed)
		model, ok := s.FitExact(sample, degree)
		if !ok {
			continue
		}

		inliers := s.countInliers(data, model)
		if !found || len(inliers) > len(bestInliers) {
			bestModel = model
			bestInliers = inliers
			found = true
		}
	}

	return bestModel, bestInliers, found
}

func (s *Solver) samplePoints(data []Point, n int) []Point {
	// Partial Fisher-Yates over a scratch index slice.
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	sample := make([]Point, n)
	for i := 0; i < n; i++ {
		j := i + s.rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		sample[i] = data[idx[i]]
	}
	return sample
}

func (s *Solver) countInliers(data []Point, model Model) []Point {
	inliers := []Point{}
	for _, d := range data {
		if model.Eval(d.Index, s.p) == mod(d.Value, s.p) {
			inliers = append(inliers, d)
		}
	}
	return inliers
}

// interpolate computes ascending polynomial coefficients through the first
// degree+1 points using the Lagrange basis expanded mod p.
func (s *Solver) interpolate(points []Point, degree int) ([]int64, bool) {
	n := degree + 1
	if len(points) < n {
		return nil, false
	}
	pts := points[:n]

	// Distinct residues required for an invertible Vandermonde system.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if mod(pts[i].Index-pts[j].Index, s.p) == 0 {
				return nil, false
			}
		}
	}

	coeffs := make([]int64, n)
	for i := 0; i < n; i++ {
		den := int64(1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			den = mod(den*(pts[i].Index-pts[j].Index), s.p)
		}
		inv, ok := modInverse(den, s.p)
		if !ok {
			return nil, false
		}
		scale := mod(mod(pts[i].Value, s.p)*inv, s.p)

		// Expand the basis numerator prod_{j!=i} (x - x_j).
		basis := []int64{1}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			next := make([]int64, len(basis)+1)
			for k, c := range basis {
				next[k+1] = mod(next[k+1]+c, s.p)
				next[k] = mod(next[k]-mod(c*pts[j].Index, s.p), s.p)
			}
			basis = next
		}
		for k, c := range basis {
			coeffs[k] = mod(coeffs[k]+mod(scale*c, s.p), s.p)
		}
	}

	return coeffs, true
}

// newtonProfile computes per-inlier residual valuations ordered by index
// magnitude, and the slope across the profile. Residuals are taken over
// the plain integers; exact zeros are capped.
func (s *Solver) newtonProfile(model Model, inliers []Point) (float64, []float64) {
	if len(inliers) < 3 {
		return 0.0, nil
	}

	sample := make([]Point, len(inliers))
	copy(sample, inliers)
	sort.Slice(sample, func(i, j int) bool {
		return abs64(sample[i].Index) < abs64(sample[j].Index)
	})
	if len(sample) > newtonSampleSize {
		sample = sample[:newtonSampleSize]
	}

	profile := make([]float64, len(sample))
	for i, d := range sample {
		residual := d.Value - model.EvalInt(d.Index)
		if residual == 0 {
			profile[i] = valuationCap
			continue
		}
		v := float64(s.encoder.ValuationInt64(residual))
		profile[i] = math.Min(v, valuationCap)
	}

	slope := (profile[len(profile)-1] - profile[0]) / float64(len(profile)-1)
	return slope, profile
}

// SolveLinearSystem solves A*x = b mod p by Gaussian elimination. The
// second return lists free column indices when the system is
// underdetermined; those columns admit any residue, which the lifter
// treats as a singularity and forks on.
func (s *Solver) SolveLinearSystem(a [][]int64, b []int64) ([]int64, []int, bool) {
	rows := len(a)
	if rows == 0 || len(b) != rows {
		return nil, nil, false
	}
	cols := len(a[0])

	m := make([][]int64, rows)
	for i := range a {
		if len(a[i]) != cols {
			return nil, nil, false
		}
		m[i] = make([]int64, cols+1)
		for j, v := range a[i] {
			m[i][j] = mod(v, s.p)
		}
		m[i][cols] = mod(b[i], s.p)
	}

	pivotRow := 0
	pivotCols := []int{}
	for j := 0; j < cols && pivotRow < rows; j++ {
		curr := pivotRow
		for curr < rows && m[curr][j] == 0 {
			curr++
		}
		if curr == rows {
			continue
		}
		m[pivotRow], m[curr] = m[curr], m[pivotRow]

		inv, ok := modInverse(m[pivotRow][j], s.p)
		if !ok {
			return nil, nil, false
		}
		for k := j; k <= cols; k++ {
			m[pivotRow][k] = mod(m[pivotRow][k]*inv, s.p)
		}
		for i := 0; i < rows; i++ {
			if i == pivotRow {
				continue
			}
			factor := m[i][j]
			if factor == 0 {
				continue
			}
			for k := j; k <= cols; k++ {
				m[i][k] = mod(m[i][k]-factor*m[pivotRow][k], s.p)
			}
		}
		pivotCols = append(pivotCols, j)
		pivotRow++
	}

	// Inconsistent system: a zero row with nonzero rhs.
	for i := pivotRow; i < rows; i++ {
		if m[i][cols] != 0 {
			return nil, nil, false
		}
	}

	solution := make([]int64, cols)
	for i, col := range pivotCols {
		solution[col] = m[i][cols]
	}

	isPivot := make(map[int]bool, len(pivotCols))
	for _, col := range pivotCols {
		isPivot[col] = true
	}
	free := []int{}
	for j := 0; j < cols; j++ {
		if !isPivot[j] {
			free = append(free, j)
		}
	}

	return solution, free, true
}

// peel removes the inlier set from the pool by (index, value) identity.
func peel(pool, inliers []Point) []Point {
	inSet := make(map[Point]struct{}, len(inliers))
	for _, d := range inliers {
		inSet[d] = struct{}{}
	}
	next := make([]Point, 0, len(pool)-len(inliers))
	for _, d := range pool {
		if _, ok := inSet[d]; !ok {
			next = append(next, d)
		}
	}
	return next
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
