// Package adelic stitches independently solved per-prime models into one
// global model over the product modulus via the Chinese Remainder Theorem.
// Stitching failures are per-term data, not run-level errors: the caller
// marks the affected term unresolved and keeps going.
package adelic

import (
	"math/big"

	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/lifter"
)

const (
	// MinModels is the fewest local models CRT stitching accepts. A single
	// residue carries no cross-prime information worth combining.
	MinModels = 2

	// liftDepth bounds the pre-stitch lift of each local model.
	liftDepth = 3

	// liftConsensus is the strict floor for pre-stitch lifting. Anything
	// looser lifts noise into the composite modulus.
	liftConsensus = 0.9
)

// LocalModel is one per-prime solve: ascending coefficients valid modulo
// Modulus, which is a prime or a lifted prime power.
type LocalModel struct {
	Modulus int64
	Params  []int64
	Degree  int
}

// GlobalModel is the stitched result. Each Params[i] reduces to the
// corresponding local coefficient under every contributing modulus.
type GlobalModel struct {
	Modulus *big.Int
	Params  []*big.Int
	Degree  int
}

// Reduce returns the global coefficients modulo m, for checking that a
// stitched model still agrees with one of its local inputs.
func (g *GlobalModel) Reduce(m int64) []int64 {
	mod := big.NewInt(m)
	out := make([]int64, len(g.Params))
	for i, p := range g.Params {
		out[i] = new(big.Int).Mod(p, mod).Int64()
	}
	return out
}

// Integrator combines local models across coprime moduli.
type Integrator struct{}

// New creates an Integrator.
func New() *Integrator {
	return &Integrator{}
}

// SolveCRT stitches local models into a global model over the product of
// their moduli. Degree 0 and 1 models mix freely (a constant is an affine
// model with zero slope); degree 2 and above require an exact degree match
// across all models. Every returned error satisfies errors.IsCRTFailure.
func (it *Integrator) SolveCRT(models []LocalModel) (*GlobalModel, error) {
	if len(models) < MinModels {
		return nil, errors.WrapInvalid(errors.ErrInsufficientModels, "Integrator", "SolveCRT", "validate models")
	}

	normalized, degree, err := normalizeDegrees(models)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			if gcd(normalized[i].Modulus, normalized[j].Modulus) != 1 {
				return nil, errors.WrapInvalid(errors.ErrNonCoprimeModuli, "Integrator", "SolveCRT", "validate moduli")
			}
		}
	}

	modulus := big.NewInt(1)
	for _, m := range normalized {
		modulus.Mul(modulus, big.NewInt(m.Modulus))
	}

	params := make([]*big.Int, degree+1)
	for i := range params {
		residues := make([]int64, len(normalized))
		moduli := make([]int64, len(normalized))
		for j, m := range normalized {
			residues[j] = m.Params[i]
			moduli[j] = m.Modulus
		}
		v, ok := combineResidues(residues, moduli, modulus)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrCRTFailed, "Integrator", "SolveCRT", "combine residues")
		}
		params[i] = v
	}

	return &GlobalModel{Modulus: modulus, Params: params, Degree: degree}, nil
}

// SolveCRTLifted deepens each local model by Hensel lifting against the
// shared observations before stitching, so two shallow primes can still
// synthesize a high-precision composite. A model whose lift does not
// converge cleanly is stitched at its original precision.
func (it *Integrator) SolveCRTLifted(models []LocalModel, inputs, outputs []int64) (*GlobalModel, error) {
	lifted := make([]LocalModel, 0, len(models))
	for _, m := range models {
		lifted = append(lifted, it.liftModel(m, inputs, outputs))
	}
	return it.SolveCRT(lifted)
}

func (it *Integrator) liftModel(m LocalModel, inputs, outputs []int64) LocalModel {
	l, err := lifter.New(m.Modulus)
	if err != nil {
		// Already a lifted power, or otherwise not a prime base; stitch
		// the model as supplied.
		return m
	}

	branches := l.Lift(inputs, outputs, liftDepth, liftConsensus)
	if len(branches) != 1 {
		return m
	}
	br := branches[0]
	if br.Depth <= 1 || br.Degree != m.Degree {
		return m
	}
	return LocalModel{
		Modulus: l.Modulus(br.Depth),
		Params:  br.Coefficients,
		Degree:  br.Degree,
	}
}

// normalizeDegrees reconciles model degrees: constants pad to affine when
// mixed with degree-1 models, while higher degrees must match exactly.
func normalizeDegrees(models []LocalModel) ([]LocalModel, int, error) {
	maxDegree := 0
	minDegree := models[0].Degree
	for _, m := range models {
		if len(m.Params) != m.Degree+1 {
			return nil, 0, errors.WrapInvalid(errors.ErrDegreeMismatch, "Integrator", "SolveCRT", "validate coefficient count")
		}
		if m.Degree > maxDegree {
			maxDegree = m.Degree
		}
		if m.Degree < minDegree {
			minDegree = m.Degree
		}
	}

	if maxDegree > 1 && minDegree != maxDegree {
		return nil, 0, errors.WrapInvalid(errors.ErrDegreeMismatch, "Integrator", "SolveCRT", "reconcile degrees")
	}

	normalized := make([]LocalModel, len(models))
	for i, m := range models {
		params := make([]int64, maxDegree+1)
		copy(params, m.Params)
		normalized[i] = LocalModel{Modulus: m.Modulus, Params: params, Degree: maxDegree}
	}
	return normalized, maxDegree, nil
}

// combineResidues is the CRT kernel: the unique value mod M agreeing with
// every residue under its modulus.
func combineResidues(residues, moduli []int64, modulus *big.Int) (*big.Int, bool) {
	sum := new(big.Int)
	for i := range residues {
		n := big.NewInt(moduli[i])
		q := new(big.Int).Div(modulus, n)
		inv := new(big.Int).ModInverse(new(big.Int).Mod(q, n), n)
		if inv == nil {
			return nil, false
		}
		term := new(big.Int).Mul(big.NewInt(residues[i]), q)
		term.Mul(term, inv)
		sum.Add(sum, term)
	}
	return sum.Mod(sum, modulus), true
}

// Complexity is the scale of a stitched value relative to the precision
// that determined it: K = |value| / modulus. Low K marks a coordinate that
// is small for its modulus, which downstream ranking treats as a simpler,
// more canonical concept; K near 1 flags noise.
func Complexity(value, modulus *big.Int) float64 {
	if modulus.Sign() == 0 {
		return 0.0
	}
	v := new(big.Float).SetInt(new(big.Int).Abs(value))
	m := new(big.Float).SetInt(modulus)
	k, _ := new(big.Float).Quo(v, m).Float64()
	return k
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
