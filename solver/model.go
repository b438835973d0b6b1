package solver

// ModelKind discriminates the tagged model variant. The original
// experimental records carried version-specific optional fields; the fixed
// variant set here prevents silent schema drift between solver revisions.
type ModelKind int

const (
	// KindAffine is y = Slope*x + Intercept (mod p). Constant models are
	// affine with Slope == 0.
	KindAffine ModelKind = iota
	// KindPolynomial is y = sum(Coeffs[i] * x^i) (mod p) with Degree >= 2.
	KindPolynomial
)

// String returns the string representation of ModelKind
func (k ModelKind) String() string {
	switch k {
	case KindAffine:
		return "affine"
	case KindPolynomial:
		return "polynomial"
	default:
		return "unknown"
	}
}

// Model is a residue relationship fit modulo a prime.
type Model struct {
	Kind ModelKind

	// Affine fields (valid when Kind == KindAffine)
	Slope     int64
	Intercept int64

	// Polynomial fields (valid when Kind == KindPolynomial).
	// Coeffs[i] is the coefficient of x^i.
	Coeffs []int64

	// Degree of the fitted relationship (0 or 1 for affine).
	Degree int
}

// newModel builds the tagged variant from ascending coefficients.
func newModel(coeffs []int64, degree int) Model {
	if degree <= 1 {
		m := Model{Kind: KindAffine, Degree: degree}
		if len(coeffs) > 0 {
			m.Intercept = coeffs[0]
		}
		if len(coeffs) > 1 {
			m.Slope = coeffs[1]
		}
		return m
	}
	c := make([]int64, len(coeffs))
	copy(c, coeffs)
	return Model{Kind: KindPolynomial, Coeffs: c, Degree: degree}
}

// Coefficients returns the model's ascending coefficient slice regardless
// of variant: index i holds the coefficient of x^i.
func (m Model) Coefficients() []int64 {
	if m.Kind == KindAffine {
		return []int64{m.Intercept, m.Slope}
	}
	c := make([]int64, len(m.Coeffs))
	copy(c, m.Coeffs)
	return c
}

// Eval evaluates the model at x modulo p, always returning a value in
// [0, p).
func (m Model) Eval(x, p int64) int64 {
	return evalPoly(m.Coefficients(), x, p)
}

// EvalInt evaluates the model at x over the plain integers, without
// reduction. Residual magnitudes for Newton-polygon profiling need the
// unreduced prediction.
func (m Model) EvalInt(x int64) int64 {
	coeffs := m.Coefficients()
	result := int64(0)
	pow := int64(1)
	for _, c := range coeffs {
		result += c * pow
		pow *= x
	}
	return result
}

func evalPoly(coeffs []int64, x, p int64) int64 {
	result := int64(0)
	pow := int64(1)
	for _, c := range coeffs {
		result = mod(result+mod(c*pow, p), p)
		pow = mod(pow*x, p)
	}
	return result
}

// mod returns the canonical non-negative residue of a modulo p.
func mod(a, p int64) int64 {
	r := a % p
	if r < 0 {
		r += p
	}
	return r
}

// modPow computes base^exp mod p by square-and-multiply.
func modPow(base, exp, p int64) int64 {
	result := int64(1)
	base = mod(base, p)
	for exp > 0 {
		if exp&1 == 1 {
			result = mod(result*base, p)
		}
		base = mod(base*base, p)
		exp >>= 1
	}
	return result
}

// modInverse computes the multiplicative inverse of a mod prime p via
// Fermat's little theorem. Returns false when a == 0 mod p.
func modInverse(a, p int64) (int64, bool) {
	a = mod(a, p)
	if a == 0 {
		return 0, false
	}
	return modPow(a, p-2, p), true
}
