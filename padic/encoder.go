// Package padic provides base-p integer encoding and the ultrametric
// geometry it induces: digit encode/decode, p-adic valuation, and the
// distance d(a,b) = p^(-v_p(a-b)). All functions are pure; coordinates
// are arbitrary-precision math/big integers.
package padic

import (
	"fmt"
	"math"
	"math/big"

	"github.com/c360/semlattice/errors"
)

// ValuationInfinite is the sentinel valuation of zero: every power of p
// divides 0, so v_p(0) is unbounded.
const ValuationInfinite = math.MaxInt32

// Encoder maps digit sequences to base-p integers and back, and exposes
// the p-adic valuation and ultrametric distance for its prime base.
type Encoder struct {
	p    int64
	bigP *big.Int
}

// New creates an Encoder for prime base p. Construction fails fast with a
// fatal configuration error when p is not prime; no partial state is
// created.
func New(p int64) (*Encoder, error) {
	if !IsPrime(p) {
		return nil, errors.WrapFatal(
			fmt.Errorf("base %d: %w", p, errors.ErrInvalidBase),
			"Encoder", "New", "validate base")
	}
	return &Encoder{p: p, bigP: big.NewInt(p)}, nil
}

// Base returns the prime base p.
func (e *Encoder) Base() int64 {
	return e.p
}

// IsPrime reports whether n is prime by trial division. Bases in this
// system are small (single machine words), so trial division is enough.
func IsPrime(n int64) bool {
	if n < 2 {
		return false
	}
	for i := int64(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// Encode maps digits [r_0, r_1, ...] with each r_i in [0,p) to the
// integer sum(r_i * p^i). It fails with an invalid-input error when any
// digit is negative or >= p.
func (e *Encoder) Encode(digits []int64) (*big.Int, error) {
	value := new(big.Int)
	power := big.NewInt(1)
	for i, r := range digits {
		if r < 0 || r >= e.p {
			return nil, errors.WrapInvalid(
				fmt.Errorf("digit %d at position %d exceeds base %d: %w", r, i, e.p, errors.ErrDigitRange),
				"Encoder", "Encode", "check digit range")
		}
		term := new(big.Int).Mul(big.NewInt(r), power)
		value.Add(value, term)
		power = new(big.Int).Mul(power, e.bigP)
	}
	return value, nil
}

// Decode inverts Encode for a fixed digit count, producing exactly length
// digits via repeated divmod by p. Values wider than length digits are
// truncated; callers choose length from the precision they lifted to.
func (e *Encoder) Decode(value *big.Int, length int) []int64 {
	digits := make([]int64, length)
	v := new(big.Int).Abs(value)
	rem := new(big.Int)
	for i := 0; i < length; i++ {
		v.QuoRem(v, e.bigP, rem)
		digits[i] = rem.Int64()
	}
	return digits
}

// Valuation returns v_p(n), the exponent of the highest power of p
// dividing n. Zero maps to ValuationInfinite.
func (e *Encoder) Valuation(n *big.Int) int {
	if n.Sign() == 0 {
		return ValuationInfinite
	}
	v := 0
	abs := new(big.Int).Abs(n)
	rem := new(big.Int)
	q := new(big.Int)
	for {
		q.QuoRem(abs, e.bigP, rem)
		if rem.Sign() != 0 {
			return v
		}
		abs.Set(q)
		v++
	}
}

// ValuationInt64 is Valuation for machine-word integers, used on the hot
// path of per-block solving where coordinates have not yet left int64
// range.
func (e *Encoder) ValuationInt64(n int64) int {
	if n == 0 {
		return ValuationInfinite
	}
	if n < 0 {
		n = -n
	}
	v := 0
	for n%e.p == 0 {
		n /= e.p
		v++
	}
	return v
}

// Distance returns the ultrametric distance p^(-v_p(a-b)), and 0 when
// a == b. It satisfies the strong triangle inequality
// d(a,c) <= max(d(a,b), d(b,c)).
func (e *Encoder) Distance(a, b *big.Int) float64 {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() == 0 {
		return 0.0
	}
	return math.Pow(float64(e.p), -float64(e.Valuation(diff)))
}
