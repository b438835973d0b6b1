package lifter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/solver"
)

func TestNewRejectsNonPrime(t *testing.T) {
	l, err := New(10)
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidBase))
	assert.Nil(t, l)
}

func TestLiftInputValidation(t *testing.T) {
	l, err := New(7)
	require.NoError(t, err)

	assert.Nil(t, l.Lift(nil, nil, 5, 0.5))
	assert.Nil(t, l.Lift([]int64{1, 2}, []int64{1}, 5, 0.5))
}

func TestLiftSquareProgressesPastCoarseModel(t *testing.T) {
	l, err := New(7)
	require.NoError(t, err)

	// y = x^2: the classic vanishing-derivative case at x=0. The lift must
	// still make progress beyond the coarse model mod 7, because every
	// level correction is exactly zero.
	inputs := make([]int64, 10)
	outputs := make([]int64, 10)
	for x := int64(0); x < 10; x++ {
		inputs[x] = x
		outputs[x] = x * x
	}

	branches := l.Lift(inputs, outputs, 5, 0.5)
	require.Len(t, branches, 1)

	br := branches[0]
	assert.Equal(t, 2, br.Degree)
	assert.Equal(t, 5, br.Depth)
	assert.InDelta(t, 1.0, br.Consensus, 1e-9)
	for x := int64(0); x < 10; x++ {
		assert.Equal(t, x*x, br.Eval(x, 7), "x=%d", x)
	}
}

func TestLiftRecoversIntegerCoefficients(t *testing.T) {
	l, err := New(5)
	require.NoError(t, err)

	// y = 13x + 8 digit by digit: 8 = 3 + 1*5, 13 = 3 + 2*5.
	inputs := make([]int64, 12)
	outputs := make([]int64, 12)
	for x := int64(0); x < 12; x++ {
		inputs[x] = x
		outputs[x] = 13*x + 8
	}

	branches := l.Lift(inputs, outputs, 4, 0.5)
	require.Len(t, branches, 1)

	br := branches[0]
	assert.Equal(t, 1, br.Degree)
	assert.Equal(t, 4, br.Depth)
	assert.InDelta(t, 1.0, br.Consensus, 1e-9)
	assert.Equal(t, []int64{8, 13}, br.Coefficients)
}

func TestLiftForksAtSingularity(t *testing.T) {
	l, err := New(5)
	require.NoError(t, err)

	// Two populations agreeing mod 5 but diverging at the next digit.
	// Group A (residues 0..3) follows y = x exactly. Group B lives on the
	// single residue class 4, where one equation cannot pin down two
	// coefficients: the correction system is underdetermined and the lift
	// must fork over the free column.
	inputs := []int64{}
	outputs := []int64{}
	for _, x := range []int64{0, 1, 2, 3, 5, 6, 7, 8, 10, 11, 12, 13} {
		inputs = append(inputs, x)
		outputs = append(outputs, x)
	}
	for _, x := range []int64{4, 9, 14, 19} {
		inputs = append(inputs, x)
		outputs = append(outputs, x+15)
	}

	branches := l.Lift(inputs, outputs, 2, 0.2)
	require.Len(t, branches, 6, "dominant correction plus one fork per free-column residue")

	dominant := 0
	forked := 0
	for _, br := range branches {
		assert.Equal(t, 1, br.Degree)
		assert.Equal(t, 2, br.Depth)
		switch {
		case br.Consensus > 0.5:
			dominant++
			assert.InDelta(t, 0.75, br.Consensus, 1e-9)
			assert.Equal(t, []int64{0, 1}, br.Coefficients)
		default:
			forked++
			assert.InDelta(t, 0.25, br.Consensus, 1e-9)
			// Every forked branch must agree with group B mod 25.
			for _, x := range []int64{4, 9, 14, 19} {
				assert.Equal(t, (x+15)%25, br.Eval(x, 5), "x=%d coeffs=%v", x, br.Coefficients)
			}
		}
	}
	assert.Equal(t, 1, dominant)
	assert.Equal(t, 5, forked)
}

func TestLiftConsensusFloorFinalizesEarly(t *testing.T) {
	l, err := New(5)
	require.NoError(t, err)

	// First digit is exactly y = x, but the second digit is scattered so
	// no correction can hold a 0.95 consensus. The branch finalizes at
	// depth 1 rather than lifting garbage.
	secondDigit := []int64{2, 0, 3, 1, 4, 4, 1, 3, 0, 2}
	inputs := make([]int64, 10)
	outputs := make([]int64, 10)
	for x := int64(0); x < 10; x++ {
		inputs[x] = x
		outputs[x] = x%5 + 5*secondDigit[x]
	}

	branches := l.Lift(inputs, outputs, 5, 0.95)
	require.Len(t, branches, 1)

	br := branches[0]
	assert.Equal(t, 1, br.Depth)
	assert.InDelta(t, 1.0, br.Consensus, 1e-9)
	assert.Equal(t, []int64{0, 1}, br.Coefficients)
}

func TestLiftMaxDepthOneReturnsCoarseModel(t *testing.T) {
	l, err := New(7)
	require.NoError(t, err)

	inputs := []int64{0, 1, 2, 3, 4, 5}
	outputs := []int64{1, 3, 5, 7, 9, 11} // y = 2x + 1

	branches := l.Lift(inputs, outputs, 1, 0.5)
	require.Len(t, branches, 1)
	assert.Equal(t, 1, branches[0].Depth)
	assert.Equal(t, []int64{1, 2}, branches[0].Coefficients)
}

func TestLiftDeterministicWithSeededSolver(t *testing.T) {
	build := func() []Branch {
		s, err := solver.New(5, solver.WithSeed(9))
		require.NoError(t, err)
		l, err := New(5, WithSolver(s))
		require.NoError(t, err)

		inputs := []int64{}
		outputs := []int64{}
		for _, x := range []int64{0, 1, 2, 3, 5, 6, 7, 8, 10, 11, 12, 13} {
			inputs = append(inputs, x)
			outputs = append(outputs, x)
		}
		for _, x := range []int64{4, 9, 14, 19} {
			inputs = append(inputs, x)
			outputs = append(outputs, x+15)
		}
		return l.Lift(inputs, outputs, 3, 0.2)
	}

	first := build()
	second := build()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Coefficients, second[i].Coefficients)
		assert.Equal(t, first[i].Depth, second[i].Depth)
		assert.Equal(t, first[i].Consensus, second[i].Consensus)
	}
}

func TestModulus(t *testing.T) {
	l, err := New(5)
	require.NoError(t, err)

	assert.Equal(t, int64(1), l.Modulus(0))
	assert.Equal(t, int64(5), l.Modulus(1))
	assert.Equal(t, int64(125), l.Modulus(3))
}

func TestLiftDepthBoundedByBase(t *testing.T) {
	l, err := New(41)
	require.NoError(t, err)

	// 41^12 exceeds int64 while 41^11 does not, so a large base must stop
	// one digit short of the flat cap instead of wrapping the modulus.
	inputs := make([]int64, 10)
	outputs := make([]int64, 10)
	for x := int64(0); x < 10; x++ {
		inputs[x] = x
		outputs[x] = x
	}

	branches := l.Lift(inputs, outputs, 12, 0.9)
	require.Len(t, branches, 1)

	br := branches[0]
	assert.Equal(t, 11, br.Depth)
	assert.InDelta(t, 1.0, br.Consensus, 1e-9)
	assert.Equal(t, []int64{0, 1}, br.Coefficients)

	want := int64(1)
	for i := 0; i < 11; i++ {
		want *= 41
	}
	assert.Equal(t, want, l.Modulus(11))
	assert.Equal(t, want, l.Modulus(12), "modulus clamps at the last int64-safe depth")
	assert.Positive(t, l.Modulus(12))
	assert.Equal(t, int64(5), br.Eval(5, 41))
}
