package sheaf

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/c360/semlattice/errors"
)

func TestNewRejectsNonPrime(t *testing.T) {
	s, err := New(10)
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidBase))
	assert.Nil(t, s)
}

func TestVerifyOverlapCompatibleAndGlue(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	a := NewManifold(5)
	a.Set("A", big.NewInt(1), 0)
	a.Set("B", big.NewInt(5), 1)

	b := NewManifold(5)
	b.Set("B", big.NewInt(5), 1)
	b.Set("C", big.NewInt(25), 2)

	compatible, mismatches := s.VerifyOverlap(a, b, []string{"B"})
	assert.True(t, compatible)
	assert.Empty(t, mismatches)

	glued, err := s.Glue(a, b, []string{"B"})
	require.NoError(t, err)
	assert.Len(t, glued.Coordinates, 3)
	assert.Equal(t, int64(25), glued.Coordinates["C"].Int64())
	assert.Equal(t, 1, glued.Depths["B"])
}

func TestVerifyOverlapMismatch(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	a := NewManifold(5)
	a.Set("B", big.NewInt(5), 1)

	b := NewManifold(5)
	b.Set("B", big.NewInt(25), 2)

	compatible, mismatches := s.VerifyOverlap(a, b, []string{"B"})
	assert.False(t, compatible)
	require.Len(t, mismatches, 1)
	assert.Equal(t, Mismatch{Term: "B", DepthA: 1, DepthB: 2}, mismatches[0])

	_, err = s.Glue(a, b, []string{"B"})
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrIncompatibleOverlap))
}

func TestVerifyOverlapDisjointIsVacuouslyCompatible(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	a := NewManifold(5)
	a.Set("A", big.NewInt(1), 0)

	b := NewManifold(5)
	b.Set("Z", big.NewInt(5), 1)

	// Empty overlap list.
	compatible, mismatches := s.VerifyOverlap(a, b, nil)
	assert.True(t, compatible)
	assert.Empty(t, mismatches)

	// Overlap terms missing from one side are skipped.
	compatible, mismatches = s.VerifyOverlap(a, b, []string{"A", "Z", "Q"})
	assert.True(t, compatible)
	assert.Empty(t, mismatches)
}

func TestDepthFallsBackToValuation(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	// No recorded depths: valuations 25 -> 2 on both sides.
	a := &Manifold{Prime: 5, Coordinates: map[string]*big.Int{"B": big.NewInt(25)}, Depths: map[string]int{}}
	b := &Manifold{Prime: 5, Coordinates: map[string]*big.Int{"B": big.NewInt(75)}, Depths: map[string]int{}}

	compatible, _ := s.VerifyOverlap(a, b, []string{"B"})
	assert.True(t, compatible)

	// 125 -> 3 disagrees with 2.
	c := &Manifold{Prime: 5, Coordinates: map[string]*big.Int{"B": big.NewInt(125)}, Depths: map[string]int{}}
	compatible, mismatches := s.VerifyOverlap(a, c, []string{"B"})
	assert.False(t, compatible)
	require.Len(t, mismatches, 1)
	assert.Equal(t, 2, mismatches[0].DepthA)
	assert.Equal(t, 3, mismatches[0].DepthB)
}

func TestIntegrateBuildsForest(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	first := NewManifold(5)
	first.Set("A", big.NewInt(1), 0)
	first.Set("B", big.NewInt(5), 1)

	glued, rejected := s.Integrate(first)
	assert.False(t, glued)
	assert.Empty(t, rejected)
	assert.Len(t, s.Sections(), 1)

	// Compatible window extends the existing section.
	second := NewManifold(5)
	second.Set("B", big.NewInt(5), 1)
	second.Set("C", big.NewInt(25), 2)

	glued, rejected = s.Integrate(second)
	assert.True(t, glued)
	assert.Empty(t, rejected)
	require.Len(t, s.Sections(), 1)
	assert.Len(t, s.Sections()[0].Coordinates, 3)

	// Conflicting window stays a separate section and reports the link.
	third := NewManifold(5)
	third.Set("B", big.NewInt(5), 2)
	third.Set("D", big.NewInt(3), 0)

	glued, rejected = s.Integrate(third)
	assert.False(t, glued)
	require.Len(t, rejected, 1)
	assert.Equal(t, "B", rejected[0].Term)
	assert.Len(t, s.Sections(), 2)

	// A window disjoint from every section opens a new one.
	fourth := NewManifold(5)
	fourth.Set("E", big.NewInt(7), 0)

	glued, rejected = s.Integrate(fourth)
	assert.False(t, glued)
	assert.Empty(t, rejected)
	assert.Len(t, s.Sections(), 3)
}
