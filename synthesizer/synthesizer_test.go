package synthesizer

import (
	"context"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semlattice/config"
	slerrors "github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/message"
	"github.com/c360/semlattice/metric"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	return a.Cmp(b) == 0
})

// testConfig keeps momentum at zero so walk addresses are exactly the raw
// association structure, and term counts below ransac min_size so no
// layer peeling perturbs them.
func testConfig(primes ...int64) *config.Config {
	cfg := config.Default()
	cfg.Primes = primes
	cfg.Momentum = 0
	cfg.Workers = 1
	return cfg
}

// hubBlock links Ada to Babbage and London; Faraday stands alone.
func hubBlock() *message.Block {
	return &message.Block{
		ID:    "blk-hub",
		Seq:   0,
		Terms: []string{"Ada", "Babbage", "London", "Faraday"},
		Assoc: [][]float64{
			{0, 2, 2, 0},
			{2, 0, 0, 0},
			{2, 0, 0, 0},
			{0, 0, 0, 0},
		},
	}
}

func pairBlock(id string, seq int, a, b string) *message.Block {
	return &message.Block{
		ID:    id,
		Seq:   seq,
		Terms: []string{a, b},
		Assoc: [][]float64{{0, 2}, {2, 0}},
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil, nil, nil)
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrMissingConfig))

	cfg := testConfig(4)
	_, err = New(cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidConfig))
}

func TestProcessBlockAssignsWalkAddresses(t *testing.T) {
	s, err := New(testConfig(5), nil, metric.NewMetrics())
	require.NoError(t, err)
	require.NoError(t, s.ProcessBlock(context.Background(), hubBlock()))

	result := s.Finalize()
	assert.Equal(t, 1, result.Blocks)
	assert.Equal(t, int64(5), result.Prime)

	// Ada is the hub: root class 1. Babbage and London extend it by one
	// digit; Faraday opens the next congruence class.
	want := map[string]*big.Int{
		"Ada":     big.NewInt(1),
		"Babbage": big.NewInt(6),
		"London":  big.NewInt(11),
		"Faraday": big.NewInt(2),
	}
	if diff := cmp.Diff(want, result.Coordinates, bigIntComparer); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"Ada", "Faraday"}, result.Roots)
	assert.Equal(t, []string{"Babbage", "London"}, result.Tree["Ada"])
	assert.Empty(t, result.Stitched, "single-prime run has nothing to stitch")
	assert.InDelta(t, 0.2, result.Complexity["Ada"], 1e-9)
}

func TestProcessBlockStitchesAcrossPrimes(t *testing.T) {
	s, err := New(testConfig(3, 5), nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.ProcessBlock(context.Background(), hubBlock()))

	result := s.Finalize()
	require.Empty(t, result.Unresolved)
	require.Len(t, result.Stitched, 4)

	// Every walk address reduces to its congruence class mod 3 and mod 5,
	// so the stitched coordinate mod 15 is the class itself.
	assert.Equal(t, int64(1), result.Stitched["Ada"].Int64())
	assert.Equal(t, int64(1), result.Stitched["Babbage"].Int64())
	assert.Equal(t, int64(2), result.Stitched["Faraday"].Int64())
	assert.InDelta(t, 2.0/15.0, result.Complexity["Faraday"], 1e-9)
}

func TestProcessBlockFeaturizesRawText(t *testing.T) {
	s, err := New(testConfig(5), nil, nil)
	require.NoError(t, err)

	block := &message.Block{
		ID:   "blk-raw",
		Seq:  0,
		Text: "Marie Curie studied radium with Pierre Curie. Marie Curie won the Nobel Prize.",
	}
	require.NoError(t, s.ProcessBlock(context.Background(), block))

	result := s.Finalize()
	assert.Equal(t, 1, result.Blocks)
	require.Len(t, result.Coordinates, 3)
	assert.Equal(t, int64(1), result.Coordinates["Marie Curie"].Int64(),
		"most connected term takes the first root class")
	assert.Contains(t, result.Coordinates, "Pierre Curie")
	assert.Contains(t, result.Coordinates, "Nobel Prize")
}

func TestProcessBlockSkipsTermlessText(t *testing.T) {
	s, err := New(testConfig(5), nil, nil)
	require.NoError(t, err)

	block := &message.Block{ID: "blk-flat", Text: "no capitals appear anywhere here."}
	require.NoError(t, s.ProcessBlock(context.Background(), block))

	result := s.Finalize()
	assert.Zero(t, result.Blocks)
	assert.Empty(t, result.Coordinates)
}

func TestProcessBlockRejectsInvalidInput(t *testing.T) {
	s, err := New(testConfig(5), nil, nil)
	require.NoError(t, err)

	err = s.ProcessBlock(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, slerrors.IsInvalid(err))

	err = s.ProcessBlock(context.Background(), &message.Block{Seq: 1})
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidData))
}

func TestOverlappingBlocksGlueIntoSections(t *testing.T) {
	s, err := New(testConfig(5), nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.ProcessBlock(ctx, pairBlock("blk-1", 0, "Ada", "Babbage")))
	require.NoError(t, s.ProcessBlock(ctx, pairBlock("blk-2", 1, "Curie", "Darwin")))
	// Shares Ada with the first section and glues into it.
	require.NoError(t, s.ProcessBlock(ctx, pairBlock("blk-3", 2, "Ada", "Curie")))

	result := s.Finalize()
	assert.Equal(t, 3, result.Blocks)
	assert.Equal(t, 2, result.Sections, "disjoint second block stays its own section")
	assert.Len(t, result.Coordinates, 3, "canonical lattice is the glued section")
	assert.Contains(t, result.Coordinates, "Ada")
	assert.Contains(t, result.Coordinates, "Babbage")
	assert.Contains(t, result.Coordinates, "Curie")
}
