package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	slerrors "github.com/c360/semlattice/errors"
)

func TestParseBlockRawText(t *testing.T) {
	b, err := ParseBlock([]byte(`{"seq": 3, "text": "Kepler studied Mars."}`))
	require.NoError(t, err)

	assert.Equal(t, 3, b.Seq)
	assert.Equal(t, "Kepler studied Mars.", b.Text)
	assert.False(t, b.HasFeatures())
	assert.NotEmpty(t, b.ID, "missing ID gets assigned")
}

func TestParseBlockFeaturized(t *testing.T) {
	payload := `{
		"id": "blk-1",
		"seq": 0,
		"terms": ["Kepler", "Mars"],
		"counts": {"Kepler": 2, "Mars": 1},
		"assoc": [[0, 1], [1, 0]]
	}`
	b, err := ParseBlock([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "blk-1", b.ID)
	assert.True(t, b.HasFeatures())
	assert.Equal(t, []string{"Kepler", "Mars"}, b.Terms)
	assert.Equal(t, 1.0, b.Assoc[0][1])
}

func TestParseBlockRejectsMalformed(t *testing.T) {
	_, err := ParseBlock([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrParsingFailed))
	assert.True(t, slerrors.IsInvalid(err))
}

func TestValidateRejectsEmptyBlock(t *testing.T) {
	b := &Block{Seq: 1}
	err := b.Validate()
	require.Error(t, err)
	assert.True(t, slerrors.Is(err, slerrors.ErrInvalidData))
}

func TestValidateRejectsRaggedMatrix(t *testing.T) {
	b := &Block{
		Terms: []string{"A", "B"},
		Assoc: [][]float64{{0, 1}},
	}
	require.Error(t, b.Validate())

	b.Assoc = [][]float64{{0, 1}, {1}}
	require.Error(t, b.Validate())

	b.Assoc = [][]float64{{0, 1}, {1, 0}}
	require.NoError(t, b.Validate())
}

func TestEncodeRoundTrip(t *testing.T) {
	b := &Block{ID: "blk-9", Seq: 9, Text: "Ada met Babbage."}
	data, err := b.Encode()
	require.NoError(t, err)

	parsed, err := ParseBlock(data)
	require.NoError(t, err)
	assert.Equal(t, b.ID, parsed.ID)
	assert.Equal(t, b.Seq, parsed.Seq)
	assert.Equal(t, b.Text, parsed.Text)
}
