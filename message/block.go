// Package message defines the wire types exchanged between block sources
// and the synthesis pipeline.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/c360/semlattice/errors"
)

// Block is one ordered window of a streamed document. A source supplies
// either raw text for the featurizer, or pre-featurized terms with their
// counts and association matrix.
type Block struct {
	ID  string `json:"id,omitempty"`
	Seq int    `json:"seq"`

	// Raw form.
	Text string `json:"text,omitempty"`

	// Featurized form.
	Terms  []string       `json:"terms,omitempty"`
	Counts map[string]int `json:"counts,omitempty"`
	Assoc  [][]float64    `json:"assoc,omitempty"`
}

// HasFeatures reports whether the block arrived pre-featurized.
func (b *Block) HasFeatures() bool {
	return len(b.Terms) > 0
}

// Validate checks structural consistency. A block needs text or features,
// and a supplied association matrix must be square over the terms.
func (b *Block) Validate() error {
	if b.Text == "" && len(b.Terms) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: block carries neither text nor terms", errors.ErrInvalidData),
			"Block", "Validate", "check payload")
	}
	if len(b.Terms) > 0 {
		if len(b.Assoc) != len(b.Terms) {
			return errors.WrapInvalid(
				fmt.Errorf("%w: association matrix has %d rows for %d terms",
					errors.ErrInvalidData, len(b.Assoc), len(b.Terms)),
				"Block", "Validate", "check association matrix")
		}
		for i, row := range b.Assoc {
			if len(row) != len(b.Terms) {
				return errors.WrapInvalid(
					fmt.Errorf("%w: association row %d has %d columns for %d terms",
						errors.ErrInvalidData, i, len(row), len(b.Terms)),
					"Block", "Validate", "check association matrix")
			}
		}
	}
	return nil
}

// ParseBlock decodes and validates a JSON block payload, assigning an ID
// when the source did not.
func ParseBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Block", "ParseBlock", "decode payload")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return &b, nil
}

// Encode serializes the block for publishing.
func (b *Block) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Block", "Encode", "marshal payload")
	}
	return data, nil
}
