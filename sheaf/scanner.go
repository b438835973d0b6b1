// Package sheaf verifies that coordinate assignments fit on overlapping
// windows agree before they are merged. Windows that disagree stay
// separate sections; the result of a stream is a forest of internally
// consistent sub-lattices, never a forced inconsistent merge.
package sheaf

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/padic"
)

// Manifold is one locally consistent coordinate assignment: the terms a
// window resolved, their p-adic addresses, and the lift depth each address
// was established at.
type Manifold struct {
	ID          string
	Prime       int64
	Coordinates map[string]*big.Int
	Depths      map[string]int
}

// NewManifold creates an empty manifold for the given prime.
func NewManifold(prime int64) *Manifold {
	return &Manifold{
		ID:          uuid.NewString(),
		Prime:       prime,
		Coordinates: map[string]*big.Int{},
		Depths:      map[string]int{},
	}
}

// Set records a term's coordinate and depth.
func (m *Manifold) Set(term string, coordinate *big.Int, depth int) {
	m.Coordinates[term] = coordinate
	m.Depths[term] = depth
}

// Mismatch is one overlap term the two manifolds disagree on.
type Mismatch struct {
	Term   string
	DepthA int
	DepthB int
}

// Scanner verifies and glues manifolds for a fixed prime.
type Scanner struct {
	p       int64
	encoder *padic.Encoder

	// sections is the forest of glued manifolds accumulated by Integrate.
	sections []*Manifold
}

// New creates a Scanner for prime p. Fails fast when p is not prime.
func New(p int64) (*Scanner, error) {
	encoder, err := padic.New(p)
	if err != nil {
		return nil, errors.Wrap(err, "Scanner", "New", "validate prime")
	}
	return &Scanner{p: p, encoder: encoder}, nil
}

// VerifyOverlap checks whether two manifolds agree on the given overlap
// terms. Terms absent from either manifold are skipped; an empty effective
// overlap is vacuously compatible. Compatible is true iff the mismatch
// list is empty.
func (s *Scanner) VerifyOverlap(a, b *Manifold, overlap []string) (bool, []Mismatch) {
	mismatches := []Mismatch{}
	for _, term := range overlap {
		if _, ok := a.Coordinates[term]; !ok {
			continue
		}
		if _, ok := b.Coordinates[term]; !ok {
			continue
		}
		va := s.depthOf(a, term)
		vb := s.depthOf(b, term)
		if va != vb {
			mismatches = append(mismatches, Mismatch{Term: term, DepthA: va, DepthB: vb})
		}
	}
	return len(mismatches) == 0, mismatches
}

// Glue merges two manifolds that agree on the given overlap. The result
// is the union of both coordinate maps; overlapping terms keep their
// (necessarily agreeing) established coordinate. Incompatible manifolds
// are not merged and the error satisfies errors.ErrIncompatibleOverlap.
func (s *Scanner) Glue(a, b *Manifold, overlap []string) (*Manifold, error) {
	compatible, _ := s.VerifyOverlap(a, b, overlap)
	if !compatible {
		return nil, errors.WrapInvalid(errors.ErrIncompatibleOverlap, "Scanner", "Glue", "verify overlap")
	}

	glued := NewManifold(s.p)
	for term, c := range a.Coordinates {
		glued.Set(term, c, s.depthOf(a, term))
	}
	for term, c := range b.Coordinates {
		if _, ok := glued.Coordinates[term]; ok {
			continue
		}
		glued.Set(term, c, s.depthOf(b, term))
	}
	return glued, nil
}

// Integrate folds a manifold into the forest: it is glued into the first
// existing section it is compatible with, or locked as a new section. The
// returned mismatches are the rejections collected against incompatible
// sections, for diagnostics.
func (s *Scanner) Integrate(m *Manifold) (glued bool, rejected []Mismatch) {
	rejected = []Mismatch{}
	for i, section := range s.sections {
		overlap := sharedTerms(section, m)
		if len(overlap) == 0 {
			continue
		}
		compatible, mismatches := s.VerifyOverlap(section, m, overlap)
		if !compatible {
			rejected = append(rejected, mismatches...)
			continue
		}
		merged, err := s.Glue(section, m, overlap)
		if err != nil {
			continue
		}
		s.sections[i] = merged
		return true, rejected
	}
	s.sections = append(s.sections, m)
	return false, rejected
}

// Sections returns the current forest of locked sections.
func (s *Scanner) Sections() []*Manifold {
	return s.sections
}

// depthOf resolves a term's depth: the recorded lift depth when present,
// the coordinate's valuation otherwise.
func (s *Scanner) depthOf(m *Manifold, term string) int {
	if d, ok := m.Depths[term]; ok {
		return d
	}
	return s.encoder.Valuation(m.Coordinates[term])
}

func sharedTerms(a, b *Manifold) []string {
	shared := []string{}
	for term := range b.Coordinates {
		if _, ok := a.Coordinates[term]; ok {
			shared = append(shared, term)
		}
	}
	return shared
}
