// Package synthesizer orchestrates the streaming synthesis run: it
// consumes ordered text blocks, blends each block's association matrix
// into a momentum-decayed memory, solves a local manifold per configured
// prime, and consolidates the results into a global coordinate lattice
// through CRT stitching and sheaf gluing. Block processing is strictly
// sequential; only the independent per-prime solves of a single block
// run concurrently.
package synthesizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/semlattice/adelic"
	"github.com/c360/semlattice/config"
	"github.com/c360/semlattice/errors"
	"github.com/c360/semlattice/featurizer"
	"github.com/c360/semlattice/lifter"
	"github.com/c360/semlattice/message"
	"github.com/c360/semlattice/metric"
	"github.com/c360/semlattice/padic"
	"github.com/c360/semlattice/sheaf"
	"github.com/c360/semlattice/solver"
)

// Result is the outcome of a full run: the canonical coordinate lattice,
// the hierarchy derived from it, and the diagnostics accumulated along
// the way.
type Result struct {
	// Prime is the base of the canonical lattice, the first configured
	// prime.
	Prime int64

	// Coordinates and Depths form the canonical lattice: the largest
	// internally consistent section of the sheaf forest.
	Coordinates map[string]*big.Int
	Depths      map[string]int

	// Stitched holds the multi-prime CRT coordinates, keyed by term.
	// Empty for single-prime runs.
	Stitched map[string]*big.Int

	// Complexity is the per-term noise indicator K = |coord| / modulus.
	Complexity map[string]float64

	// Tree maps each parent term to its children; Roots are the terms
	// with no parent.
	Tree  map[string][]string
	Roots []string

	// RejectedLinks are the sheaf overlap conflicts seen across the run.
	RejectedLinks []sheaf.Mismatch

	// Unresolved lists terms excluded from the stitched lattice by CRT
	// failure.
	Unresolved []string

	Blocks   int
	Sections int
}

// Synthesizer is the streaming orchestrator. One instance owns one run's
// state; methods are not safe for concurrent use.
type Synthesizer struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	feat       *featurizer.Featurizer
	memory     *adjacencyMemory
	locals     []*localSolver
	scanner    *sheaf.Scanner
	integrator *adelic.Integrator

	stitched   map[string]*big.Int
	moduli     map[string]*big.Int
	unresolved map[string]string
	rejected   []sheaf.Mismatch
	blocks     int
}

// New creates a Synthesizer from a validated configuration. The metrics
// argument may be nil.
func New(cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*Synthesizer, error) {
	if cfg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Synthesizer", "New", "check config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Synthesizer{
		cfg:        cfg.Clone(),
		logger:     logger.With("component", "synthesizer"),
		metrics:    metrics,
		feat:       featurizer.New(),
		memory:     newAdjacencyMemory(cfg.Momentum),
		integrator: adelic.New(),
		stitched:   map[string]*big.Int{},
		moduli:     map[string]*big.Int{},
		unresolved: map[string]string{},
	}

	for _, p := range cfg.Primes {
		encoder, err := padic.New(p)
		if err != nil {
			return nil, err
		}
		sv, err := solver.New(p,
			solver.WithSeed(cfg.Seed),
			solver.WithTrialBudget(cfg.Ransac.TrialBudget))
		if err != nil {
			return nil, err
		}
		lf, err := lifter.New(p, lifter.WithSolver(sv))
		if err != nil {
			return nil, err
		}
		s.locals = append(s.locals, &localSolver{
			prime:        p,
			encoder:      encoder,
			solver:       sv,
			lifter:       lf,
			minSize:      cfg.Ransac.MinSize,
			minRatio:     cfg.Ransac.MinRatio,
			maxDepth:     cfg.Hensel.MaxDepth,
			minConsensus: cfg.Hensel.MinConsensus,
		})
	}

	scanner, err := sheaf.New(cfg.Primes[0])
	if err != nil {
		return nil, err
	}
	s.scanner = scanner
	return s, nil
}

// ProcessBlock folds one block into the run. Raw-text blocks are
// featurized first; blocks that yield no terms are counted and skipped.
func (s *Synthesizer) ProcessBlock(ctx context.Context, block *message.Block) error {
	start := time.Now()

	if block == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nil block", errors.ErrInvalidData),
			"Synthesizer", "ProcessBlock", "check block")
	}
	if err := block.Validate(); err != nil {
		s.recordBlock("invalid")
		return err
	}

	terms, assoc := block.Terms, block.Assoc
	if !block.HasFeatures() {
		feats := s.feat.Featurize(block.Text)
		terms, assoc = feats.Terms, feats.Assoc
	}
	if len(terms) == 0 {
		s.logger.Debug("block yielded no terms", "block", block.ID, "seq", block.Seq)
		s.recordBlock("empty")
		return nil
	}

	blended := s.memory.blend(terms, assoc)
	s.recordDuration("featurize", time.Since(start))

	solveStart := time.Now()
	manifolds, err := s.solveAllPrimes(ctx, terms, blended)
	if err != nil {
		s.recordBlock("failed")
		return err
	}
	s.recordDuration("solve", time.Since(solveStart))

	consolidateStart := time.Now()
	s.stitch(terms, manifolds)
	rejected := s.integrate(manifolds[0])
	s.recordDuration("consolidate", time.Since(consolidateStart))

	s.blocks++
	s.recordBlock("ok")
	s.recordDuration("block", time.Since(start))
	s.logger.Debug("block processed",
		"block", block.ID,
		"seq", block.Seq,
		"terms", len(terms),
		"layers", manifolds[0].layers,
		"rejections", rejected)
	return nil
}

// solveAllPrimes runs the per-prime local solves, in parallel up to the
// worker limit, and returns manifolds in configured prime order.
func (s *Synthesizer) solveAllPrimes(ctx context.Context, terms []string, blended [][]float64) ([]*localManifold, error) {
	manifolds := make([]*localManifold, len(s.locals))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, ls := range s.locals {
		i, ls := i, ls
		g.Go(func() error {
			manifolds[i] = ls.solve(terms, blended)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "Synthesizer", "solveAllPrimes", "solve block")
	}

	for _, m := range manifolds {
		if s.metrics != nil {
			s.metrics.RecordLayers(m.layers)
			for _, d := range m.liftDepths {
				s.metrics.RecordLiftDepth(d)
			}
		}
	}
	return manifolds, nil
}

// stitch combines per-prime coordinates term by term through CRT. Terms
// whose stitch fails are marked unresolved with the failure reason; a
// later block may still resolve them. Single-prime runs have nothing to
// stitch.
func (s *Synthesizer) stitch(terms []string, manifolds []*localManifold) {
	if len(manifolds) < adelic.MinModels {
		return
	}

	sorted := append([]string{}, terms...)
	sort.Strings(sorted)

	for _, term := range sorted {
		models := make([]adelic.LocalModel, 0, len(manifolds))
		for _, m := range manifolds {
			coord, ok := m.coords[term]
			if !ok {
				continue
			}
			depth := m.depths[term]
			if depth < 1 {
				depth = 1
			}
			modulus := int64(1)
			for i := 0; i < depth && modulus <= (int64(1)<<62)/m.prime; i++ {
				modulus *= m.prime
			}
			models = append(models, adelic.LocalModel{
				Modulus: modulus,
				Params:  []int64{((coord % modulus) + modulus) % modulus},
				Degree:  0,
			})
		}

		global, err := s.integrator.SolveCRT(models)
		if err != nil {
			reason := crtFailureReason(err)
			s.unresolved[term] = reason
			if s.metrics != nil {
				s.metrics.RecordCRTFailure(reason)
			}
			continue
		}
		delete(s.unresolved, term)
		s.stitched[term] = global.Params[0]
		s.moduli[term] = global.Modulus
	}
}

// integrate folds the primary prime's manifold into the sheaf forest and
// accumulates rejected links.
func (s *Synthesizer) integrate(local *localManifold) int {
	m := sheaf.NewManifold(local.prime)
	for term, coord := range local.coords {
		m.Set(term, big.NewInt(coord), local.depths[term])
	}

	_, rejected := s.scanner.Integrate(m)
	s.rejected = append(s.rejected, rejected...)
	if s.metrics != nil {
		for range rejected {
			s.metrics.RecordSheafRejection()
		}
	}
	return len(rejected)
}

// Finalize closes the run: it selects the canonical lattice, builds the
// hierarchy tree, and packages diagnostics. The synthesizer may keep
// processing blocks afterwards; Finalize snapshots the state it sees.
func (s *Synthesizer) Finalize() *Result {
	result := &Result{
		Prime:         s.cfg.Primes[0],
		Coordinates:   map[string]*big.Int{},
		Depths:        map[string]int{},
		Stitched:      map[string]*big.Int{},
		Complexity:    map[string]float64{},
		Tree:          map[string][]string{},
		Roots:         []string{},
		RejectedLinks: append([]sheaf.Mismatch{}, s.rejected...),
		Blocks:        s.blocks,
		Sections:      len(s.scanner.Sections()),
	}

	canonical := largestSection(s.scanner.Sections())
	if canonical != nil {
		for term, coord := range canonical.Coordinates {
			result.Coordinates[term] = coord
			result.Depths[term] = canonical.Depths[term]
		}
	}

	for term, coord := range s.stitched {
		result.Stitched[term] = coord
		result.Complexity[term] = adelic.Complexity(coord, s.moduli[term])
	}
	if len(s.stitched) == 0 {
		// Single-prime run: complexity against the canonical lattice.
		p := big.NewInt(result.Prime)
		for term, coord := range result.Coordinates {
			depth := result.Depths[term]
			if depth < 1 {
				depth = 1
			}
			modulus := new(big.Int).Exp(p, big.NewInt(int64(depth)), nil)
			result.Complexity[term] = adelic.Complexity(coord, modulus)
		}
	}

	for term := range s.unresolved {
		result.Unresolved = append(result.Unresolved, term)
	}
	sort.Strings(result.Unresolved)

	encoder, err := padic.New(result.Prime)
	if err == nil {
		result.Tree, result.Roots = buildTree(encoder, result.Coordinates)
	}

	if s.metrics != nil {
		s.metrics.RecordTermsResolved(len(result.Coordinates))
	}
	s.logger.Info("run finalized",
		"blocks", result.Blocks,
		"terms", len(result.Coordinates),
		"sections", result.Sections,
		"roots", len(result.Roots),
		"rejected_links", len(result.RejectedLinks),
		"unresolved", len(result.Unresolved))
	return result
}

// largestSection picks the section holding the most terms; earlier
// sections win ties, so the choice is stable for a fixed block order.
func largestSection(sections []*sheaf.Manifold) *sheaf.Manifold {
	var best *sheaf.Manifold
	for _, section := range sections {
		if best == nil || len(section.Coordinates) > len(best.Coordinates) {
			best = section
		}
	}
	return best
}

// crtFailureReason maps a stitch error to its metric label.
func crtFailureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrInsufficientModels):
		return "insufficient_models"
	case errors.Is(err, errors.ErrNonCoprimeModuli):
		return "non_coprime"
	case errors.Is(err, errors.ErrDegreeMismatch):
		return "degree_mismatch"
	default:
		return "failed"
	}
}

func (s *Synthesizer) recordBlock(status string) {
	if s.metrics != nil {
		s.metrics.RecordBlockProcessed(status)
	}
}

func (s *Synthesizer) recordDuration(stage string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordProcessingDuration(stage, d)
	}
}
