// Package semlattice infers a hierarchical, ultrametric coordinate space
// over terms drawn from a text stream. Instead of geometric embeddings it
// uses modular and p-adic arithmetic: each term receives an integer address
// whose algebraic structure (divisibility, shared prime-power prefixes)
// encodes conceptual proximity and ancestry.
//
// # Architecture
//
// The pipeline is a chain of small packages, leaves first:
//
//	┌─────────────────────────────────────┐
//	│       synthesizer.Synthesizer       │  Streaming orchestration,
//	│  (blocks in, global lattice out)    │  momentum memory, hierarchy
//	└─────────────────────────────────────┘
//	           ↓ consolidates via
//	┌──────────────────┬──────────────────┐
//	│ adelic.Integrator│  sheaf.Scanner   │  CRT stitching of per-prime
//	│  (CRT stitcher)  │ (overlap gluing) │  solves, window verification
//	└──────────────────┴──────────────────┘
//	           ↑ local manifolds from
//	┌──────────────────┬──────────────────┐
//	│  solver.Solver   │  lifter.Lifter   │  RANSAC residue layers,
//	│ (modular RANSAC) │ (Hensel lifting) │  precision deepening
//	└──────────────────┴──────────────────┘
//	           ↑ arithmetic from
//	┌─────────────────────────────────────┐
//	│           padic.Encoder             │  Base-p encoding, valuation,
//	│                                     │  ultrametric distance
//	└─────────────────────────────────────┘
//
// Text tokenization and co-occurrence extraction live in the featurizer
// package; the core packages only ever see term vocabularies, frequency
// counts and association matrices.
//
// Block processing is strictly sequential: momentum decay and sheaf
// overlap verification are order dependent. Within one block, per-prime
// solves are independent read-only computations and run in parallel.
package semlattice
