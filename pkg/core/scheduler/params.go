// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	. "github.com/gomlx/exceptions"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

// LaunchParams carries the statically known launch dimensions. Only the block
// dimensions declared static by the ReductionParams flags are meaningful.
type LaunchParams struct {
	BlockDimX int64
	BlockDimY int64
}

// ReductionParams is the scheduling decision record produced by the upstream
// heuristics and consumed, read-only, by this package. It enumerates per axis
// class (iteration axis, inner reduction axis, outer reduction axis) which
// hardware dimensions to use, the unroll/vectorization factors and the
// persistence regime.
//
// Axis addressing is relative: position 0 is the iteration axis when present,
// the reduction axes follow. In 3D mode there are two reduction axes (outer,
// inner); in 1D mode only the inner one.
type ReductionParams struct {
	// FastestDim is whether the inner reduction runs over the fastest
	// (contiguous) dimension.
	FastestDim bool

	// Persistent keeps the reduction accumulator state resident in fast
	// memory for the whole reduction instead of recomputing it per tile.
	Persistent bool

	// Schedule3D splits the reduction into an outer and an inner reduction
	// axis in addition to the iteration axis.
	Schedule3D bool

	// MultipleRedsPerBlk maps several reductions onto one block; requires an
	// iteration axis.
	MultipleRedsPerBlk bool

	// Iteration axis.
	VectorizeIterDom         bool
	UnrollFactorIterDom      int64
	BlockDimIterDom          ir.ParallelType // ir.Serial when unused
	GridDimIterDom           ir.ParallelType // ir.Serial when unused
	SplitGridDimIterDomOuter bool
	SplitGridDimIterDomInner bool

	// Inner reduction axis.
	CrossBlockInnerReduction      bool
	CrossGridInnerReduction       bool
	VectorizeInnerReduction       bool
	UnrollFactorInnerReduction    int64
	BatchesPerBlockInnerReduction int64
	BlockDimInnerReduction        ir.ParallelType
	GridDimInnerReduction         ir.ParallelType
	SplitGridDimInnerReduction    bool
	PadInnerReductionToWarp       bool

	// Outer reduction axis (3D only).
	CrossBlockOuterReduction      bool
	CrossGridOuterReduction       bool
	UnrollFactorOuterReduction    int64
	BatchesPerBlockOuterReduction int64
	BlockDimOuterReduction        ir.ParallelType
	GridDimOuterReduction         ir.ParallelType

	// StaticBlockDimX/Y declare the corresponding launch block dimensions
	// statically known (required under outer grid persistence).
	StaticBlockDimX bool
	StaticBlockDimY bool

	Launch LaunchParams
}

// IsUnrolled returns whether any axis class carries an unroll or
// vectorization factor.
func (p *ReductionParams) IsUnrolled() bool {
	return p.UnrollFactorInnerReduction > 1 || p.UnrollFactorIterDom > 1
}

// Vectorize returns whether any axis class is vectorized.
func (p *ReductionParams) Vectorize() bool {
	return p.VectorizeInnerReduction || p.VectorizeIterDom
}

// IsOuterGridPersistence returns whether the outer grid persistence regime
// applies: a persistent kernel whose inner reduction is parallelized across
// the grid while not being the fastest dimension.
func (p *ReductionParams) IsOuterGridPersistence() bool {
	return p.Persistent && p.CrossGridInnerReduction && !p.FastestDim
}

// Validate panics on parameter combinations that cannot be scheduled. These
// are contract violations of the upstream heuristics, not recoverable
// conditions.
func (p *ReductionParams) Validate(hasIterAxis bool) {
	if p.FastestDim && p.VectorizeIterDom {
		Panicf("cannot vectorize iteration domain on inner reductions")
	}
	if !p.FastestDim && p.VectorizeInnerReduction {
		Panicf("cannot vectorize reduction domain on outer reductions")
	}
	if p.MultipleRedsPerBlk && !hasIterAxis {
		Panicf("multiple reductions per block requires an iteration domain, but none was found")
	}
	if p.UnrollFactorIterDom > 1 && !hasIterAxis {
		Panicf("unrolling on iteration domain requires an iteration domain")
	}
}
