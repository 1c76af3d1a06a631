// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	. "github.com/gomlx/exceptions"
)

// ParallelType describes how a single axis of a node's iteration space is executed.
//
// Serial axes become plain loops. Unroll/Vectorize/MisalignedVectorize become
// unrolled or vectorized loops. Unswitch marks a compile-time specialized branch.
// Group marks a grid all-reduce axis (cross-block synchronized reduction).
// The GridDim* and BlockDim* values bind the axis to a hardware parallel
// dimension: GridDim* axes are distributed across blocks of the launch grid,
// BlockDim* axes across the threads of a block.
type ParallelType int

//go:generate go tool enumer -type ParallelType -output=gen_paralleltype_enumer.go paralleltype.go

const (
	// Serial is the default: the axis is executed as an ordinary loop.
	Serial ParallelType = iota

	// Unroll marks the axis for loop unrolling.
	Unroll

	// Vectorize marks the axis for vectorized (contiguous, aligned) access.
	Vectorize

	// MisalignedVectorize marks the axis for vectorized access without the
	// alignment guarantee.
	MisalignedVectorize

	// Unswitch hoists the axis' predicates into a compile-time specialized branch.
	Unswitch

	// Group marks an axis that participates in a grid all-reduce: the reduced
	// value is redistributed to every block, requiring cross-block synchronization
	// in the generated kernel.
	Group

	// GridDimX binds the axis to the x dimension of the launch grid.
	GridDimX
	// GridDimY binds the axis to the y dimension of the launch grid.
	GridDimY
	// GridDimZ binds the axis to the z dimension of the launch grid.
	GridDimZ

	// BlockDimX binds the axis to the x dimension of the thread block.
	BlockDimX
	// BlockDimY binds the axis to the y dimension of the thread block.
	BlockDimY
	// BlockDimZ binds the axis to the z dimension of the thread block.
	BlockDimZ
)

// IsGridDim returns whether pt binds an axis across blocks of the launch grid.
func (pt ParallelType) IsGridDim() bool {
	return pt == GridDimX || pt == GridDimY || pt == GridDimZ
}

// IsBlockDim returns whether pt binds an axis across threads of a block.
func (pt ParallelType) IsBlockDim() bool {
	return pt == BlockDimX || pt == BlockDimY || pt == BlockDimZ
}

// IsHardwareDim returns whether pt binds the axis to any hardware parallel
// dimension, grid- or block-level.
func (pt ParallelType) IsHardwareDim() bool {
	return pt.IsGridDim() || pt.IsBlockDim()
}

// IsUnrollLike returns whether pt is one of the unroll/vectorize assignments,
// which are only legal on specific producer/consumer nodes and are therefore
// propagated separately from the other parallel types.
func (pt ParallelType) IsUnrollLike() bool {
	return pt == Unroll || pt == Vectorize || pt == MisalignedVectorize
}

// ParallelDim returns the symbolic extent of the hardware dimension pt, e.g.
// "blockDim.x" for BlockDimX. It is the dynamic-lookup path used when splitting
// an axis by a hardware dimension whose size is only known at launch time.
//
// It panics if pt is not a hardware dimension.
func ParallelDim(pt ParallelType) Extent {
	name, found := parallelDimNames[pt]
	if !found {
		Panicf("ParallelDim: %s is not a hardware parallel dimension", pt)
	}
	return SymbolicExtent(name)
}

var parallelDimNames = map[ParallelType]string{
	GridDimX:  "gridDim.x",
	GridDimY:  "gridDim.y",
	GridDimZ:  "gridDim.z",
	BlockDimX: "blockDim.x",
	BlockDimY: "blockDim.y",
	BlockDimZ: "blockDim.z",
}

// AllParallelTypesExcept returns every ParallelType not listed in except.
// It is used to select which assignments a propagation pass is allowed to copy.
func AllParallelTypesExcept(except ...ParallelType) []ParallelType {
	excluded := make(map[ParallelType]bool, len(except))
	for _, pt := range except {
		excluded[pt] = true
	}
	var result []ParallelType
	for _, pt := range ParallelTypeValues() {
		if !excluded[pt] {
			result = append(result, pt)
		}
	}
	return result
}
