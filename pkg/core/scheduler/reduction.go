// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	. "github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

// ScheduleReductionNode builds the reduction loop nest on the reference node:
// it splits the iteration and reduction axes per params, assigns parallel
// types, reorders into canonical form with SortAndStage and returns the staged
// producer that carries the partial reduction.
//
// The axis layout on entry is positional: iteration axis at 0 if present, then
// the outer reduction axis (3D schedules only), then the inner reduction axis.
// "Inner" and "outer" are relative to each other only; when params.FastestDim
// is false the reduction is logically outside the iteration domain.
func ScheduleReductionNode(params *ReductionParams, reduction *ir.Node, hasIterAxis bool) *ir.Node {
	const iterAxis = 0
	outerReduceAxis := 0
	if params.Schedule3D {
		outerReduceAxis = 1
	}
	innerReduceAxis := 0
	if params.Schedule3D {
		innerReduceAxis = 2
	} else if hasIterAxis {
		innerReduceAxis = 1
	}

	isOuterGridPersistence := params.IsOuterGridPersistence()

	if reduction.Rank() <= max(iterAxis, outerReduceAxis, innerReduceAxis) {
		Panicf("issue scheduling reduction node %q: expected more than %d dimensions, but found %d",
			reduction.Name(), max(iterAxis, outerReduceAxis, innerReduceAxis), reduction.Rank())
	}
	params.Validate(hasIterAxis)

	vectorize := func(axis int, factor int64) {
		reduction.Split(axis, ir.ConstExtent(factor), true)
		reduction.Axis(axis + 1).Parallelize(ir.Vectorize)
	}
	innerParallel := func(axis int, ptype ir.ParallelType) {
		reduction.Split(axis, ir.ParallelDim(ptype), true)
		reduction.Axis(axis + 1).Parallelize(ptype)
	}
	innerParallelStatic := func(axis int, ptype ir.ParallelType, factor int64) {
		reduction.Split(axis, ir.ConstExtent(factor), true)
		reduction.Axis(axis + 1).Parallelize(ptype)
	}
	innerUnswitch := func(axis int) {
		reduction.Split(axis, ir.ConstExtent(1), true)
		reduction.Axis(axis + 1).Parallelize(ir.Unswitch)
	}
	innerUnroll := func(axis int, factor int64) {
		reduction.Split(axis, ir.ConstExtent(factor), true)
		reduction.Axis(axis + 1).Parallelize(ir.Unroll)
	}
	outerParallel := func(axis int, ptype ir.ParallelType) {
		reduction.Split(axis, ir.ParallelDim(ptype), false)
		reduction.Axis(axis).Parallelize(ptype)
	}
	outerUnswitch := func(axis int) {
		reduction.Split(axis, ir.ConstExtent(1), false)
		reduction.Axis(axis).Parallelize(ir.Unswitch)
	}
	outerUnroll := func(axis int, factor int64) {
		reduction.Split(axis, ir.ConstExtent(factor), false)
		reduction.Axis(axis).Parallelize(ir.Unroll)
	}

	if isOuterGridPersistence {
		reductionAxis := innerReduceAxis
		if !params.StaticBlockDimY {
			Panicf("blockDim.y must be static for outer grid persistence")
		}
		innerParallelStatic(reductionAxis, params.BlockDimInnerReduction, params.Launch.BlockDimY)
		reduction.Split(reductionAxis, ir.ConstExtent(params.BatchesPerBlockInnerReduction), true)
		reduction.Axis(reductionAxis).Parallelize(params.GridDimInnerReduction)
		// Unswitch the persistent buffer by the inner unroll factor. When the
		// factor covers the whole buffer, unswitch the buffer itself; otherwise
		// split the buffer by the factor and unswitch the inner piece.
		if params.BatchesPerBlockInnerReduction == params.UnrollFactorInnerReduction {
			outerUnswitch(reductionAxis + 1)
		} else {
			reduction.Split(reductionAxis+1, ir.ConstExtent(params.UnrollFactorInnerReduction), true)
			outerUnswitch(reductionAxis + 2)
		}
	} else if params.Persistent {
		// Persistent layout:
		// [grid split, persistent buffer, unswitch, unroll, block dim, vectorize]
		if params.VectorizeInnerReduction {
			vectorize(innerReduceAxis, params.UnrollFactorInnerReduction)
		}
		outerI := innerReduceAxis
		if params.CrossGridInnerReduction {
			outerParallel(outerI, params.GridDimInnerReduction)
			outerI++
		}

		reduction.Split(outerI, ir.ConstExtent(params.BatchesPerBlockInnerReduction), false)
		outerI++

		outerUnswitch(outerI)
		outerI++

		if !params.VectorizeInnerReduction && params.UnrollFactorInnerReduction > 1 {
			outerUnroll(outerI, params.UnrollFactorInnerReduction)
			outerI++
		}

		reduction.Axis(outerI).Parallelize(params.BlockDimInnerReduction)

		if params.PadInnerReductionToWarp {
			reduction.Axis(outerI).PadToMultipleOfWarp()
		}
	} else {
		// Non-persistent layout:
		// [grid split, remainder, unswitch, unroll, block dim, vectorize]
		if params.VectorizeInnerReduction {
			vectorize(innerReduceAxis, params.UnrollFactorInnerReduction)
		}

		if params.CrossBlockInnerReduction {
			innerParallel(innerReduceAxis, params.BlockDimInnerReduction)
			if params.PadInnerReductionToWarp {
				reduction.Axis(innerReduceAxis + 1).PadToMultipleOfWarp()
			}
		}

		if !params.VectorizeInnerReduction && params.UnrollFactorInnerReduction > 1 {
			innerUnroll(innerReduceAxis, params.UnrollFactorInnerReduction)
		}

		innerUnswitch(innerReduceAxis)
		if params.CrossGridInnerReduction {
			if params.SplitGridDimInnerReduction {
				outerParallel(innerReduceAxis, params.GridDimInnerReduction)
			} else {
				reduction.Axis(innerReduceAxis).Parallelize(params.GridDimInnerReduction)
			}
		}
	}

	// Outer reduction axis of 3D schedules.
	if params.Schedule3D {
		if params.Persistent {
			// [grid split, persistent buffer, unroll, block dim]
			outerI := outerReduceAxis
			if params.CrossGridOuterReduction {
				outerParallel(outerI, params.GridDimOuterReduction)
				outerI++
			}

			reduction.Split(outerI, ir.ConstExtent(params.BatchesPerBlockOuterReduction), false)
			outerI++

			if params.UnrollFactorOuterReduction > 1 {
				outerUnroll(outerI, params.UnrollFactorOuterReduction)
				outerI++
			}

			reduction.Axis(outerI).Parallelize(params.BlockDimOuterReduction)
		} else {
			// [grid split, remainder, unroll, block dim]
			if params.CrossBlockOuterReduction {
				innerParallel(outerReduceAxis, params.BlockDimOuterReduction)
			}

			if params.UnrollFactorOuterReduction > 1 {
				innerUnroll(outerReduceAxis, params.UnrollFactorOuterReduction)
			}

			if params.CrossGridOuterReduction {
				outerParallel(outerReduceAxis, params.GridDimOuterReduction)
			}
		}
	}

	// Iteration domain.
	if hasIterAxis {
		// [grid split, unswitch, unroll, block dim, vectorize]
		if params.VectorizeIterDom {
			vectorize(iterAxis, params.UnrollFactorIterDom)
		}

		if params.BlockDimIterDom.IsHardwareDim() {
			if isOuterGridPersistence {
				if !params.StaticBlockDimX {
					Panicf("blockDim.x must be static for outer grid persistence")
				}
				innerParallelStatic(iterAxis, params.BlockDimIterDom, params.Launch.BlockDimX)
			} else {
				innerParallel(iterAxis, params.BlockDimIterDom)
			}
		}

		if !params.VectorizeIterDom && params.UnrollFactorIterDom > 1 {
			innerUnroll(iterAxis, params.UnrollFactorIterDom)
		}

		// Do not unswitch the iteration domain under outer grid persistence,
		// it is unclear whether that helps.
		if params.UnrollFactorIterDom > 1 && !isOuterGridPersistence {
			innerUnswitch(iterAxis)
		}

		if params.GridDimIterDom.IsHardwareDim() {
			if params.SplitGridDimIterDomOuter {
				outerParallel(iterAxis, params.GridDimIterDom)
			} else if params.SplitGridDimIterDomInner {
				innerParallel(iterAxis, params.GridDimIterDom)
			} else {
				reduction.Axis(iterAxis).Parallelize(params.GridDimIterDom)
			}
		}
	}

	klog.V(2).Infof("scheduler: built reduction loop nest on %s (persistent=%v, ogp=%v, 3d=%v): %s",
		reduction.Name(), params.Persistent, isOuterGridPersistence, params.Schedule3D, reduction)

	staged := SortAndStage(reduction)

	// Under outer grid persistence the vectorized domain must end up at the
	// innermost position after the canonical reorder.
	if isOuterGridPersistence {
		vecPos := -1
		vecReorder := make(map[int]int)
		for i, a := range staged.Axes() {
			if a.ParallelType() == ir.Vectorize {
				vecPos = i
				vecReorder[i] = -1
			} else if vecPos >= 0 {
				vecReorder[i] = i - 1
			}
		}
		if vecPos == -1 {
			Panicf("vectorized axis not found on staged node %q", staged.Name())
		}
		staged.Reorder(vecReorder)
	}

	return staged
}
