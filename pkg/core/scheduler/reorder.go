// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"math"
	"sort"

	. "github.com/gomlx/exceptions"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

// axisOrderKey assigns every axis a total-order key for the canonical
// inner-to-outer layout: smaller keys sort outermost. Vectorized and unrolled
// axes must end up innermost for coalescing, hardware-parallel axes form
// contiguous blocks, and unswitched axes bracket the specialized control flow.
// Classes toward the inner end count down from the maximum key, classes toward
// the outer end count up from the minimum; ties keep their declared order.
func axisOrderKey(a *ir.Axis) int {
	innerMost := math.MaxInt
	outerMost := math.MinInt

	// Reduction and unrolled/vectorized.
	if a.IsReduction() && a.ParallelType().IsUnrollLike() {
		return innerMost
	}
	innerMost--

	// Reduction and constant extent.
	if a.IsReduction() && a.Extent().IsConst() {
		return innerMost
	}
	innerMost--

	// Reduction and unswitched.
	if a.IsReduction() && a.ParallelType() == ir.Unswitch {
		return innerMost
	}
	innerMost--

	// Reduction and hardware parallel.
	if a.IsReduction() && a.IsHardwareParallel() {
		return innerMost
	}
	innerMost--

	// Broadcast.
	if a.IsBroadcast() {
		return innerMost
	}
	innerMost--

	// Iteration and unrolled/vectorized.
	if !a.IsReduction() && a.ParallelType().IsUnrollLike() {
		return innerMost
	}
	innerMost--

	// Iteration and unswitched.
	if !a.IsReduction() && a.ParallelType() == ir.Unswitch {
		return innerMost
	}
	innerMost--

	// Reduction and symbolic extent.
	if a.IsReduction() && !a.Extent().IsConst() {
		return innerMost
	}

	// Iteration and grid parallel.
	if !a.IsReduction() && a.ParallelType().IsGridDim() {
		return outerMost
	}
	outerMost++

	// Iteration and block parallel.
	if !a.IsReduction() && a.ParallelType().IsBlockDim() {
		return outerMost
	}
	outerMost++

	// Iteration and constant extent.
	if !a.IsReduction() && a.Extent().IsConst() {
		return outerMost
	}
	outerMost++

	// Iteration and symbolic extent.
	return outerMost
}

// SortAndStage reorders the node's axes into canonical order and stages the
// reduction: the reduction axes that are not hardware parallel are split off
// into a partial-reduction producer (rfactor), so every node handed to the
// inlining driver has an explicit multi-pass reduction structure. When every
// reduction axis qualifies for staging, degenerate unswitch axes (extent one)
// are left out to avoid staging with nothing to split.
//
// Returns the staged producer node.
func SortAndStage(reference *ir.Node) *ir.Node {
	axes := reference.Axes()
	sorted := append([]*ir.Axis{}, axes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return axisOrderKey(sorted[i]) < axisOrderKey(sorted[j])
	})
	newPos := make(map[*ir.Axis]int, len(sorted))
	for i, a := range sorted {
		newPos[a] = i
	}
	old2new := make(map[int]int, len(axes))
	for oldPos, a := range axes {
		pos, found := newPos[a]
		if !found {
			Panicf("error in canonical reorder: axis %d of node %q was not assigned a position",
				oldPos, reference.Name())
		}
		old2new[oldPos] = pos
	}
	reference.Reorder(old2new)

	var staged, stagedNoDegenerateUnswitch []int
	reductionAxes := 0
	for i, a := range reference.Axes() {
		if !a.IsReduction() {
			continue
		}
		reductionAxes++
		if a.IsHardwareParallel() {
			continue
		}
		if !(a.ParallelType() == ir.Unswitch && a.Extent().IsOne()) {
			stagedNoDegenerateUnswitch = append(stagedNoDegenerateUnswitch, i)
		}
		staged = append(staged, i)
	}
	if reductionAxes == len(staged) {
		return reference.RFactor(stagedNoDegenerateUnswitch)
	}
	return reference.RFactor(staged)
}
