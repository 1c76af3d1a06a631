// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"

	"github.com/slowy07/Fuser/pkg/core/ir"
	"github.com/slowy07/Fuser/pkg/support/sets"
	"github.com/slowy07/Fuser/pkg/support/xslices"
)

// CachedOutput pairs a fusion output with the register-level cache created
// before it (CacheBefore): Cache carries the computation, Output the final
// global copy.
type CachedOutput struct {
	Cache, Output *ir.Node
}

// PropagateAndInline spreads the reference node's schedule across the whole
// fusion and computes inlining positions:
//
//   - replays the reference's axis transforms onto every other node,
//   - stages every other reduction node the same way the reference was staged,
//   - propagates parallel types, with unroll and vectorize restricted to the
//     cache nodes that can legally carry them,
//   - converts grid all-reduces to grouped reductions,
//   - drops scaffold outputs and inlines everything as deep as possible.
//
// reductionNode is the staged combiner the reference was produced from;
// reference is the node returned by ScheduleReductionNode.
func PropagateAndInline(
	f *ir.Fusion,
	params *ReductionParams,
	reductionNode, reference *ir.Node,
	reductionNodes []*ir.Node,
	cachedInputs []*ir.Node,
	cachedOutputs []CachedOutput,
	scaffoldOutputs []*ir.Node,
) {
	isOuterGridPersistence := params.IsOuterGridPersistence()

	ir.ReplayTransforms(reference)

	// If the reference was staged, stage all other reduction nodes the same
	// way. Staging positions are matched ignoring broadcasts: pattern
	// equivalent reductions may differ in broadcast axes, so raw positions on
	// the reference do not transfer directly.
	if reference != reductionNode {
		stagingAxes := sets.Make[int]()
		pos := 0
		for _, a := range reference.Axes() {
			if a.IsBroadcast() {
				continue
			}
			if a.IsReduction() && a.IsRFactor() {
				stagingAxes.Insert(pos)
			}
			pos++
		}

		for _, other := range reductionNodes {
			if other == reductionNode || other.Op() == ir.OpGroupedReduce {
				// Already comes in staged.
				continue
			}
			other.RFactor(addBackBroadcasts(other, stagingAxes))
		}
	}

	unroll := params.IsUnrolled()
	vectorize := params.Vectorize()

	// Propagate parallelization except vectorization and unrolling.
	propagateParallelTypes(reference, reductionNode, f.Nodes(),
		ir.AllParallelTypesExcept(ir.Unroll, ir.Vectorize, ir.MisalignedVectorize))

	if unroll {
		// Find the nodes allowed to carry unroll or vectorization.
		eligible := sets.Make[*ir.Node]()

		vectorizable := vectorizableInputsOutputs(f)

		for _, cached := range cachedInputs {
			if !vectorize {
				eligible.Insert(cached)
				continue
			}
			producers := cached.Inputs()
			if len(producers) == 1 && cached.Op() == ir.OpSet && vectorizable.Has(producers[0]) {
				eligible.Insert(cached)
			}
		}
		for _, cached := range cachedOutputs {
			output := cached.Output
			if !vectorize {
				eligible.Insert(output)
				continue
			}
			if output.Op() == ir.OpSet && vectorizable.Has(output) {
				eligible.Insert(output)
			}
		}

		if len(eligible) > 0 {
			if klog.V(2).Enabled() {
				klog.Infof("scheduler: unroll/vectorize carried by %v",
					xslices.Map(maps.Keys(eligible), (*ir.Node).Name))
			}
			propagateParallelTypes(reference, reductionNode, maps.Keys(eligible),
				[]ir.ParallelType{ir.Unroll, ir.Vectorize, ir.MisalignedVectorize})
		}

		// The reference and the staged combiner never carry unroll or
		// vectorize themselves unless they were found eligible. Under outer
		// grid persistence a vectorized reduction axis becomes a grouped grid
		// reduction instead of going serial.
		for _, n := range []*ir.Node{reference, reductionNode} {
			if eligible.Has(n) {
				continue
			}
			isReductionMember := containsNode(reductionNodes, n)
			for i, a := range n.Axes() {
				pt := a.ParallelType()
				if isOuterGridPersistence && isReductionMember && pt == ir.Vectorize {
					a.Parallelize(ir.Group)
					for _, sibling := range n.Siblings() {
						sibling.Axis(i).Parallelize(ir.Group)
					}
				} else if pt.IsUnrollLike() {
					a.Parallelize(ir.Serial)
					for _, sibling := range n.Siblings() {
						sibling.Axis(i).Parallelize(ir.Serial)
					}
				}
			}
		}

		// Reductions whose result is broadcast back across the same grid
		// dimensions are effectively all-reduces; group them like the main
		// combiner.
		var allReduce []*ir.Node
		for _, other := range reductionNodes {
			if other != reductionNode && isGridAllReduce(other) {
				allReduce = append(allReduce, other)
			}
		}
		if len(allReduce) > 0 {
			propagateParallelTypes(reductionNode, reductionNode, allReduce, []ir.ParallelType{ir.Group})
		}
	}

	// Scaffold outputs only exist to anchor recomputation; keeping them as
	// outputs would distort inlining positions.
	for _, scaffold := range scaffoldOutputs {
		f.RemoveOutput(scaffold)
	}

	ir.InlineMost(f)
}

// addBackBroadcasts converts positions counted over the node's non-broadcast
// axes into raw axis positions on the node.
func addBackBroadcasts(n *ir.Node, nonBroadcastAxes sets.Set[int]) []int {
	var axes []int
	pos := 0
	for i, a := range n.Axes() {
		if a.IsBroadcast() {
			continue
		}
		if nonBroadcastAxes.Has(pos) {
			axes = append(axes, i)
		}
		pos++
	}
	return axes
}

// propagateParallelTypes copies the parallel types listed in allowed from the
// reference onto the given nodes. Axes are paired by non-broadcast position,
// so nodes that differ from the reference only in broadcast axes still pick up
// the right assignment. Staged combiners, whose rank is reduced, are paired
// through their staging map instead, and consumers past the reduction are
// paired against the combiner's iteration axes (the reference turns staged-out
// hardware reduction axes into iteration axes, so its own iteration axes
// over-count what consumers see). Nodes that cannot be paired are skipped.
func propagateParallelTypes(reference, combiner *ir.Node, nodes []*ir.Node, allowed []ir.ParallelType) {
	allowedSet := sets.MakeWith(allowed...)

	var deferred []*ir.Node
	for _, n := range nodes {
		if n == reference || n.IsFusionInput() {
			continue
		}
		if !copyParallelTypes(reference, n, allowedSet) {
			deferred = append(deferred, n)
		}
	}

	for _, n := range deferred {
		if staged := n.StagedAxisMap(); staged != nil && len(n.Inputs()) == 1 {
			// Staged combiner: every axis maps through the staging map into
			// its producer, which has already been parallelized.
			producer := n.Inputs()[0]
			for i := range n.Axes() {
				pt := producer.Axis(staged[i]).ParallelType()
				if allowedSet.Has(pt) {
					n.Axis(i).Parallelize(pt)
				}
			}
			continue
		}
		// Consumer past the reduction: its axes follow the combiner's
		// iteration axes in order.
		if copyByPairing(iterationAxes(combiner), iterationAxes(n), allowedSet) {
			continue
		}
		klog.V(2).Infof("scheduler: cannot pair axes of %s with %s, parallelization skipped",
			n.Name(), reference.Name())
	}
}

// copyParallelTypes pairs the non-broadcast axes of reference and target by
// position and copies the allowed parallel types across. Returns false when
// the non-broadcast ranks differ.
func copyParallelTypes(reference, target *ir.Node, allowed sets.Set[ir.ParallelType]) bool {
	return copyByPairing(nonBroadcastAxes(reference), nonBroadcastAxes(target), allowed)
}

func copyByPairing(refAxes, targetAxes []*ir.Axis, allowed sets.Set[ir.ParallelType]) bool {
	if len(refAxes) != len(targetAxes) {
		return false
	}
	for i, refAxis := range refAxes {
		pt := refAxis.ParallelType()
		if allowed.Has(pt) {
			targetAxes[i].Parallelize(pt)
		}
	}
	return true
}

func nonBroadcastAxes(n *ir.Node) []*ir.Axis {
	return xslices.Filter(n.Axes(), func(a *ir.Axis) bool { return !a.IsBroadcast() })
}

func iterationAxes(n *ir.Node) []*ir.Axis {
	return xslices.Filter(n.Axes(), func(a *ir.Axis) bool { return !a.IsBroadcast() && !a.IsReduction() })
}

// vectorizableInputsOutputs returns the fusion inputs and outputs whose
// innermost non-broadcast axis is an iteration axis backed by contiguous
// memory. Only copies from or to these nodes may be vectorized.
func vectorizableInputsOutputs(f *ir.Fusion) sets.Set[*ir.Node] {
	candidates := sets.Make[*ir.Node]()
	consider := func(n *ir.Node) {
		if !n.InnermostContiguous() {
			return
		}
		if nb := nonBroadcastAxes(n); len(nb) > 0 && !xslices.Last(nb).IsReduction() {
			candidates.Insert(n)
		}
	}
	for _, n := range f.Inputs() {
		consider(n)
	}
	for _, n := range f.Outputs() {
		consider(n)
	}
	return candidates
}

// isGridAllReduce reports whether the reduction's result is broadcast back
// across a grid dimension the reduction itself spans. Only local-memory nodes
// qualify, shared or global staging already implies a separate pass.
func isGridAllReduce(reduction *ir.Node) bool {
	if reduction.Memory() != ir.MemoryLocal {
		return false
	}

	gridTypes := sets.Make[ir.ParallelType]()
	for _, a := range reduction.Axes() {
		if a.IsReduction() && a.ParallelType().IsGridDim() {
			gridTypes.Insert(a.ParallelType())
		}
	}
	if len(gridTypes) == 0 {
		return false
	}

	for _, use := range reduction.Fusion().UsesOf(reduction) {
		if use.Op() != ir.OpBroadcast {
			continue
		}
		for _, a := range use.Axes() {
			if a.ParallelType().IsGridDim() && gridTypes.Has(a.ParallelType()) {
				return true
			}
		}
	}
	return false
}

func containsNode(nodes []*ir.Node, n *ir.Node) bool {
	for _, candidate := range nodes {
		if candidate == n {
			return true
		}
	}
	return false
}
