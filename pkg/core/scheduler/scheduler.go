// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

// Package scheduler builds reduction schedules for fusion graphs: it splits
// and parallelizes the reduction node's axes according to a ReductionParams
// record, reorders them into a canonical layout, stages partial reductions,
// propagates the resulting schedule to every other node of the fusion and
// computes inlining positions.
//
// The individual phases (ProjectPersistentBuffers, ScheduleReductionNode,
// SortAndStage, PropagateAndInline) panic on malformed input, like the rest
// of the IR layer. Schedule is the error-returning entry point that wraps a
// full scheduling pass.
package scheduler

import (
	. "github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

// Schedule runs a complete reduction scheduling pass on the fusion:
// persistent buffer projection (persistent kernels only), loop nest
// construction on reductionNode, and propagation plus inlining across the
// whole graph.
//
// reductionNode is the reduction chosen as the scheduling reference;
// reductionNodes lists every reduction in the fusion including it, all
// pattern equivalent. cachedInputs and cachedOutputs are the cache nodes
// introduced around the fusion boundary (CacheAfter on inputs, CacheBefore
// on outputs); they are the only nodes allowed to carry unroll or vectorize.
//
// Returns the staged reference node carrying the partial reduction.
func Schedule(
	f *ir.Fusion,
	params *ReductionParams,
	reductionNode *ir.Node,
	reductionNodes []*ir.Node,
	cachedInputs []*ir.Node,
	cachedOutputs []CachedOutput,
	persistentBuffers *PersistentBufferInfo,
) (reference *ir.Node, err error) {
	err = TryCatch[error](func() {
		var scaffolds []*ir.Node
		if params.Persistent && persistentBuffers != nil {
			scaffolds = ProjectPersistentBuffers(f, persistentBuffers)
		}

		hasIterAxis := false
		for _, a := range reductionNode.Axes() {
			if !a.IsReduction() && !a.IsBroadcast() {
				hasIterAxis = true
				break
			}
		}

		reference = ScheduleReductionNode(params, reductionNode, hasIterAxis)
		PropagateAndInline(f, params, reductionNode, reference,
			reductionNodes, cachedInputs, cachedOutputs, scaffolds)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "scheduling reduction %q", reductionNode.Name())
	}
	return reference, nil
}
