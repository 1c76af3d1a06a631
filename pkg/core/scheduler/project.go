// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	. "github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

// PersistentBufferInfo describes the persistent buffers of a fusion: nodes
// whose values must stay live across the whole reduction because a later
// branch reads them after the reduction result is broadcast back.
//
// The three slices are parallel: ResolutionPoints[i] are the nodes where the
// residual branch of Buffers[i] rejoins the reduction branch, and
// Projectable[i] tells whether the buffer can be recomputed from fusion
// inputs instead of being kept live.
type PersistentBufferInfo struct {
	Buffers          []*ir.Node
	ResolutionPoints [][]*ir.Node
	Projectable      []bool
}

// ProjectPersistentBuffers rewrites every projectable persistent buffer so
// the branches that do not pass through a reduction recompute the buffer from
// the fusion inputs rather than keeping it live. This trades registers for
// arithmetic.
//
// Each recomputation is anchored by a scaffold output, the sum of the buffer
// and its replicate, which keeps a transform propagation path between the two
// alive. Scaffolds must be removed again before inlining; PropagateAndInline
// takes care of that. Returns the scaffold nodes.
func ProjectPersistentBuffers(f *ir.Fusion, info *PersistentBufferInfo) []*ir.Node {
	if len(info.Buffers) != len(info.ResolutionPoints) || len(info.Buffers) != len(info.Projectable) {
		Panicf("inconsistent persistent buffer info: %d buffers, %d resolution point lists, %d projectable flags",
			len(info.Buffers), len(info.ResolutionPoints), len(info.Projectable))
	}

	var scaffolds []*ir.Node
	for bufferIdx, buffer := range info.Buffers {
		if !info.Projectable[bufferIdx] {
			continue
		}

		// Collect the first use on every buffer-to-resolution path that does
		// not pass through a reduction; those are the uses that must read the
		// replicate. A buffer can feed the same use through several chains,
		// keep each use once.
		var persistentUses []*ir.Node
		for _, resolution := range info.ResolutionPoints[bufferIdx] {
			for _, chain := range f.AllDependencyChains(buffer, resolution) {
				throughReduction := false
				for _, n := range chain {
					if n.HasReduction() {
						throughReduction = true
						break
					}
				}
				if throughReduction {
					continue
				}
				use := chain[1]
				if !containsNode(persistentUses, use) {
					persistentUses = append(persistentUses, use)
				}
			}
		}

		for _, use := range persistentUses {
			if use.IsFusionInput() {
				Panicf("persistent use %q of buffer %q has no definition", use.Name(), buffer.Name())
			}
			replicate := ir.Recompute(buffer)
			// The scaffold ties buffer and replicate together so transform
			// replay can reach across the projected branch.
			scaffold := ir.Add(replicate, buffer)
			f.AddOutput(scaffold)
			scaffolds = append(scaffolds, scaffold)
			ir.ReplaceInput(use, buffer, replicate)
			klog.V(2).Infof("scheduler: projected persistent buffer %s, use %s now reads %s",
				buffer.Name(), use.Name(), replicate.Name())
		}
	}
	return scaffolds
}
