// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"k8s.io/klog/v2"

	"github.com/slowy07/Fuser/pkg/support/sets"
)

// ReplayTransforms replays the transform history of the reference node onto
// every structurally compatible node reachable from it, walking producer,
// consumer and sibling edges with explicit visited-set bookkeeping.
//
// Fusion inputs and nodes that were already transformed (including siblings,
// which are mirrored when their primary is replayed) are left untouched.
// Nodes whose root axis structure cannot be aligned with the reference's are
// skipped.
func ReplayTransforms(reference *Node) {
	f := reference.fusion
	visited := sets.MakeWith(reference)
	queue := []*Node{reference}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		var neighbors []*Node
		neighbors = append(neighbors, n.inputNodes...)
		neighbors = append(neighbors, f.UsesOf(n)...)
		neighbors = append(neighbors, n.siblings...)
		for _, neighbor := range neighbors {
			if visited.Has(neighbor) {
				continue
			}
			visited.Insert(neighbor)
			queue = append(queue, neighbor)
			if neighbor.IsFusionInput() || neighbor.IsTransformed() {
				continue
			}
			if !replayOnto(reference, neighbor) {
				klog.V(2).Infof("transform replay: skipping node %q, root not alignable with reference %q",
					neighbor.name, reference.name)
			}
		}
	}
}

// rootAlignment maps every reference root axis to a target root axis (or -1
// when the reference axis has no target counterpart), plus the target root
// axes left unmatched ("free", kept in place relative to their left
// neighbor).
type rootAlignment struct {
	refMap []int
	frees  []freeAxis
}

type freeAxis struct {
	token  int
	anchor int // target root token immediately to its left, -1 for front
}

func alignRoots(reference, target *Node) (rootAlignment, bool) {
	refRoot, tgtRoot := reference.root, target.root
	align := rootAlignment{refMap: make([]int, len(refRoot))}

	if len(refRoot) == len(tgtRoot) {
		// Same rank: align by raw position. Broadcasts stand in for anything
		// (a reduced axis reappears as a broadcast downstream), and a
		// reference reduction axis pairs with the producer-side iteration
		// axis it reduces.
		for i := range refRoot {
			align.refMap[i] = i
		}
		return align, true
	}

	// Different rank: align the non-broadcast axes in order, then pair up the
	// broadcast runs between each pair of anchors. Either every reference
	// non-broadcast axis has a target counterpart (reduction axes pair with
	// the producer-side iteration axis they reduce), or the target is a
	// consumer that dropped exactly the reference's reduction axes.
	var refNB, tgtNB []int
	for i, a := range refRoot {
		if !a.IsBroadcast() {
			refNB = append(refNB, i)
		}
	}
	for j, a := range tgtRoot {
		if !a.IsBroadcast() {
			tgtNB = append(tgtNB, j)
		}
	}
	for i := range align.refMap {
		align.refMap[i] = -1
	}
	refReductions := 0
	for _, r := range refNB {
		if refRoot[r].IsReduction() {
			refReductions++
		}
	}
	var matchedRef []int
	switch len(tgtNB) {
	case len(refNB):
		matchedRef = refNB
		for k, r := range refNB {
			align.refMap[r] = tgtNB[k]
		}
	case len(refNB) - refReductions:
		k := 0
		for _, r := range refNB {
			if refRoot[r].IsReduction() {
				continue
			}
			if refRoot[r].Kind() != tgtRoot[tgtNB[k]].Kind() {
				return align, false
			}
			align.refMap[r] = tgtNB[k]
			matchedRef = append(matchedRef, r)
			k++
		}
	default:
		return align, false
	}

	// Broadcast runs: segment s covers the broadcasts before anchor s (the
	// run after the last anchor is segment len(refNB)).
	segmentOf := func(nb []int, idx int) int {
		s := 0
		for s < len(nb) && nb[s] < idx {
			s++
		}
		return s
	}
	refRuns := make(map[int][]int)
	for i, a := range refRoot {
		if a.IsBroadcast() {
			s := segmentOf(matchedRef, i)
			refRuns[s] = append(refRuns[s], i)
		}
	}
	for j, a := range tgtRoot {
		if !a.IsBroadcast() {
			continue
		}
		s := segmentOf(tgtNB, j)
		run := refRuns[s]
		if len(run) > 0 {
			align.refMap[run[0]] = j
			refRuns[s] = run[1:]
			continue
		}
		anchor := -1
		if j > 0 {
			anchor = j - 1
		}
		align.frees = append(align.frees, freeAxis{token: j, anchor: anchor})
	}
	return align, true
}

// plannedOp is one transform scheduled for the target during the dry run.
type plannedOp struct {
	kind       transformKind
	axis       int
	factor     Extent
	innerSplit bool
	old2new    map[int]int
}

// replayOnto replays reference.history onto target, translating axis
// positions through the root alignment. The replay is dry-run first so an
// unalignable history leaves the target untouched. Returns whether the replay
// was applied.
func replayOnto(reference, target *Node) bool {
	align, ok := alignRoots(reference, target)
	if !ok {
		return false
	}

	// Simulation state: target axes are tracked as tokens. order holds the
	// target's current axis order; m maps each current reference axis to its
	// target token (-1 when the reference axis has no counterpart).
	order := make([]int, len(target.root))
	for j := range order {
		order[j] = j
	}
	m := append([]int{}, align.refMap...)
	anchorOf := make(map[int]int, len(align.frees))
	freeTokens := make([]int, 0, len(align.frees))
	for _, fr := range align.frees {
		anchorOf[fr.token] = fr.anchor
		freeTokens = append(freeTokens, fr.token)
	}
	nextToken := len(target.root)

	indexOf := func(token int) int {
		for pos, t := range order {
			if t == token {
				return pos
			}
		}
		return -1
	}
	retarget := func(from, to int) {
		for token, anchor := range anchorOf {
			if anchor == from {
				anchorOf[token] = to
			}
		}
	}

	var plan []plannedOp
	for _, t := range reference.history {
		switch t.kind {
		case transformSplit:
			token := m[t.axis]
			if token < 0 {
				m = spliceInts(m, t.axis, 1, -1, -1)
				continue
			}
			pos := indexOf(token)
			plan = append(plan, plannedOp{kind: transformSplit, axis: pos, factor: t.factor, innerSplit: t.innerSplit})
			outer, inner := nextToken, nextToken+1
			nextToken += 2
			order = spliceInts(order, pos, 1, outer, inner)
			m = spliceInts(m, t.axis, 1, outer, inner)
			retarget(token, inner)

		case transformMerge:
			tokenA, tokenB := m[t.axis], m[t.axis+1]
			if tokenA < 0 && tokenB < 0 {
				m = spliceInts(m, t.axis, 2, -1)
				continue
			}
			if tokenA < 0 || tokenB < 0 {
				return false
			}
			posA := indexOf(tokenA)
			if indexOf(tokenB) != posA+1 {
				return false
			}
			plan = append(plan, plannedOp{kind: transformMerge, axis: posA})
			merged := nextToken
			nextToken++
			order = spliceInts(order, posA, 2, merged)
			m = spliceInts(m, t.axis, 2, merged)
			retarget(tokenA, merged)
			retarget(tokenB, merged)

		case transformReorder:
			newM := make([]int, len(m))
			for oldPos, newPos := range t.old2new {
				newM[newPos] = m[oldPos]
			}
			var desired []int
			for _, token := range newM {
				if token >= 0 {
					desired = append(desired, token)
				}
			}
			for _, token := range freeTokens {
				anchor := anchorOf[token]
				at := 0
				if anchor >= 0 {
					for pos, d := range desired {
						if d == anchor {
							at = pos + 1
							break
						}
					}
				}
				desired = spliceInts(desired, at, 0, token)
			}
			if len(desired) != len(order) {
				return false
			}
			old2new := make(map[int]int, len(order))
			for newPos, token := range desired {
				old2new[indexOf(token)] = newPos
			}
			plan = append(plan, plannedOp{kind: transformReorder, old2new: old2new})
			order = desired
			m = newM
		}
	}

	for _, op := range plan {
		switch op.kind {
		case transformSplit:
			target.Split(op.axis, op.factor, op.innerSplit)
		case transformMerge:
			target.Merge(op.axis)
		case transformReorder:
			target.Reorder(op.old2new)
		}
	}
	return true
}

// spliceInts replaces remove elements of s at position at with the given
// replacement values.
func spliceInts(s []int, at, remove int, values ...int) []int {
	result := make([]int, 0, len(s)-remove+len(values))
	result = append(result, s[:at]...)
	result = append(result, values...)
	result = append(result, s[at+remove:]...)
	return result
}

// InlineMost assigns every non-input node its maximal inlining position: the
// deepest axis position shared with all of its consumers, never crossing a
// vectorized axis nor the node's own reduction axes. Nodes without consumers
// keep position zero.
func InlineMost(f *Fusion) {
	inlined := 0
	for _, n := range f.nodes {
		if n.IsFusionInput() {
			continue
		}
		uses := f.UsesOf(n)
		if len(uses) == 0 {
			continue
		}
		pos := n.Rank()
		for _, use := range uses {
			if use.Rank() < pos {
				pos = use.Rank()
			}
		}
		for i := 0; i < pos; i++ {
			a := n.axes[i]
			if a.IsReduction() || a.ptype == Vectorize || a.ptype == MisalignedVectorize {
				pos = i
				break
			}
		}
		n.inlinePos = pos
		inlined++
	}
	klog.V(2).Infof("InlineMost: assigned inline positions to %d nodes", inlined)
}
