// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strings"

	. "github.com/gomlx/exceptions"
)

// NodeId is a unique identifier of a Node within its Fusion.
type NodeId int32

// MemoryType is where a node's value lives in the generated kernel.
type MemoryType int

const (
	// MemoryLocal is thread-local (register) storage, the default for intermediates.
	MemoryLocal MemoryType = iota
	// MemoryShared is block-shared storage.
	MemoryShared
	// MemoryGlobal is device-global storage; fusion inputs and outputs live here.
	MemoryGlobal
)

// String implements fmt.Stringer.
func (m MemoryType) String() string {
	switch m {
	case MemoryShared:
		return "shared"
	case MemoryGlobal:
		return "global"
	default:
		return "local"
	}
}

// Node is a tensor-valued intermediate of the fusion graph (a "view"). It owns
// an ordered list of Axes describing its iteration space, and is defined by an
// operation over its input nodes (fusion inputs have no definition).
//
// Multi-output operations (Welford, grouped reductions) produce sibling nodes:
// every structural axis mutation on one sibling is mirrored on all of them, so
// siblings always share an identical axis structure.
type Node struct {
	fusion     *Fusion
	id         NodeId
	name       string
	op         OpType
	inputNodes []*Node
	axes       []*Axis

	// root is the axis list at creation time, before any transform.
	root []*Axis

	memory   MemoryType
	siblings []*Node

	// history records the transforms applied to this node, for replay onto
	// structurally compatible nodes.
	history []transform

	// stagedFrom is set on the combining node after staging (RFactor): axis i
	// of this node corresponds to axis stagedFrom[i] of its staged producer.
	stagedFrom []int

	inlinePos int

	// broadcastMask is set for OpBroadcast nodes: true entries are the
	// broadcast axes introduced by the operation.
	broadcastMask []bool

	// innerContiguous records whether the node's fastest dimension is
	// contiguous in memory, which gates vectorized access.
	innerContiguous bool
}

type transformKind int

const (
	transformSplit transformKind = iota
	transformMerge
	transformReorder
)

// transform is one recorded axis transformation. For reorders, old2new holds
// the fully resolved permutation, not the partial map given by the caller.
type transform struct {
	kind       transformKind
	axis       int
	factor     Extent
	innerSplit bool
	old2new    map[int]int
}

// Id returns the node's identifier within its Fusion.
func (n *Node) Id() NodeId { return n.id }

// Name returns the node's name, e.g. "t3".
func (n *Node) Name() string { return n.name }

// Fusion returns the Fusion that owns this node.
func (n *Node) Fusion() *Fusion { return n.fusion }

// Op returns the operation defining this node, or OpNone for fusion inputs.
func (n *Node) Op() OpType { return n.op }

// Inputs returns the nodes consumed by this node's defining operation.
func (n *Node) Inputs() []*Node { return n.inputNodes }

// IsFusionInput returns whether the node has no definition.
func (n *Node) IsFusionInput() bool { return n.op == OpNone }

// Siblings returns the other outputs of this node's multi-output definition,
// or nil for single-output nodes.
func (n *Node) Siblings() []*Node { return n.siblings }

// Memory returns where the node's value lives.
func (n *Node) Memory() MemoryType { return n.memory }

// SetMemory sets where the node's value lives.
func (n *Node) SetMemory(m MemoryType) { n.memory = m }

// Rank returns the number of axes.
func (n *Node) Rank() int { return len(n.axes) }

// Axes returns the node's ordered axis list. The returned slice is owned by
// the node and must not be modified directly; use the transform methods.
func (n *Node) Axes() []*Axis { return n.axes }

// Axis returns the axis at the given position. Negative positions count from
// the end. It panics if the position is out of range.
func (n *Node) Axis(axis int) *Axis { return n.axes[n.adjustAxis(axis)] }

// RootRank returns the number of axes the node had before any transform.
func (n *Node) RootRank() int { return len(n.root) }

// IsTransformed returns whether any transform (or staging) has been applied.
func (n *Node) IsTransformed() bool { return len(n.history) > 0 || n.stagedFrom != nil }

// StagedAxisMap returns, for the combining node left behind by staging, the
// mapping from its axis positions to the corresponding axis positions of its
// staged producer. It returns nil for nodes that are not staging combiners.
func (n *Node) StagedAxisMap() []int { return n.stagedFrom }

// HasReduction returns whether any axis is a reduction axis.
func (n *Node) HasReduction() bool {
	for _, a := range n.axes {
		if a.IsReduction() {
			return true
		}
	}
	return false
}

// InnermostContiguous returns whether the node's fastest dimension is
// contiguous in memory.
func (n *Node) InnermostContiguous() bool { return n.innerContiguous }

// SetInnermostContiguous marks whether the node's fastest dimension is
// contiguous in memory.
func (n *Node) SetInnermostContiguous(contiguous bool) { n.innerContiguous = contiguous }

// InlinePosition returns the inlining position assigned by InlineMost.
func (n *Node) InlinePosition() int { return n.inlinePos }

// SetInlinePosition sets the inlining position.
func (n *Node) SetInlinePosition(pos int) {
	if pos < 0 || pos > len(n.axes) {
		Panicf("invalid inline position %d for node %q with %d axes", pos, n.name, len(n.axes))
	}
	n.inlinePos = pos
}

// adjustAxis returns the positive axis position, adjusting negative positions.
// It panics if the position is out of the node's rank range.
func (n *Node) adjustAxis(axis int) int {
	adjusted := axis
	if axis < 0 {
		adjusted = len(n.axes) + axis
	}
	if adjusted < 0 || adjusted >= len(n.axes) {
		Panicf("invalid axis %d, node %q has %d axes", axis, n.name, len(n.axes))
	}
	return adjusted
}

// selfAndSiblings returns the node followed by its siblings.
func (n *Node) selfAndSiblings() []*Node {
	if len(n.siblings) == 0 {
		return []*Node{n}
	}
	all := make([]*Node, 0, len(n.siblings)+1)
	all = append(all, n)
	all = append(all, n.siblings...)
	return all
}

// Split splits the axis at the given position in two. With innerSplit, the
// inner axis gets the factor as extent and the outer the rounded-up remainder;
// otherwise the factor becomes the outer extent. The split is mirrored on all
// siblings.
func (n *Node) Split(axis int, factor Extent, innerSplit bool) {
	axis = n.adjustAxis(axis)
	t := transform{kind: transformSplit, axis: axis, factor: factor, innerSplit: innerSplit}
	for _, node := range n.selfAndSiblings() {
		node.applySplit(t)
		node.history = append(node.history, t)
	}
}

func (n *Node) applySplit(t transform) {
	a := n.axes[t.axis]
	var outerExtent, innerExtent Extent
	if t.innerSplit {
		outerExtent, innerExtent = ceilDiv(a.extent, t.factor), t.factor
	} else {
		outerExtent, innerExtent = t.factor, ceilDiv(a.extent, t.factor)
	}
	outer := &Axis{kind: a.kind, broadcast: a.broadcast, extent: outerExtent, rfactor: a.rfactor}
	inner := &Axis{kind: a.kind, broadcast: a.broadcast, extent: innerExtent, rfactor: a.rfactor}
	newAxes := make([]*Axis, 0, len(n.axes)+1)
	newAxes = append(newAxes, n.axes[:t.axis]...)
	newAxes = append(newAxes, outer, inner)
	newAxes = append(newAxes, n.axes[t.axis+1:]...)
	n.axes = newAxes
}

// Merge fuses the axis at the given position with its right neighbor into a
// single axis with the product extent. Both axes must have the same kind. The
// merge is mirrored on all siblings.
func (n *Node) Merge(axis int) {
	axis = n.adjustAxis(axis)
	if axis+1 >= len(n.axes) {
		Panicf("cannot merge axis %d of node %q: no right neighbor", axis, n.name)
	}
	if n.axes[axis].kind != n.axes[axis+1].kind {
		Panicf("cannot merge axes %d and %d of node %q: mismatched kinds (%s vs %s)",
			axis, axis+1, n.name, n.axes[axis].kind, n.axes[axis+1].kind)
	}
	t := transform{kind: transformMerge, axis: axis}
	for _, node := range n.selfAndSiblings() {
		node.applyMerge(t)
		node.history = append(node.history, t)
	}
}

func (n *Node) applyMerge(t transform) {
	a, b := n.axes[t.axis], n.axes[t.axis+1]
	merged := &Axis{
		kind:      a.kind,
		broadcast: a.broadcast && b.broadcast,
		extent:    mulExtents(a.extent, b.extent),
		rfactor:   a.rfactor || b.rfactor,
	}
	newAxes := make([]*Axis, 0, len(n.axes)-1)
	newAxes = append(newAxes, n.axes[:t.axis]...)
	newAxes = append(newAxes, merged)
	newAxes = append(newAxes, n.axes[t.axis+2:]...)
	n.axes = newAxes
}

// Reorder permutes the axis list. old2new maps old positions to new positions;
// negative positions count from the end. Axes not mentioned fill the remaining
// positions in their original relative order. Reordering must be a bijection:
// a reorder that would drop or duplicate an axis panics. The reorder is
// mirrored on all siblings.
func (n *Node) Reorder(old2new map[int]int) {
	rank := len(n.axes)
	adjust := func(pos int) int {
		adjusted := pos
		if pos < 0 {
			adjusted = rank + pos
		}
		if adjusted < 0 || adjusted >= rank {
			Panicf("invalid reorder position %d for node %q with %d axes", pos, n.name, rank)
		}
		return adjusted
	}

	// Place the explicitly mapped axes first.
	newToOld := make([]int, rank)
	for i := range newToOld {
		newToOld[i] = -1
	}
	mappedOld := make([]bool, rank)
	for oldPos, newPos := range old2new {
		oldPos, newPos = adjust(oldPos), adjust(newPos)
		if mappedOld[oldPos] {
			Panicf("reorder of node %q maps axis %d twice", n.name, oldPos)
		}
		if newToOld[newPos] != -1 {
			Panicf("reorder of node %q maps axes %d and %d to the same position %d",
				n.name, newToOld[newPos], oldPos, newPos)
		}
		mappedOld[oldPos] = true
		newToOld[newPos] = oldPos
	}

	// Fill the remaining positions with the unmapped axes, preserving order.
	nextOld := 0
	resolved := make(map[int]int, rank)
	for newPos := range newToOld {
		if newToOld[newPos] == -1 {
			for mappedOld[nextOld] {
				nextOld++
			}
			newToOld[newPos] = nextOld
			mappedOld[nextOld] = true
		}
		resolved[newToOld[newPos]] = newPos
	}
	if len(resolved) != rank {
		Panicf("reorder of node %q dropped an axis: %d of %d axes mapped", n.name, len(resolved), rank)
	}

	t := transform{kind: transformReorder, old2new: resolved}
	for _, node := range n.selfAndSiblings() {
		node.applyReorder(t)
		node.history = append(node.history, t)
		// A staged combiner addresses its producer by position, so reordering
		// the producer must shift the staging map with it.
		for _, use := range node.fusion.UsesOf(node) {
			if use.stagedFrom == nil || len(use.inputNodes) != 1 || use.inputNodes[0] != node {
				continue
			}
			for i, pos := range use.stagedFrom {
				use.stagedFrom[i] = resolved[pos]
			}
		}
	}
}

func (n *Node) applyReorder(t transform) {
	newAxes := make([]*Axis, len(n.axes))
	for oldPos, newPos := range t.old2new {
		newAxes[newPos] = n.axes[oldPos]
	}
	n.axes = newAxes
}

// RFactor stages the reduction: it splits this node into a partial-reduction
// producer (returned) and leaves this node as the final combining reduction.
// The listed axes must be reduction axes; they are reduced by the producer and
// marked as rfactor axes there, while the remaining reduction axes stay with
// the combiner. The producer keeps the full axis list, so its rank equals this
// node's rank before staging. Staging is mirrored on all siblings; the
// returned node is the producer of this node.
func (n *Node) RFactor(axes []int) *Node {
	if len(axes) == 0 {
		Panicf("rfactor of node %q: no axes to stage", n.name)
	}
	if n.op != OpReduce && n.op != OpWelford && n.op != OpGroupedReduce {
		Panicf("rfactor of node %q: definition %s is not a reduction", n.name, n.op)
	}
	listed := make(map[int]bool, len(axes))
	for _, axis := range axes {
		axis = n.adjustAxis(axis)
		if !n.axes[axis].IsReduction() {
			Panicf("rfactor of node %q: axis %d is not a reduction axis", n.name, axis)
		}
		listed[axis] = true
	}

	var primary *Node
	producers := make([]*Node, 0, len(n.siblings)+1)
	for _, node := range n.selfAndSiblings() {
		producer := node.rfactorOne(listed)
		producers = append(producers, producer)
		if primary == nil {
			primary = producer
		}
	}
	// Producers of a multi-output reduction are siblings of each other.
	if len(producers) > 1 {
		for _, p := range producers {
			for _, other := range producers {
				if other != p {
					p.siblings = append(p.siblings, other)
				}
			}
		}
	}
	return primary
}

func (n *Node) rfactorOne(listed map[int]bool) *Node {
	f := n.fusion
	producerAxes := make([]*Axis, len(n.axes))
	for i, a := range n.axes {
		c := a.clone()
		if listed[i] {
			c.rfactor = true
		} else if a.IsReduction() {
			// Reduced only by the combining stage.
			c.kind = IterationAxis
		}
		producerAxes[i] = c
	}
	producer := f.newNode(n.op, n.inputNodes, producerAxes, n.name+"_rf")
	// The producer replays from the same root as the node it was staged from.
	producer.root = n.root
	producer.history = append([]transform{}, n.history...)
	producer.innerContiguous = n.innerContiguous

	combinerAxes := make([]*Axis, 0, len(n.axes)-len(listed))
	stagedFrom := make([]int, 0, len(n.axes)-len(listed))
	for i, a := range n.axes {
		if listed[i] {
			continue
		}
		combinerAxes = append(combinerAxes, a)
		stagedFrom = append(stagedFrom, i)
	}
	n.axes = combinerAxes
	n.stagedFrom = stagedFrom
	n.inputNodes = []*Node{producer}
	return producer
}

// CacheAfter inserts a copy of this node and redirects all its consumers to
// the copy, returning the copy. Used to give inputs a cached, schedulable
// stand-in.
func (n *Node) CacheAfter() *Node {
	cache := Set(n)
	for _, use := range n.fusion.UsesOf(n) {
		if use == cache {
			continue
		}
		ReplaceInput(use, n, cache)
	}
	return cache
}

// CacheBefore moves this node's definition into a new producer and redefines
// this node as a copy of it, returning the producer. Used to give outputs a
// cached, schedulable stand-in.
func (n *Node) CacheBefore() *Node {
	if n.op == OpNone {
		Panicf("cannot cache before fusion input %q", n.name)
	}
	if len(n.siblings) > 0 {
		Panicf("cannot cache before multi-output node %q", n.name)
	}
	cacheAxes := make([]*Axis, len(n.axes))
	for i, a := range n.axes {
		cacheAxes[i] = a.clone()
	}
	cache := n.fusion.newNode(n.op, n.inputNodes, cacheAxes, n.name+"_cache")
	cache.broadcastMask = n.broadcastMask
	n.op = OpSet
	n.inputNodes = []*Node{cache}
	n.broadcastMask = nil
	return cache
}

// String implements fmt.Stringer, e.g. `t3[i:GridDimX{gridDim.x}, r{8}]`.
func (n *Node) String() string {
	parts := make([]string, len(n.axes))
	for i, a := range n.axes {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s[%s]", n.name, strings.Join(parts, ", "))
}
