// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	. "github.com/gomlx/exceptions"
)

// OpType identifies the operation defining a node.
type OpType int

const (
	// OpNone marks a fusion input: the node has no definition.
	OpNone OpType = iota
	// OpSet is a trivial copy, the definition of cache nodes.
	OpSet
	// OpNeg is elementwise negation.
	OpNeg
	// OpAdd is elementwise addition.
	OpAdd
	// OpMul is elementwise multiplication.
	OpMul
	// OpReduce folds the node's reduction axes.
	OpReduce
	// OpGroupedReduce reduces several inputs concurrently; its outputs are
	// siblings and come pre-staged for cross-block lowering.
	OpGroupedReduce
	// OpWelford is the single-pass mean/variance reduction; its three outputs
	// are siblings.
	OpWelford
	// OpBroadcast introduces broadcast axes into its input.
	OpBroadcast
)

// String implements fmt.Stringer.
func (op OpType) String() string {
	switch op {
	case OpNone:
		return "Input"
	case OpSet:
		return "Set"
	case OpNeg:
		return "Neg"
	case OpAdd:
		return "Add"
	case OpMul:
		return "Mul"
	case OpReduce:
		return "Reduce"
	case OpGroupedReduce:
		return "GroupedReduce"
	case OpWelford:
		return "Welford"
	case OpBroadcast:
		return "Broadcast"
	}
	return "InvalidOp"
}

// IsReduction returns whether the operation folds reduction axes.
func (op OpType) IsReduction() bool {
	return op == OpReduce || op == OpGroupedReduce || op == OpWelford
}

// consumerAxes returns clones of the axes of n visible to a consumer: the
// reduction axes are folded away by n's definition and excluded.
func consumerAxes(n *Node) []*Axis {
	axes := make([]*Axis, 0, len(n.axes))
	for _, a := range n.axes {
		if a.IsReduction() {
			continue
		}
		c := a.clone()
		c.ptype = Serial
		c.rfactor = false
		axes = append(axes, c)
	}
	return axes
}

// Set returns a copy of in. Cache nodes are defined this way.
func Set(in *Node) *Node {
	return in.fusion.newNode(OpSet, []*Node{in}, consumerAxes(in), "")
}

// Neg returns the elementwise negation of in.
func Neg(in *Node) *Node {
	return in.fusion.newNode(OpNeg, []*Node{in}, consumerAxes(in), "")
}

// Add returns the elementwise sum of lhs and rhs. Broadcast axes of one
// operand are resolved against the real extent of the other.
func Add(lhs, rhs *Node) *Node {
	return binaryOp(OpAdd, lhs, rhs)
}

// Mul returns the elementwise product of lhs and rhs.
func Mul(lhs, rhs *Node) *Node {
	return binaryOp(OpMul, lhs, rhs)
}

func binaryOp(op OpType, lhs, rhs *Node) *Node {
	lhsAxes, rhsAxes := consumerAxes(lhs), consumerAxes(rhs)
	if len(lhsAxes) != len(rhsAxes) {
		Panicf("%s: operands %q and %q have mismatched ranks %d and %d",
			op, lhs.name, rhs.name, len(lhsAxes), len(rhsAxes))
	}
	axes := make([]*Axis, len(lhsAxes))
	for i := range lhsAxes {
		if lhsAxes[i].IsBroadcast() && !rhsAxes[i].IsBroadcast() {
			axes[i] = rhsAxes[i]
		} else {
			axes[i] = lhsAxes[i]
		}
	}
	return lhs.fusion.newNode(op, []*Node{lhs, rhs}, axes, "")
}

// Reduce folds the listed axes of in (positions relative to in's consumer
// view) into a reduction node.
func Reduce(in *Node, axes ...int) *Node {
	inAxes := consumerAxes(in)
	out := in.fusion.newNode(OpReduce, []*Node{in}, inAxes, "")
	markReductionAxes(out, axes)
	return out
}

// GroupedReduce folds the listed axes of every input concurrently. The
// returned outputs are siblings of each other and come pre-staged: the
// staging pass must not rfactor them again.
func GroupedReduce(axes []int, ins ...*Node) []*Node {
	if len(ins) == 0 {
		Panicf("GroupedReduce: no inputs")
	}
	f := ins[0].fusion
	outs := make([]*Node, len(ins))
	for i, in := range ins {
		outs[i] = f.newNode(OpGroupedReduce, ins, consumerAxes(in), "")
		markReductionAxes(outs[i], axes)
	}
	linkSiblings(outs)
	return outs
}

// Welford folds the listed axes of in into its mean, variance and count, the
// three returned nodes being siblings of each other.
func Welford(in *Node, axes ...int) (avg, variance, count *Node) {
	f := in.fusion
	outs := make([]*Node, 3)
	for i := range outs {
		outs[i] = f.newNode(OpWelford, []*Node{in}, consumerAxes(in), "")
		markReductionAxes(outs[i], axes)
	}
	linkSiblings(outs)
	return outs[0], outs[1], outs[2]
}

func markReductionAxes(n *Node, axes []int) {
	for _, axis := range axes {
		axis = n.adjustAxis(axis)
		if n.axes[axis].IsBroadcast() {
			Panicf("%s of node %q: axis %d is a broadcast axis", n.op, n.name, axis)
		}
		n.axes[axis].kind = ReductionAxis
	}
	if !n.HasReduction() {
		Panicf("%s of node %q: no reduction axes given", n.op, n.name)
	}
}

func linkSiblings(nodes []*Node) {
	for _, n := range nodes {
		for _, other := range nodes {
			if other != n {
				n.siblings = append(n.siblings, other)
			}
		}
	}
}

// Broadcast maps in into a larger iteration space: isBroadcastDim has one
// entry per output axis, true entries become broadcast axes and false entries
// consume in's axes in order.
func Broadcast(in *Node, isBroadcastDim ...bool) *Node {
	inAxes := consumerAxes(in)
	real := 0
	for _, b := range isBroadcastDim {
		if !b {
			real++
		}
	}
	if real != len(inAxes) {
		Panicf("Broadcast of node %q: %d non-broadcast output axes for %d input axes",
			in.name, real, len(inAxes))
	}
	axes := make([]*Axis, len(isBroadcastDim))
	next := 0
	for i, b := range isBroadcastDim {
		if b {
			axes[i] = NewBroadcastAxis()
		} else {
			axes[i] = inAxes[next]
			next++
		}
	}
	out := in.fusion.newNode(OpBroadcast, []*Node{in}, axes, "")
	out.broadcastMask = append([]bool{}, isBroadcastDim...)
	return out
}

// Recompute clones the defining sub-graph of n from the fusion inputs into
// fresh nodes and returns the clone of n. The clone shares the fusion inputs
// with the original but owns fresh intermediates and axes.
func Recompute(n *Node) *Node {
	if n.IsFusionInput() {
		Panicf("cannot recompute fusion input %q", n.name)
	}
	return recomputeNode(n, make(map[*Node]*Node))
}

func recomputeNode(n *Node, memo map[*Node]*Node) *Node {
	if n.IsFusionInput() {
		return n
	}
	if clone, found := memo[n]; found {
		return clone
	}
	inputs := make([]*Node, len(n.inputNodes))
	for i, in := range n.inputNodes {
		inputs[i] = recomputeNode(in, memo)
	}
	axes := make([]*Axis, len(n.axes))
	for i, a := range n.axes {
		axes[i] = a.clone()
	}
	clone := n.fusion.newNode(n.op, inputs, axes, n.name+"_copy")
	clone.broadcastMask = append([]bool{}, n.broadcastMask...)
	clone.innerContiguous = n.innerContiguous
	memo[n] = clone
	return clone
}

// ReplaceInput rewrites every use of old in consumer's definition to new. It
// panics if consumer does not consume old.
func ReplaceInput(consumer, old, new *Node) {
	replaced := false
	for i, in := range consumer.inputNodes {
		if in == old {
			consumer.inputNodes[i] = new
			replaced = true
		}
	}
	if !replaced {
		Panicf("node %q does not consume %q", consumer.name, old.name)
	}
}
