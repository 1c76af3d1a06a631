// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

// Package ir holds the fusion intermediate representation consumed by the
// scheduling passes: a DAG of tensor-valued nodes, each owning an ordered list
// of axes that can be split, merged, reordered, parallelized and staged.
//
// The IR performs no computation; it only describes the iteration structure of
// the eventual kernel. Nodes reference their producers, never each other
// cyclically, so the graph is an owned, acyclic dependency DAG and every
// traversal is a rooted walk with explicit visited-set bookkeeping.
//
// Structural mistakes (out-of-range axes, reorders that drop an axis,
// rfactoring a non-reduction) indicate a bug in the calling pass and panic
// with a descriptive message; see the scheduler package for the conversion
// to errors at the API boundary.
package ir

import (
	"fmt"

	. "github.com/gomlx/exceptions"
)

// Fusion owns the nodes of one fusion graph: the unit handed to scheduling
// and, later, to code generation. Nodes are created through NewInput and the
// op constructors (Set, Add, Reduce, ...) and are owned by the Fusion for its
// whole lifetime.
type Fusion struct {
	nodes   []*Node
	inputs  []*Node
	outputs []*Node
	nextId  NodeId
}

// New returns an empty Fusion.
func New() *Fusion {
	return &Fusion{}
}

func (f *Fusion) newNode(op OpType, inputs []*Node, axes []*Axis, name string) *Node {
	if name == "" {
		name = fmt.Sprintf("t%d", f.nextId)
	}
	n := &Node{
		fusion:          f,
		id:              f.nextId,
		name:            name,
		op:              op,
		inputNodes:      inputs,
		axes:            axes,
		root:            append([]*Axis{}, axes...),
		innerContiguous: true,
	}
	f.nextId++
	f.nodes = append(f.nodes, n)
	return n
}

// NewInput creates a fusion input node owning the given axes.
func (f *Fusion) NewInput(name string, axes ...*Axis) *Node {
	for _, a := range axes {
		if a.IsReduction() {
			Panicf("fusion input %q cannot own reduction axes", name)
		}
	}
	n := f.newNode(OpNone, nil, axes, name)
	n.memory = MemoryGlobal
	f.inputs = append(f.inputs, n)
	return n
}

// Nodes returns every node owned by the fusion, in creation order.
func (f *Fusion) Nodes() []*Node { return f.nodes }

// Inputs returns the fusion input nodes.
func (f *Fusion) Inputs() []*Node { return f.inputs }

// Outputs returns the fusion output nodes.
func (f *Fusion) Outputs() []*Node { return f.outputs }

// AddOutput registers n as a fusion output, moving it to global memory.
func (f *Fusion) AddOutput(n *Node) {
	if f.IsOutput(n) {
		return
	}
	n.memory = MemoryGlobal
	f.outputs = append(f.outputs, n)
}

// RemoveOutput removes n from the fusion output list, returning whether it was
// an output. The node itself stays in the graph, back in local memory.
func (f *Fusion) RemoveOutput(n *Node) bool {
	for i, out := range f.outputs {
		if out == n {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			if !n.IsFusionInput() {
				n.memory = MemoryLocal
			}
			return true
		}
	}
	return false
}

// IsOutput returns whether n is a fusion output.
func (f *Fusion) IsOutput(n *Node) bool {
	for _, out := range f.outputs {
		if out == n {
			return true
		}
	}
	return false
}

// IsInput returns whether n is a fusion input.
func (f *Fusion) IsInput(n *Node) bool {
	return n.IsFusionInput()
}

// UsesOf returns the nodes whose definition consumes n, in creation order.
// A consumer appears once even if it consumes n several times.
func (f *Fusion) UsesOf(n *Node) []*Node {
	var uses []*Node
	for _, candidate := range f.nodes {
		for _, in := range candidate.inputNodes {
			if in == n {
				uses = append(uses, candidate)
				break
			}
		}
	}
	return uses
}

// AllDependencyChains returns every producer-to-consumer chain from from to
// to, each chain starting at from and ending at to. It returns nil if to does
// not depend on from.
func (f *Fusion) AllDependencyChains(from, to *Node) [][]*Node {
	var chains [][]*Node
	var path []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		path = append(path, n)
		if n == to {
			chains = append(chains, append([]*Node{}, path...))
		} else {
			for _, use := range f.UsesOf(n) {
				walk(use)
			}
		}
		path = path[:len(path)-1]
	}
	walk(from)
	return chains
}
