// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"

	. "github.com/gomlx/exceptions"
)

// Extent is the size of one axis: either a compile-time constant or a symbolic
// size resolved at launch time (e.g. an input dimension or "blockDim.x").
type Extent struct {
	size   int64
	symbol string
}

// ConstExtent returns a constant Extent of the given size.
func ConstExtent(size int64) Extent {
	if size <= 0 {
		Panicf("ConstExtent: size must be positive, got %d", size)
	}
	return Extent{size: size}
}

// SymbolicExtent returns an Extent whose size is only known at launch time,
// identified by the given symbol.
func SymbolicExtent(symbol string) Extent {
	if symbol == "" {
		Panicf("SymbolicExtent: empty symbol")
	}
	return Extent{symbol: symbol}
}

// IsConst returns whether the extent is a compile-time constant.
func (e Extent) IsConst() bool { return e.symbol == "" }

// IsOne returns whether the extent is the constant 1.
func (e Extent) IsOne() bool { return e.IsConst() && e.size == 1 }

// Size returns the constant size. It panics if the extent is symbolic.
func (e Extent) Size() int64 {
	if !e.IsConst() {
		Panicf("Extent.Size: extent %q is symbolic", e.symbol)
	}
	return e.size
}

// String implements fmt.Stringer.
func (e Extent) String() string {
	if e.IsConst() {
		return fmt.Sprintf("%d", e.size)
	}
	return e.symbol
}

// ceilDiv returns the extent of the outer part of splitting e by factor.
// Constant folding applies only when both sides are constant.
func ceilDiv(e, factor Extent) Extent {
	if e.IsConst() && factor.IsConst() {
		return ConstExtent((e.size + factor.size - 1) / factor.size)
	}
	return SymbolicExtent(fmt.Sprintf("ceilDiv(%s,%s)", e, factor))
}

// mulExtents returns the extent of merging two adjacent axes.
func mulExtents(a, b Extent) Extent {
	if a.IsConst() && b.IsConst() {
		return ConstExtent(a.size * b.size)
	}
	return SymbolicExtent(fmt.Sprintf("(%s*%s)", a, b))
}

// AxisKind distinguishes reduction axes from plain iteration axes.
type AxisKind int

const (
	// IterationAxis indexes into the produced value.
	IterationAxis AxisKind = iota
	// ReductionAxis is folded away by the node's reduction operation.
	ReductionAxis
)

// String implements fmt.Stringer.
func (k AxisKind) String() string {
	if k == ReductionAxis {
		return "reduction"
	}
	return "iteration"
}

// Axis is one dimension of a node's iteration space. Every axis belongs to
// exactly one Node and never outlives it.
type Axis struct {
	kind      AxisKind
	broadcast bool
	extent    Extent
	ptype     ParallelType
	rfactor   bool
	padToWarp bool
}

// NewAxis returns a serial axis of the given kind and extent.
func NewAxis(kind AxisKind, extent Extent) *Axis {
	return &Axis{kind: kind, extent: extent}
}

// NewBroadcastAxis returns an iteration axis that carries no real extent.
func NewBroadcastAxis() *Axis {
	return &Axis{kind: IterationAxis, extent: ConstExtent(1), broadcast: true}
}

// Kind returns whether the axis is a reduction or iteration axis.
func (a *Axis) Kind() AxisKind { return a.kind }

// IsReduction returns whether the axis is folded by a reduction.
func (a *Axis) IsReduction() bool { return a.kind == ReductionAxis }

// IsBroadcast returns whether the axis carries no real extent. Broadcast axes
// are skipped when translating logical (broadcast-excluding) positions to raw
// positions.
func (a *Axis) IsBroadcast() bool { return a.broadcast }

// IsRFactor returns whether the axis was produced by reduction staging.
func (a *Axis) IsRFactor() bool { return a.rfactor }

// Extent returns the axis size.
func (a *Axis) Extent() Extent { return a.extent }

// ParallelType returns how the axis is executed.
func (a *Axis) ParallelType() ParallelType { return a.ptype }

// Parallelize assigns how the axis is executed.
func (a *Axis) Parallelize(pt ParallelType) { a.ptype = pt }

// IsHardwareParallel returns whether the axis is bound to a grid or block
// hardware dimension.
func (a *Axis) IsHardwareParallel() bool { return a.ptype.IsHardwareDim() }

// PadToMultipleOfWarp requests the axis extent be padded up to a multiple of
// the hardware warp size by the code generator.
func (a *Axis) PadToMultipleOfWarp() { a.padToWarp = true }

// IsPaddedToWarp reports whether PadToMultipleOfWarp was requested.
func (a *Axis) IsPaddedToWarp() bool { return a.padToWarp }

// String implements fmt.Stringer, e.g. "r:BlockDimX{blockDim.x}".
func (a *Axis) String() string {
	prefix := "i"
	if a.IsReduction() {
		prefix = "r"
	}
	if a.broadcast {
		prefix = "b"
	}
	if a.rfactor {
		prefix += "f"
	}
	if a.ptype == Serial {
		return fmt.Sprintf("%s{%s}", prefix, a.extent)
	}
	return fmt.Sprintf("%s:%s{%s}", prefix, a.ptype, a.extent)
}

func (a *Axis) clone() *Axis {
	c := *a
	return &c
}
