// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

func axisWith(kind ir.AxisKind, extent ir.Extent, pt ir.ParallelType) *ir.Axis {
	a := ir.NewAxis(kind, extent)
	a.Parallelize(pt)
	return a
}

func TestAxisOrderKey(t *testing.T) {
	// Outermost to innermost.
	ordered := []*ir.Axis{
		axisWith(ir.IterationAxis, ir.SymbolicExtent("I"), ir.GridDimX),
		axisWith(ir.IterationAxis, ir.SymbolicExtent("I"), ir.BlockDimX),
		axisWith(ir.IterationAxis, ir.ConstExtent(4), ir.Serial),
		axisWith(ir.IterationAxis, ir.SymbolicExtent("I"), ir.Serial),
		axisWith(ir.ReductionAxis, ir.SymbolicExtent("R"), ir.Serial),
		axisWith(ir.IterationAxis, ir.SymbolicExtent("I"), ir.Unswitch),
		axisWith(ir.IterationAxis, ir.SymbolicExtent("I"), ir.Unroll),
		ir.NewBroadcastAxis(),
		axisWith(ir.ReductionAxis, ir.SymbolicExtent("R"), ir.BlockDimX),
		axisWith(ir.ReductionAxis, ir.SymbolicExtent("R"), ir.Unswitch),
		axisWith(ir.ReductionAxis, ir.ConstExtent(8), ir.Serial),
		axisWith(ir.ReductionAxis, ir.SymbolicExtent("R"), ir.Vectorize),
	}
	for i := 0; i+1 < len(ordered); i++ {
		assert.Less(t, axisOrderKey(ordered[i]), axisOrderKey(ordered[i+1]),
			"axis %d (%s) must sort before axis %d (%s)",
			i, ordered[i], i+1, ordered[i+1])
	}
}

func TestAxisOrderKeyConstantWinsOverUnswitch(t *testing.T) {
	// A reduction axis of extent one is classified by its constant extent
	// before its unswitch parallelization: it lands in the constant bucket,
	// together with other constant reduction axes.
	unswitchOne := axisWith(ir.ReductionAxis, ir.ConstExtent(1), ir.Unswitch)
	constant := axisWith(ir.ReductionAxis, ir.ConstExtent(8), ir.Serial)
	unswitchSymbolic := axisWith(ir.ReductionAxis, ir.SymbolicExtent("R"), ir.Unswitch)
	assert.Equal(t, axisOrderKey(constant), axisOrderKey(unswitchOne))
	assert.Less(t, axisOrderKey(unswitchSymbolic), axisOrderKey(unswitchOne))
}

func TestSortAndStage(t *testing.T) {
	f := ir.New()
	in := f.NewInput("t0",
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("I")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("R")))
	red := ir.Reduce(in, 1)

	// Loop nest of a cross-block inner reduction: thread split plus
	// unswitch, grid parallel iteration axis.
	red.Split(1, ir.ParallelDim(ir.BlockDimX), true)
	red.Axis(2).Parallelize(ir.BlockDimX)
	red.Split(1, ir.ConstExtent(1), true)
	red.Axis(2).Parallelize(ir.Unswitch)
	red.Axis(0).Parallelize(ir.GridDimX)

	staged := SortAndStage(red)

	// Canonical order: iteration outermost, then the symbolic reduction
	// remainder, the hardware-parallel reduction, and the constant unswitch
	// innermost.
	require.Equal(t, 4, staged.Rank())
	assert.Equal(t, ir.GridDimX, staged.Axis(0).ParallelType())
	assert.False(t, staged.Axis(0).IsReduction())
	assert.Equal(t, ir.Serial, staged.Axis(1).ParallelType())
	assert.Equal(t, ir.BlockDimX, staged.Axis(2).ParallelType())
	assert.Equal(t, ir.Unswitch, staged.Axis(3).ParallelType())

	// The non-hardware reduction axes were staged into the producer.
	assert.True(t, staged.Axis(1).IsRFactor())
	assert.True(t, staged.Axis(1).IsReduction())
	assert.False(t, staged.Axis(2).IsReduction())
	assert.True(t, staged.Axis(3).IsRFactor())

	// The combiner keeps the iteration axis and the thread-parallel
	// reduction.
	require.Equal(t, 2, red.Rank())
	assert.Equal(t, ir.GridDimX, red.Axis(0).ParallelType())
	assert.Equal(t, ir.BlockDimX, red.Axis(1).ParallelType())
	assert.True(t, red.Axis(1).IsReduction())
	assert.Equal(t, []int{0, 2}, red.StagedAxisMap())
}

func TestSortAndStageSkipsDegenerateUnswitch(t *testing.T) {
	f := ir.New()
	in := f.NewInput("t0",
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("I")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("R")))
	red := ir.Reduce(in, 1)

	// No hardware-parallel reduction axis: every reduction axis is a staging
	// candidate, so the degenerate unswitch axis is left on the combiner.
	red.Split(1, ir.ConstExtent(4), true)
	red.Split(1, ir.ConstExtent(1), true)
	red.Axis(2).Parallelize(ir.Unswitch)
	red.Axis(0).Parallelize(ir.GridDimX)

	staged := SortAndStage(red)
	require.Equal(t, 4, staged.Rank())

	stagedCount := 0
	for _, a := range staged.Axes() {
		if a.IsRFactor() {
			stagedCount++
		}
	}
	assert.Equal(t, 2, stagedCount)
	for _, a := range staged.Axes() {
		if a.ParallelType() == ir.Unswitch {
			assert.False(t, a.IsRFactor())
		}
	}
	require.Equal(t, 2, red.Rank())
	assert.Equal(t, ir.Unswitch, red.Axis(1).ParallelType())
}
