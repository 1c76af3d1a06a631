// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowy07/Fuser/pkg/core/ir"
)

func newInnerReductionFusion(t *testing.T) (*ir.Fusion, *ir.Node) {
	t.Helper()
	f := ir.New()
	in := f.NewInput("t0",
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("I")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("R")))
	red := ir.Reduce(in, 1)
	out := ir.Set(red)
	f.AddOutput(out)
	return f, red
}

func parallelTypesOf(n *ir.Node) []ir.ParallelType {
	types := make([]ir.ParallelType, 0, n.Rank())
	for _, a := range n.Axes() {
		types = append(types, a.ParallelType())
	}
	return types
}

func TestScheduleCrossBlockInnerReduction(t *testing.T) {
	_, red := newInnerReductionFusion(t)
	params := &ReductionParams{
		FastestDim:               true,
		CrossBlockInnerReduction: true,
		BlockDimInnerReduction:   ir.BlockDimX,
		GridDimIterDom:           ir.GridDimX,
	}

	staged := ScheduleReductionNode(params, red, true)
	require.NotSame(t, red, staged)

	// [iter grid, reduction remainder, thread reduction, unswitch]
	require.Equal(t, 4, staged.Rank())
	assert.Equal(t,
		[]ir.ParallelType{ir.GridDimX, ir.Serial, ir.BlockDimX, ir.Unswitch},
		parallelTypesOf(staged))
	assert.True(t, staged.Axis(1).IsRFactor())
	assert.False(t, staged.Axis(2).IsReduction())
	assert.True(t, staged.Axis(3).IsRFactor())
	assert.True(t, staged.Axis(3).Extent().IsOne())

	require.Equal(t, 2, red.Rank())
	assert.Equal(t, []ir.ParallelType{ir.GridDimX, ir.BlockDimX}, parallelTypesOf(red))
}

func TestSchedulePadsCrossBlockSplitToWarp(t *testing.T) {
	_, red := newInnerReductionFusion(t)
	params := &ReductionParams{
		FastestDim:               true,
		CrossBlockInnerReduction: true,
		BlockDimInnerReduction:   ir.BlockDimX,
		GridDimIterDom:           ir.GridDimX,
		PadInnerReductionToWarp:  true,
	}

	staged := ScheduleReductionNode(params, red, true)

	for _, a := range staged.Axes() {
		assert.Equal(t, a.ParallelType() == ir.BlockDimX, a.IsPaddedToWarp())
	}
	require.Equal(t, ir.BlockDimX, red.Axis(1).ParallelType())
	assert.True(t, red.Axis(1).IsPaddedToWarp())
}

func TestScheduleVectorizedPersistentReduction(t *testing.T) {
	_, red := newInnerReductionFusion(t)
	params := &ReductionParams{
		FastestDim:                    true,
		Persistent:                    true,
		VectorizeInnerReduction:       true,
		UnrollFactorInnerReduction:    4,
		BatchesPerBlockInnerReduction: 8,
		CrossBlockInnerReduction:      true,
		BlockDimInnerReduction:        ir.BlockDimX,
		GridDimIterDom:                ir.GridDimX,
	}

	staged := ScheduleReductionNode(params, red, true)

	// [iter grid, thread reduction, persistent batch, unswitch, vectorize]
	require.Equal(t, 5, staged.Rank())
	assert.Equal(t,
		[]ir.ParallelType{ir.GridDimX, ir.BlockDimX, ir.Serial, ir.Unswitch, ir.Vectorize},
		parallelTypesOf(staged))
	assert.Equal(t, int64(8), staged.Axis(2).Extent().Size())
	assert.Equal(t, int64(4), staged.Axis(4).Extent().Size())
	assert.True(t, staged.Axis(2).IsRFactor())
	assert.True(t, staged.Axis(3).IsRFactor())
	assert.True(t, staged.Axis(4).IsRFactor())

	// Only the thread-parallel reduction axis stays on the combiner.
	require.Equal(t, 2, red.Rank())
	assert.Equal(t, []ir.ParallelType{ir.GridDimX, ir.BlockDimX}, parallelTypesOf(red))
	assert.True(t, red.Axis(1).IsReduction())
}

func TestScheduleOuterGridPersistence(t *testing.T) {
	f := ir.New()
	in := f.NewInput("t0",
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("I")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("R")))
	red := ir.Reduce(in, 1)
	f.AddOutput(ir.Set(red))

	params := &ReductionParams{
		FastestDim:                    false,
		Persistent:                    true,
		CrossGridInnerReduction:       true,
		GridDimInnerReduction:         ir.GridDimY,
		BlockDimInnerReduction:        ir.BlockDimY,
		BatchesPerBlockInnerReduction: 4,
		UnrollFactorInnerReduction:    4,
		VectorizeIterDom:              true,
		UnrollFactorIterDom:           2,
		BlockDimIterDom:               ir.BlockDimX,
		GridDimIterDom:                ir.GridDimX,
		StaticBlockDimX:               true,
		StaticBlockDimY:               true,
		Launch:                        LaunchParams{BlockDimX: 32, BlockDimY: 8},
	}
	require.True(t, params.IsOuterGridPersistence())

	staged := ScheduleReductionNode(params, red, true)

	// The vectorized iteration axis ends up innermost even though the
	// canonical order puts reduction axes after it.
	require.Equal(t, 7, staged.Rank())
	assert.Equal(t,
		[]ir.ParallelType{
			ir.GridDimX, ir.BlockDimX, ir.GridDimY, ir.Unswitch,
			ir.Serial, ir.BlockDimY, ir.Vectorize,
		},
		parallelTypesOf(staged))
	assert.Equal(t, int64(2), staged.Axis(6).Extent().Size())
	assert.False(t, staged.Axis(6).IsReduction())
	assert.Equal(t, int64(4), staged.Axis(4).Extent().Size())
	assert.True(t, staged.Axis(3).IsRFactor())
	assert.True(t, staged.Axis(4).IsRFactor())
	assert.Equal(t, int64(8), staged.Axis(5).Extent().Size())
	assert.False(t, staged.Axis(5).IsReduction())

	// Grid and block reduction axes stay on the combiner.
	require.Equal(t, 5, red.Rank())
	redTypes := parallelTypesOf(red)
	assert.Contains(t, redTypes, ir.GridDimY)
	assert.Contains(t, redTypes, ir.BlockDimY)
}

func TestSchedule3DOuterReduction(t *testing.T) {
	f := ir.New()
	in := f.NewInput("t0",
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("I")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("Ro")),
		ir.NewAxis(ir.IterationAxis, ir.SymbolicExtent("Ri")))
	red := ir.Reduce(in, 1, 2)
	f.AddOutput(ir.Set(red))

	params := &ReductionParams{
		FastestDim:               true,
		Schedule3D:               true,
		CrossBlockInnerReduction: true,
		BlockDimInnerReduction:   ir.BlockDimX,
		CrossBlockOuterReduction: true,
		BlockDimOuterReduction:   ir.BlockDimY,
		GridDimIterDom:           ir.GridDimX,
	}

	staged := ScheduleReductionNode(params, red, true)

	types := parallelTypesOf(staged)
	assert.Contains(t, types, ir.BlockDimX)
	assert.Contains(t, types, ir.BlockDimY)
	assert.Contains(t, types, ir.Unswitch)

	// Both thread-parallel reduction axes stay on the combiner.
	require.Equal(t, 3, red.Rank())
	assert.ElementsMatch(t,
		[]ir.ParallelType{ir.GridDimX, ir.BlockDimX, ir.BlockDimY},
		parallelTypesOf(red))
}

func TestSchedulePreconditions(t *testing.T) {
	testCases := []struct {
		name        string
		params      *ReductionParams
		hasIterAxis bool
	}{
		{
			name: "vectorized iteration domain on inner reduction",
			params: &ReductionParams{
				FastestDim:       true,
				VectorizeIterDom: true,
			},
			hasIterAxis: true,
		},
		{
			name: "vectorized reduction domain on outer reduction",
			params: &ReductionParams{
				VectorizeInnerReduction: true,
			},
			hasIterAxis: true,
		},
		{
			name: "multiple reductions per block without iteration axis",
			params: &ReductionParams{
				FastestDim:         true,
				MultipleRedsPerBlk: true,
			},
		},
		{
			name: "iteration unroll without iteration axis",
			params: &ReductionParams{
				FastestDim:          true,
				UnrollFactorIterDom: 2,
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, red := newInnerReductionFusion(t)
			require.Panics(t, func() {
				ScheduleReductionNode(testCase.params, red, testCase.hasIterAxis)
			})
		})
	}
}
