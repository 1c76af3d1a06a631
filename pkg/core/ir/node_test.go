// Copyright 2026 The Fuser Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAndMerge(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, ConstExtent(16)))
	n := Set(in)

	n.Split(0, ConstExtent(4), true)
	require.Equal(t, 2, n.Rank())
	assert.Equal(t, int64(4), n.Axis(0).Extent().Size())
	assert.Equal(t, int64(4), n.Axis(1).Extent().Size())
	assert.True(t, n.IsTransformed())

	n.Split(0, ConstExtent(3), false)
	require.Equal(t, 3, n.Rank())
	assert.Equal(t, int64(3), n.Axis(0).Extent().Size())
	assert.Equal(t, int64(2), n.Axis(1).Extent().Size())

	n.Merge(0)
	require.Equal(t, 2, n.Rank())
	assert.Equal(t, int64(6), n.Axis(0).Extent().Size())
}

func TestSplitSymbolicExtent(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, SymbolicExtent("N")))
	n := Set(in)

	n.Split(0, ConstExtent(8), true)
	require.Equal(t, 2, n.Rank())
	assert.False(t, n.Axis(0).Extent().IsConst())
	assert.Equal(t, int64(8), n.Axis(1).Extent().Size())
}

func TestSplitInheritsKind(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(8)),
		NewAxis(IterationAxis, ConstExtent(32)))
	red := Reduce(in, 1)

	red.Split(1, ConstExtent(4), true)
	require.Equal(t, 3, red.Rank())
	assert.False(t, red.Axis(0).IsReduction())
	assert.True(t, red.Axis(1).IsReduction())
	assert.True(t, red.Axis(2).IsReduction())
	assert.Equal(t, Serial, red.Axis(2).ParallelType())
}

func TestReorder(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(2)),
		NewAxis(IterationAxis, ConstExtent(3)),
		NewAxis(IterationAxis, ConstExtent(5)))
	n := Set(in)

	// Partial map: unmapped axes fill the holes preserving order.
	n.Reorder(map[int]int{2: 0})
	assert.Equal(t, int64(5), n.Axis(0).Extent().Size())
	assert.Equal(t, int64(2), n.Axis(1).Extent().Size())
	assert.Equal(t, int64(3), n.Axis(2).Extent().Size())

	// Negative positions count from the end.
	n.Reorder(map[int]int{0: -1})
	assert.Equal(t, int64(5), n.Axis(-1).Extent().Size())

	require.Panics(t, func() { n.Reorder(map[int]int{0: 1, 2: 1}) })
}

func TestMergeRequiresSameKind(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(4)),
		NewAxis(IterationAxis, ConstExtent(8)))
	red := Reduce(in, 1)
	require.Panics(t, func() { red.Merge(0) })
}

func TestSiblingsMirrorTransforms(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(8)),
		NewAxis(IterationAxis, ConstExtent(32)))
	avg, variance, count := Welford(in, 1)

	avg.Split(1, ConstExtent(4), true)
	avg.Reorder(map[int]int{0: 1, 1: 0})
	for _, sibling := range []*Node{variance, count} {
		require.Equal(t, 3, sibling.Rank())
		assert.True(t, sibling.Axis(0).IsReduction())
		assert.Equal(t, int64(8), sibling.Axis(1).Extent().Size())
		assert.Equal(t, int64(4), sibling.Axis(2).Extent().Size())
	}
}

func TestRFactor(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(16)),
		NewAxis(IterationAxis, ConstExtent(32)))
	red := Reduce(in, 1)
	red.Split(1, ConstExtent(4), true)

	producer := red.RFactor([]int{1})
	require.Equal(t, 3, producer.Rank())
	assert.True(t, producer.Axis(1).IsReduction())
	assert.True(t, producer.Axis(1).IsRFactor())
	// The non-staged reduction axis becomes an iteration axis on the producer.
	assert.False(t, producer.Axis(2).IsReduction())

	require.Equal(t, 2, red.Rank())
	assert.True(t, red.Axis(1).IsReduction())
	assert.Equal(t, []int{0, 2}, red.StagedAxisMap())
	require.Equal(t, []*Node{producer}, red.Inputs())
	assert.True(t, red.IsTransformed())

	// Staging a non-reduction axis is rejected.
	require.Panics(t, func() { Reduce(Set(in), 1).RFactor([]int{0}) })
}

func TestRFactorMirrorsSiblings(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(16)),
		NewAxis(IterationAxis, ConstExtent(32)))
	avg, variance, _ := Welford(in, 1)
	avg.Split(1, ConstExtent(4), true)

	producer := avg.RFactor([]int{1})
	require.Equal(t, 2, avg.Rank())
	require.Equal(t, 2, variance.Rank())
	require.Len(t, variance.Inputs(), 1)
	assert.True(t, variance.Inputs()[0].Axis(1).IsRFactor())
	// The staged producers are siblings of each other.
	assert.Contains(t, producer.Siblings(), variance.Inputs()[0])
}

func TestReorderRemapsStagingMap(t *testing.T) {
	f := New()
	in := f.NewInput("t0",
		NewAxis(IterationAxis, ConstExtent(16)),
		NewAxis(IterationAxis, ConstExtent(32)))
	red := Reduce(in, 1)
	red.Split(1, ConstExtent(4), true)

	producer := red.RFactor([]int{1})
	require.Equal(t, []int{0, 2}, red.StagedAxisMap())

	producer.Reorder(map[int]int{0: -1})
	// Producer is now [staged, non-staged, iter], the map follows.
	assert.Equal(t, []int{2, 1}, red.StagedAxisMap())
	assert.False(t, producer.Axis(red.StagedAxisMap()[0]).IsReduction())
	assert.Equal(t, int64(4), producer.Axis(red.StagedAxisMap()[1]).Extent().Size())
}

func TestCacheAfter(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, ConstExtent(16)))
	consumer := Neg(in)

	cache := in.CacheAfter()
	assert.Equal(t, OpSet, cache.Op())
	require.Equal(t, []*Node{in}, cache.Inputs())
	require.Equal(t, []*Node{cache}, consumer.Inputs())
}

func TestCacheBefore(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, ConstExtent(16)))
	out := Neg(in)
	f.AddOutput(out)

	cache := out.CacheBefore()
	assert.Equal(t, OpNeg, cache.Op())
	assert.Equal(t, OpSet, out.Op())
	require.Equal(t, []*Node{cache}, out.Inputs())
	require.Equal(t, []*Node{in}, cache.Inputs())
	assert.True(t, f.IsOutput(out))

	require.Panics(t, func() { in.CacheBefore() })
}

func TestRecomputeAndReplaceInput(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, ConstExtent(16)))
	buffer := Neg(in)
	user := Add(buffer, in)

	replicate := Recompute(buffer)
	require.NotSame(t, buffer, replicate)
	assert.Equal(t, OpNeg, replicate.Op())
	// Recomputation stops at fusion inputs.
	require.Equal(t, []*Node{in}, replicate.Inputs())

	ReplaceInput(user, buffer, replicate)
	require.Equal(t, []*Node{replicate, in}, user.Inputs())
	require.Panics(t, func() { ReplaceInput(user, buffer, replicate) })
}

func TestAllDependencyChains(t *testing.T) {
	f := New()
	in := f.NewInput("t0", NewAxis(IterationAxis, ConstExtent(16)))
	a := Set(in)
	b := Neg(a)
	c := Neg(a)
	d := Add(b, c)

	chains := f.AllDependencyChains(a, d)
	require.Len(t, chains, 2)
	for _, chain := range chains {
		assert.Same(t, a, chain[0])
		assert.Same(t, d, chain[len(chain)-1])
	}
	assert.Empty(t, f.AllDependencyChains(d, a))
}
