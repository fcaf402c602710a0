// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	. "github.com/gomlx/hlosharding/pkg/core/sharding"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nestedShape is (f32[4], (s32[], ()), f32[6,2])
func nestedShape() shapes.Shape {
	return shapes.MakeTuple(
		shapes.Make(dtypes.Float32, 4),
		shapes.MakeTuple(shapes.Make(dtypes.Int32), shapes.MakeTuple()),
		shapes.Make(dtypes.Float32, 6, 2))
}

func nestedSharding(t *testing.T) Sharding {
	s, err := Tuple(nestedShape(),
		Tile1D(shapes.Make(dtypes.Float32, 4), 2),
		AssignDevice(Real(1)),
		Replicate(),
		tiled([]int{3, 2}, []int{2, 1}, 1, 0))
	require.NoError(t, err)
	return s
}

func TestTuple(t *testing.T) {
	s := nestedSharding(t)
	require.Equal(t, 4, s.NumElements())
	require.True(t, s.Elements()[1].Equal(AssignDevice(Real(1))))

	// Wrong number of elements.
	_, err := Tuple(nestedShape(), Replicate(), Replicate())
	require.Error(t, err)

	// Non-tuple shape.
	_, err = Tuple(shapes.Make(dtypes.Float32, 2), Replicate())
	require.Error(t, err)

	// Nested tuple elements.
	_, err = Tuple(shapes.MakeTuple(shapes.Make(dtypes.Float32)), s)
	require.Error(t, err)

	// An empty tuple requires exactly one placeholder element.
	empty := shapes.MakeTuple()
	_, err = Tuple(empty)
	require.Error(t, err)
	_, err = Tuple(empty, Replicate(), Replicate())
	require.Error(t, err)
	placeholder, err := Tuple(empty, AssignDevice(Unassigned))
	require.NoError(t, err)
	require.NoError(t, placeholder.Validate(empty, 1))
}

func TestAsShapeTree(t *testing.T) {
	s := nestedSharding(t)
	shape := nestedShape()
	tree, err := s.AsShapeTree(shape)
	require.NoError(t, err)
	require.Equal(t, 4, tree.NumLeaves())
	leaf, err := tree.Element(shapes.Index{2})
	require.NoError(t, err)
	assert.True(t, leaf.Equal(s.Elements()[3]))
	assert.True(t, TupleFromTree(tree).Equal(s))

	_, err = s.AsShapeTree(shapes.MakeTuple(shapes.Make(dtypes.Float32)))
	require.Error(t, err)
	_, err = s.AsShapeTree(shapes.Make(dtypes.Float32))
	require.Error(t, err)
	assert.Panics(t, func() { _ = s.GetAsShapeTree(shapes.Make(dtypes.Float32)) })

	// Non-tuple shardings fill every leaf.
	tree, err = AssignDevice(Real(2)).AsShapeTree(shape)
	require.NoError(t, err)
	for _, leaf := range tree.Leaves() {
		assert.True(t, leaf.Equal(AssignDevice(Real(2))))
	}
	tree, err = Replicate().AsShapeTree(shapes.Make(dtypes.Float32, 3))
	require.NoError(t, err)
	require.Equal(t, 1, tree.NumLeaves())

	// Trees with tuple leaves can't become tuple shardings.
	assert.Panics(t, func() { _ = TupleFromTree(shapes.NewTree(shape, s)) })
}

func TestSubSharding(t *testing.T) {
	s := nestedSharding(t)
	shape := nestedShape()

	assert.True(t, s.SubSharding(shape, shapes.Index{0}).Equal(s.Elements()[0]))
	assert.True(t, s.SubSharding(shape, shapes.Index{1, 0}).Equal(AssignDevice(Real(1))))
	assert.True(t, s.SubSharding(shape, shapes.Index{2}).Equal(s.Elements()[3]))

	sub := s.SubSharding(shape, shapes.Index{1})
	require.True(t, sub.IsTuple())
	want := must.M1(Tuple(shapes.MakeTuple(shapes.Make(dtypes.Int32), shapes.MakeTuple()), AssignDevice(Real(1)), Replicate()))
	assert.True(t, sub.Equal(want), "got %s, want %s", sub, want)

	// The empty tuple sub-value is itself a tuple.
	sub = s.SubSharding(shape, shapes.Index{1, 1})
	require.True(t, sub.IsTuple())
	assert.Equal(t, 1, sub.NumElements())

	assert.Panics(t, func() { _ = Replicate().SubSharding(shape, shapes.Index{0}) })
	assert.Panics(t, func() { _ = s.SubSharding(shape, shapes.Index{3}) })
	assert.Panics(t, func() { _ = s.SubSharding(shapes.MakeTuple(shapes.Make(dtypes.Float32)), shapes.Index{0}) })
}

func TestTupleShardingAndExtract(t *testing.T) {
	shape := nestedShape()
	for _, s := range []Sharding{Replicate(), AssignDevice(Real(3)), AssignDevice(Host), Tile1D(shapes.Make(dtypes.Float32, 4), 2)} {
		tuple, err := s.TupleSharding(shape)
		require.NoError(t, err)
		require.True(t, tuple.IsTuple())
		require.Equal(t, shape.LeafCount(), tuple.NumElements())
		single, ok := tuple.ExtractSingleSharding()
		require.True(t, ok)
		assert.True(t, single.Equal(s), "extracted %s, wanted %s", single, s)

		// Promotion is idempotent.
		again, err := tuple.TupleSharding(shape)
		require.NoError(t, err)
		assert.True(t, again.Equal(tuple))

		// Non-tuple shardings extract themselves.
		single, ok = s.ExtractSingleSharding()
		require.True(t, ok)
		assert.True(t, single.Equal(s))
	}

	_, err := Replicate().TupleSharding(shapes.Make(dtypes.Float32, 2))
	require.Error(t, err)
	_, err = nestedSharding(t).TupleSharding(shapes.MakeTuple(shapes.Make(dtypes.Float32)))
	require.Error(t, err)

	// No common sharding: different from a common replicated sharding.
	_, ok := nestedSharding(t).ExtractSingleSharding()
	assert.False(t, ok)
	allReplicated := must.M1(Replicate().TupleSharding(shape))
	single, ok := allReplicated.ExtractSingleSharding()
	assert.True(t, ok)
	assert.True(t, single.IsReplicated())
}
