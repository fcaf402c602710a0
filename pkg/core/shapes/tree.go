// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Tree holds one value of type T per leaf of a shape, in pre-order.
//
// It is the container used to associate per-leaf information (like a sharding) to the leaves
// of a tuple-shaped value.
type Tree[T any] struct {
	shape   Shape
	indices []Index
	leaves  []T
}

// NewTree creates a Tree for the given shape, with all leaves set to fill.
func NewTree[T any](shape Shape, fill T) *Tree[T] {
	t := &Tree[T]{shape: shape.Clone()}
	for index := range t.shape.Leaves() {
		t.indices = append(t.indices, index)
		t.leaves = append(t.leaves, fill)
	}
	return t
}

// TreeFromLeaves creates a Tree for the given shape, taking the leaf values in pre-order from values.
//
// It returns an error if len(values) is different from shape.LeafCount().
func TreeFromLeaves[T any](shape Shape, values []T) (*Tree[T], error) {
	if numLeaves := shape.LeafCount(); numLeaves != len(values) {
		return nil, errors.Errorf("shape %s has %d leaves, but %d values were given", shape, numLeaves, len(values))
	}
	var zero T
	t := NewTree(shape, zero)
	copy(t.leaves, values)
	return t, nil
}

// Shape returns the shape the tree is aligned to.
func (t *Tree[T]) Shape() Shape { return t.shape }

// NumLeaves returns the number of leaves in the tree.
func (t *Tree[T]) NumLeaves() int { return len(t.leaves) }

// Leaf returns the value of the i-th leaf in pre-order. It panics if i is out-of-range.
func (t *Tree[T]) Leaf(i int) T {
	if i < 0 || i >= len(t.leaves) {
		exceptions.Panicf("Tree.Leaf(%d) out-of-range for tree with %d leaves (shape=%s)", i, len(t.leaves), t.shape)
	}
	return t.leaves[i]
}

// leafPosition returns the pre-order position of the leaf addressed by index.
func (t *Tree[T]) leafPosition(index Index) (int, error) {
	subShape, err := t.shape.SubShape(index)
	if err != nil {
		return 0, err
	}
	if !subShape.IsLeaf() {
		return 0, errors.Errorf("index %s of shape %s refers to a non-leaf node %s", index, t.shape, subShape)
	}
	start, _, err := t.shape.LeafRange(index)
	return start, err
}

// Element returns the value of the leaf addressed by index.
func (t *Tree[T]) Element(index Index) (T, error) {
	pos, err := t.leafPosition(index)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.leaves[pos], nil
}

// Set the value of the leaf addressed by index.
func (t *Tree[T]) Set(index Index, value T) error {
	pos, err := t.leafPosition(index)
	if err != nil {
		return err
	}
	t.leaves[pos] = value
	return nil
}

// Leaves iterates over the leaves in pre-order, yielding their Index and value.
func (t *Tree[T]) Leaves() iter.Seq2[Index, T] {
	return func(yield func(Index, T) bool) {
		for i, value := range t.leaves {
			if !yield(t.indices[i], value) {
				return
			}
		}
	}
}

// Values returns a copy of the leaf values, in pre-order.
func (t *Tree[T]) Values() []T {
	return slices.Clone(t.leaves)
}
