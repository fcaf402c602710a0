// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/pkg/errors"
)

// checkLeafCount checks that the number of elements of the tuple sharding matches the leaves of shape.
func (s Sharding) checkLeafCount(shape shapes.Shape) error {
	if !shape.IsTuple() {
		return errors.Errorf("sharding %s is a tuple, but shape %s is not", s, shape)
	}
	if numLeaves := shape.LeafCount(); numLeaves != len(s.elements) {
		return errors.Errorf("tuple sharding has %d elements, but shape %s has %d leaves", len(s.elements), shape, numLeaves)
	}
	return nil
}

// AsShapeTree returns a tree with the sharding of each leaf of shape.
//
// For tuple shardings, the elements are assigned to the leaves in pre-order, and it returns an error if their
// number doesn't match shape.LeafCount(). Non-tuple shardings are assigned to every leaf of the shape: for a
// non-tuple shape that is the single root leaf.
func (s Sharding) AsShapeTree(shape shapes.Shape) (*shapes.Tree[Sharding], error) {
	if !s.IsTuple() {
		return shapes.NewTree(shape, s), nil
	}
	if err := s.checkLeafCount(shape); err != nil {
		return nil, err
	}
	return shapes.TreeFromLeaves(shape, s.elements)
}

// SubSharding returns the sharding of the sub-value addressed by index in a value of the given tuple shape.
//
// If index addresses a sub-tuple, it returns a tuple sharding with the leaves of that sub-tuple.
//
// It panics if the sharding is not a tuple, if it doesn't match shape, or if the index is invalid.
func (s Sharding) SubSharding(shape shapes.Shape, index shapes.Index) Sharding {
	s.requireTuple("SubSharding")
	if err := s.checkLeafCount(shape); err != nil {
		panic(errors.WithMessagef(err, "Sharding.SubSharding(%s, %s)", shape, index))
	}
	subShape, err := shape.SubShape(index)
	if err != nil {
		panic(errors.WithMessage(err, "Sharding.SubSharding()"))
	}
	start, count, err := shape.LeafRange(index)
	if err != nil {
		panic(errors.WithMessage(err, "Sharding.SubSharding()"))
	}
	if subShape.IsTuple() {
		return newTuple(s.elements[start : start+count])
	}
	return s.elements[start]
}

// TupleSharding returns a tuple sharding for the given tuple shape.
//
// If the sharding is already a tuple, it is returned as is (after checking it matches shape).
// Otherwise, it returns a tuple sharding with this sharding on every leaf of shape.
//
// It returns an error if shape is not a tuple, or if a tuple sharding doesn't match the shape.
func (s Sharding) TupleSharding(shape shapes.Shape) (Sharding, error) {
	if s.IsTuple() {
		if err := s.checkLeafCount(shape); err != nil {
			return Sharding{}, err
		}
		return s, nil
	}
	if !shape.IsTuple() {
		return Sharding{}, errors.Errorf("cannot create tuple sharding for non-tuple shape %s", shape)
	}
	elements := make([]Sharding, shape.LeafCount())
	for i := range elements {
		elements[i] = s
	}
	return Sharding{kind: KindTuple, elements: elements}, nil
}

// ExtractSingleSharding returns the sharding common to the whole value.
//
// For non-tuple shardings, it returns itself. For tuples, it returns the common element if all elements are
// equal. Otherwise, it returns false.
func (s Sharding) ExtractSingleSharding() (Sharding, bool) {
	if !s.IsTuple() {
		return s, true
	}
	if len(s.elements) == 0 {
		return Sharding{}, false
	}
	first := s.elements[0]
	if !slices.ContainsFunc(s.elements[1:], func(element Sharding) bool { return !element.Equal(first) }) {
		return first, true
	}
	return Sharding{}, false
}

// GetAsShapeTree is like AsShapeTree, but it panics on error.
func (s Sharding) GetAsShapeTree(shape shapes.Shape) *shapes.Tree[Sharding] {
	tree, err := s.AsShapeTree(shape)
	if err != nil {
		exceptions.Panicf("Sharding.GetAsShapeTree(%s): %+v", shape, err)
	}
	return tree
}
