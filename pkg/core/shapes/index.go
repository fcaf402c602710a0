// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Index addresses a sub-shape of a (possibly nested) tuple shape: it's the path of tuple positions
// starting from the root. The empty Index refers to the shape itself.
type Index []int

// String implements fmt.Stringer, e.g. "{0,2}".
func (idx Index) String() string {
	parts := make([]string, len(idx))
	for i, pos := range idx {
		parts[i] = strconv.Itoa(pos)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// IsLeaf returns whether the shape has no children: that is, it's an array shape or an empty tuple.
func (s Shape) IsLeaf() bool {
	return !s.IsTuple() || s.TupleSize() == 0
}

// LeafCount returns the number of leaves of the shape: 1 for an array shape or an empty tuple, and the
// sum of the leaves of the elements for other tuples.
func (s Shape) LeafCount() int {
	if s.IsLeaf() {
		return 1
	}
	count := 0
	for _, element := range s.TupleShapes {
		count += element.LeafCount()
	}
	return count
}

// SubShape returns the shape addressed by index.
// It returns an error if the index doesn't refer to a node of the shape.
func (s Shape) SubShape(index Index) (Shape, error) {
	current := s
	for depth, pos := range index {
		if !current.IsTuple() {
			return Invalid(), errors.Errorf("invalid index %s for shape %s: position %d refers into non-tuple shape %s",
				index, s, depth, current)
		}
		if pos < 0 || pos >= current.TupleSize() {
			return Invalid(), errors.Errorf("invalid index %s for shape %s: position %d is out-of-bounds for tuple of size %d",
				index, s, depth, current.TupleSize())
		}
		current = current.TupleShapes[pos]
	}
	return current, nil
}

// LeafRange returns the pre-order position of the first leaf under the node addressed by index, and how many
// leaves there are under that node.
func (s Shape) LeafRange(index Index) (start, count int, err error) {
	current := s
	for depth, pos := range index {
		if !current.IsTuple() || pos < 0 || pos >= current.TupleSize() {
			return 0, 0, errors.Errorf("invalid index %s for shape %s (at position %d)", index, s, depth)
		}
		for _, sibling := range current.TupleShapes[:pos] {
			start += sibling.LeafCount()
		}
		current = current.TupleShapes[pos]
	}
	return start, current.LeafCount(), nil
}

// Leaves iterates over the leaves of the shape in pre-order, yielding each leaf Index and its shape.
//
// The yielded Index is a fresh copy, and can be kept by the caller.
func (s Shape) Leaves() iter.Seq2[Index, Shape] {
	return func(yield func(Index, Shape) bool) {
		walkLeaves(s, nil, yield)
	}
}

// walkLeaves returns false if the iteration was interrupted.
func walkLeaves(s Shape, prefix Index, yield func(Index, Shape) bool) bool {
	if s.IsLeaf() {
		return yield(append(Index{}, prefix...), s)
	}
	for pos, element := range s.TupleShapes {
		if !walkLeaves(element, append(prefix, pos), yield) {
			return false
		}
	}
	return true
}
