// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape and associated tools used to describe the values a sharding applies to.
//
// Shape represents the shape (rank, dimensions and DType) of an array value, or a tuple of shapes.
// Tuples may be nested, and their leaves (array shapes or empty tuples) are enumerated in pre-order,
// and addressed by an Index (a path of tuple positions). Tree associates one value per leaf of a shape.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of an array.
//   - Axis: the index of a dimension on a multidimensional array.
//   - Dimension: the size of a multi-dimensions array in one of its axes.
//   - DType: the data type of the unit element of an array, see github.com/gomlx/gopjrt/dtypes.
//   - Leaf: a node of a shape without children: either an array shape or an empty tuple.
//
// Example: the multi-dimensional array `[][]int32{{0, 1, 2}, {3, 4, 5}}` has shape `(Int32)[2 3]`, which
// could be created with `shapes.Make(dtypes.Int32, 2, 3)`.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Shape represents the shape of an array value, or of a tuple of values.
//
// Use Make to create a new shape, or MakeTuple for tuples.
type Shape struct {
	DType       dtypes.DType
	Dimensions  []int
	TupleShapes []Shape // Shapes of the tuple, if this is a tuple.
}

// Make returns a Shape structure filled with the values given.
// See MakeTuple for tuple shapes.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// MakeTuple returns a shape representing a tuple of elements with the given shapes.
// The elements are deep copied.
func MakeTuple(elements ...Shape) Shape {
	s := Shape{DType: dtypes.InvalidDType, TupleShapes: make([]Shape, 0, len(elements))}
	for _, element := range elements {
		s.TupleShapes = append(s.TupleShapes, element.Clone())
	}
	return s
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType || s.TupleShapes != nil }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && !s.IsTuple() && s.Rank() == 0 }

// IsTuple returns whether the shape represents a tuple.
func (s Shape) IsTuple() bool { return s.DType == dtypes.InvalidDType && s.TupleShapes != nil }

// TupleSize returns the number of elements in the tuple, if it is a tuple.
func (s Shape) TupleSize() int { return len(s.TupleShapes) }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Size returns the number of elements of DType are needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// IsZeroSize returns whether any of the axes has dimension 0.
func (s Shape) IsZeroSize() bool {
	return slices.Contains(s.Dimensions, 0)
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.IsTuple() {
		parts := make([]string, 0, s.TupleSize())
		for _, tuple := range s.TupleShapes {
			parts = append(parts, tuple.String())
		}
		return fmt.Sprintf("Tuple<%s>", strings.Join(parts, ", "))
	}
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Equal compares two shapes for equality: dtype and dimensions are compared, recursively for tuples.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.IsTuple() != s2.IsTuple() {
		return false
	}
	if s.IsTuple() {
		if s.TupleSize() != s2.TupleSize() {
			return false
		}
		for ii, element := range s.TupleShapes {
			if !element.Equal(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Compatible returns whether the two shapes describe the same values: same element types, same rank and
// same dimensions, recursively for tuples.
//
// Shapes don't carry layout information, so this is the same as Equal: dimensions are always compared,
// even for shapes without a valid dtype.
func (s Shape) Compatible(s2 Shape) bool {
	return s.Equal(s2)
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.IsTuple() != s2.IsTuple() {
		return false
	}
	if s.IsTuple() {
		if s.TupleSize() != s2.TupleSize() {
			return false
		}
		for ii, element := range s.TupleShapes {
			if !element.EqualDimensions(s2.TupleShapes[ii]) {
				return false
			}
		}
		return true
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	if s.TupleShapes != nil {
		s2.TupleShapes = make([]Shape, 0, len(s.TupleShapes))
		for _, subShape := range s.TupleShapes {
			s2.TupleShapes = append(s2.TupleShapes, subShape.Clone())
		}
	}
	return
}
