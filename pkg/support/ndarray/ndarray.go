// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ndarray implements Array, a small dense multi-dimensional container stored in row-major order.
//
// It's used to hold device assignments (one device per tile) and is not meant for numeric computation:
// use tensors for that.
package ndarray

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Array is a dense multi-dimensional array of values of type T.
//
// The zero value is not usable, use New, NewFilled, FromFlat or Iota to create one.
type Array[T comparable] struct {
	dims   []int
	values []T
}

func checkedSize(dims []int) (int, error) {
	size := 1
	for axis, dim := range dims {
		if dim < 0 {
			return 0, errors.Errorf("invalid dimension %d for axis %d in %v", dim, axis, dims)
		}
		if dim != 0 && size > math.MaxInt/dim {
			return 0, errors.Errorf("dimensions %v overflow the number of elements of an array", dims)
		}
		size *= dim
	}
	return size, nil
}

// New creates an Array with the given dimensions, filled with the zero value of T.
func New[T comparable](dims ...int) *Array[T] {
	var zero T
	return NewFilled(zero, dims...)
}

// NewFilled creates an Array with the given dimensions, with all elements set to value.
func NewFilled[T comparable](value T, dims ...int) *Array[T] {
	size, err := checkedSize(dims)
	if err != nil {
		exceptions.Panicf("ndarray.NewFilled: %v", err)
	}
	a := &Array[T]{dims: slices.Clone(dims), values: make([]T, size)}
	for i := range a.values {
		a.values[i] = value
	}
	return a
}

// FromFlat creates an Array with the given dimensions, taking the values in row-major order.
// The values are copied.
//
// It returns an error if len(values) doesn't match the size implied by dims.
func FromFlat[T comparable](dims []int, values []T) (*Array[T], error) {
	size, err := checkedSize(dims)
	if err != nil {
		return nil, err
	}
	if size != len(values) {
		return nil, errors.Errorf("array of dimensions %v requires %d values, got %d", dims, size, len(values))
	}
	return &Array[T]{dims: slices.Clone(dims), values: slices.Clone(values)}, nil
}

// Iota creates an int Array with the given dimensions, with values 0, 1, 2, ... in row-major order.
func Iota(dims ...int) *Array[int] {
	a := New[int](dims...)
	for i := range a.values {
		a.values[i] = i
	}
	return a
}

// Dims returns a copy of the dimensions of the array.
func (a *Array[T]) Dims() []int { return slices.Clone(a.dims) }

// Dim returns the dimension of the given axis.
func (a *Array[T]) Dim(axis int) int {
	if axis < 0 || axis >= len(a.dims) {
		exceptions.Panicf("Array.Dim(%d) out-of-bounds for rank %d", axis, len(a.dims))
	}
	return a.dims[axis]
}

// Rank returns the number of axes.
func (a *Array[T]) Rank() int { return len(a.dims) }

// Size returns the total number of elements.
func (a *Array[T]) Size() int { return len(a.values) }

func (a *Array[T]) flatIndex(index []int) int {
	if len(index) != len(a.dims) {
		exceptions.Panicf("index %v has rank %d, but array has rank %d (dims=%v)", index, len(index), len(a.dims), a.dims)
	}
	flat := 0
	for axis, pos := range index {
		if pos < 0 || pos >= a.dims[axis] {
			exceptions.Panicf("index %v out-of-bounds for array of dimensions %v", index, a.dims)
		}
		flat = flat*a.dims[axis] + pos
	}
	return flat
}

// At returns the element at the given multi-dimensional index. It panics if the index is out-of-bounds.
func (a *Array[T]) At(index ...int) T {
	return a.values[a.flatIndex(index)]
}

// Set the element at the given multi-dimensional index. It panics if the index is out-of-bounds.
//
// Arrays shared with other owners (e.g. embedded in a sharding) must not be modified.
func (a *Array[T]) Set(value T, index ...int) {
	a.values[a.flatIndex(index)] = value
}

// Flat returns a copy of the values in row-major order.
func (a *Array[T]) Flat() []T { return slices.Clone(a.values) }

// All iterates over all elements in row-major order, yielding the multi-dimensional index and the value.
//
// The yielded index is owned by the iterator: don't change it inside the loop.
func (a *Array[T]) All() iter.Seq2[[]int, T] {
	return func(yield func([]int, T) bool) {
		for flatIdx, index := range shapes.IterDims(a.dims) {
			if !yield(index, a.values[flatIdx]) {
				return
			}
		}
	}
}

// Find returns the multi-dimensional index of the element equal to value and the number of elements
// equal to it. If count != 1, index refers to the first occurrence, or is nil if there are none.
func (a *Array[T]) Find(value T) (index []int, count int) {
	for idx, v := range a.All() {
		if v != value {
			continue
		}
		if count == 0 {
			index = slices.Clone(idx)
		}
		count++
	}
	return
}

// FindFunc returns the multi-dimensional index of the first element (in row-major order) for which fn returns true.
func (a *Array[T]) FindFunc(fn func(T) bool) (index []int, found bool) {
	for idx, v := range a.All() {
		if fn(v) {
			return slices.Clone(idx), true
		}
	}
	return nil, false
}

// Contains returns whether any element is equal to value.
func (a *Array[T]) Contains(value T) bool {
	return slices.Contains(a.values, value)
}

// Equal returns whether both arrays have the same dimensions and elements.
func (a *Array[T]) Equal(other *Array[T]) bool {
	if a == nil || other == nil {
		return a == other
	}
	return slices.Equal(a.dims, other.dims) && slices.Equal(a.values, other.values)
}

// Clone returns a deep copy of the array.
func (a *Array[T]) Clone() *Array[T] {
	if a == nil {
		return nil
	}
	return &Array[T]{dims: slices.Clone(a.dims), values: slices.Clone(a.values)}
}

// String implements fmt.Stringer, e.g. "[2,2]{0,1,2,3}".
func (a *Array[T]) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, dim := range a.dims {
		if i > 0 {
			sb.WriteByte(',')
		}
		_, _ = fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]{")
	for i, v := range a.values {
		if i > 0 {
			sb.WriteByte(',')
		}
		_, _ = fmt.Fprintf(&sb, "%v", v)
	}
	sb.WriteByte('}')
	return sb.String()
}
