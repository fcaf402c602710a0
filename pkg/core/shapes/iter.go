// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"
)

// Strides returns the strides for each axis of the shape, assuming a "row-major" layout.
//
// Notice the strides are **not in bytes**, but in indices.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	if s.IsZeroSize() {
		// Some axis is zero-dimension.
		return
	}
	currentStride := 1
	for dim := rank - 1; dim >= 0; dim-- {
		strides[dim] = currentStride
		currentStride *= s.Dimensions[dim]
	}
	return
}

// Iter iterates sequentially over all possible indices of the given shape, in row-major order.
//
// It yields the flat index (counter) and a slice of indices for each axis.
//
// To avoid allocating the slice of indices, the yielded indices is owned by the Iter() method:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return IterDims(s.Dimensions)
}

// IterDims is like Shape.Iter, but takes the dimensions directly, for containers that don't carry a DType.
func IterDims(dimensions []int) iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		rank := len(dimensions)
		indices := make([]int, rank)
		if rank == 0 {
			// Scalar: yield one empty index slice.
			_ = yield(0, indices)
			return
		}
		for _, dimSize := range dimensions {
			if dimSize <= 0 {
				return
			}
		}

		flatIdx := 0
	yielder:
		for {
			if !yield(flatIdx, indices) {
				return // Consumer requested to stop iteration.
			}
			flatIdx++

			// Increment indices to the next set of coordinates
			// (row-major order: the last index changes fastest).
			for axis := rank - 1; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < dimensions[axis] {
					continue yielder
				}
				// Carry-over to the next higher-order axis.
				indices[axis] = 0
			}
			// The first axis also overflowed: iteration is complete.
			return
		}
	}
}
