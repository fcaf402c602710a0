// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
)

// TileIndexForDevice returns the index of the tile that should be executed on the given device.
//
// For TileMaximal shardings there is only one tile, with index {0}.
//
// It panics for tuple or replicated shardings, or if the device doesn't appear exactly once in the
// tile assignment.
func (s Sharding) TileIndexForDevice(device Device) []int {
	s.requireNonTuple("TileIndexForDevice")
	switch s.kind {
	case KindReplicated:
		exceptions.Panicf("Sharding.TileIndexForDevice(%s) called on replicated sharding, which has no per-device tiles", device)
	case KindTileMaximal:
		return []int{0}
	}
	if device.IsReserved() {
		exceptions.Panicf("Sharding.TileIndexForDevice(%s): reserved devices are never part of tiled sharding %s", device, s)
	}
	index, count := s.tileAssignment.Find(device.ID())
	if count != 1 {
		exceptions.Panicf("Sharding.TileIndexForDevice(%s): device found %d times in the tile assignment of %s, expected exactly once",
			device, count, s)
	}
	return index
}

// DeviceForTileIndex returns the device that should execute the tile with the given index.
//
// It panics for tuple or replicated shardings, or if the index is out-of-bounds.
func (s Sharding) DeviceForTileIndex(index ...int) Device {
	s.requireNonTuple("DeviceForTileIndex")
	switch s.kind {
	case KindReplicated:
		exceptions.Panicf("Sharding.DeviceForTileIndex(%v) called on replicated sharding, which has no single device per tile", index)
	case KindTileMaximal:
		return s.device
	}
	return Real(s.tileAssignment.At(index...))
}

// TileOffsetForDevice returns the offset (lower extent, inclusive) of the tile executed on the given device,
// within the index space of a value of the given shape.
//
// For tile-maximal (including replicated) shardings the tile is the whole value, so the offset is all zeros.
//
// It panics for tuple shardings, if the device is not in the tile assignment, or if the rank of the
// tile shape is different from the rank of shape.
func (s Sharding) TileOffsetForDevice(shape shapes.Shape, device Device) []int {
	s.requireNonTuple("TileOffsetForDevice")
	offset := make([]int, shape.Rank())
	if s.IsTileMaximal() {
		return offset
	}
	s.requireTileRank("TileOffsetForDevice", shape)
	index := s.TileIndexForDevice(device)
	for axis := range offset {
		offset[axis] = index[axis] * s.tileShape.Dimensions[axis]
	}
	return offset
}

// TileLimitForDevice returns the limit (upper extent, exclusive) of the tile executed on the given device,
// within the index space of a value of the given shape.
//
// The limit is clamped to the shape's dimensions, so the padding of the last tiles on each axis is not included.
// For tile-maximal (including replicated) shardings the tile is the whole value, so the limit is the shape's
// dimensions.
//
// It panics in the same cases as TileOffsetForDevice.
func (s Sharding) TileLimitForDevice(shape shapes.Shape, device Device) []int {
	s.requireNonTuple("TileLimitForDevice")
	limit := make([]int, shape.Rank())
	copy(limit, shape.Dimensions)
	if s.IsTileMaximal() {
		return limit
	}
	s.requireTileRank("TileLimitForDevice", shape)
	index := s.TileIndexForDevice(device)
	for axis := range limit {
		limit[axis] = min((index[axis]+1)*s.tileShape.Dimensions[axis], shape.Dimensions[axis])
	}
	return limit
}

func (s Sharding) requireTileRank(method string, shape shapes.Shape) {
	if shape.IsTuple() || shape.Rank() != s.tileShape.Rank() || s.tileAssignment.Rank() != shape.Rank() {
		exceptions.Panicf("Sharding.%s(): shape %s doesn't match rank of tile shape %s and tile assignment dimensions %v",
			method, shape, s.tileShape, s.tileAssignment.Dims())
	}
}

// HasUniqueDevice returns whether the sharding executes on a single device.
//
// That's the case for TileMaximal shardings, and for tuples whose elements all execute on the same single device.
func (s Sharding) HasUniqueDevice() bool {
	_, ok := s.uniqueDevice()
	return ok
}

// UniqueDevice returns the single device the sharding executes on.
//
// It panics if HasUniqueDevice() is false.
func (s Sharding) UniqueDevice() Device {
	device, ok := s.uniqueDevice()
	if !ok {
		exceptions.Panicf("Sharding.UniqueDevice() called on sharding %s that doesn't execute on a single device", s)
	}
	return device
}

func (s Sharding) uniqueDevice() (Device, bool) {
	switch s.kind {
	case KindTileMaximal:
		return s.device, true
	case KindTuple:
		if len(s.elements) == 0 {
			return Device{}, false
		}
		device, ok := s.elements[0].uniqueDevice()
		if !ok {
			return Device{}, false
		}
		for _, element := range s.elements[1:] {
			if elementDevice, ok := element.uniqueDevice(); !ok || elementDevice != device {
				return Device{}, false
			}
		}
		return device, true
	}
	return Device{}, false
}

// UsesDevice returns whether the sharding executes anything on the given device.
//
// Replicated shardings execute on every device. For tuples, it returns whether any element uses the device.
func (s Sharding) UsesDevice(device Device) bool {
	switch s.kind {
	case KindReplicated:
		return true
	case KindTileMaximal:
		return s.device == device
	case KindTiled:
		return !device.IsReserved() && s.tileAssignment.Contains(device.ID())
	}
	for _, element := range s.elements {
		if element.UsesDevice(device) {
			return true
		}
	}
	return false
}

// UsedDevices returns a histogram of the devices used by the sharding: a map of device to the number of tiles
// assigned to it. Replicated shardings are not tied to specific devices, and contribute no entries.
// Tuples aggregate the histograms of their elements.
//
// It also returns the number of elements the sharding is made of: one for non-tuple shardings, and the number of
// leaves for tuples.
func (s Sharding) UsedDevices() (histogram map[Device]int, count int) {
	histogram = make(map[Device]int)
	s.accumulateDevices(histogram)
	count = 1
	if s.kind == KindTuple {
		count = len(s.elements)
	}
	return
}

func (s Sharding) accumulateDevices(histogram map[Device]int) {
	switch s.kind {
	case KindTileMaximal:
		histogram[s.device]++
	case KindTiled:
		for _, id := range s.tileAssignment.Flat() {
			histogram[Real(id)]++
		}
	case KindTuple:
		for _, element := range s.elements {
			element.accumulateDevices(histogram)
		}
	}
}

// TransformShardedTileShape returns a new sharding that can apply to a value of shape newShape.
//
// If this sharding is tile-maximal, it is returned unchanged. Otherwise, the returned sharding has the same
// tile assignment, and a new tile shape (with newShape's DType) where:
//
//   - Axes that are not split (a single tile on the axis) get the dimension of newShape, so they are still not split.
//   - Split axes keep their tile dimension, unless transform is given, in which case the new
//     tile dimension is transform(axis, tileDimension).
//
// It panics for tuple shardings, or if the rank of newShape is different from the rank of the tile shape.
func (s Sharding) TransformShardedTileShape(newShape shapes.Shape, transform func(axis, tileDim int) int) Sharding {
	s.requireNonTuple("TransformShardedTileShape")
	if s.IsTileMaximal() {
		return s
	}
	s.requireTileRank("TransformShardedTileShape", newShape)
	dims := make([]int, newShape.Rank())
	for axis := range dims {
		switch {
		case s.tileAssignment.Dim(axis) == 1:
			dims[axis] = newShape.Dimensions[axis]
		case transform != nil:
			dims[axis] = transform(axis, s.tileShape.Dimensions[axis])
		default:
			dims[axis] = s.tileShape.Dimensions[axis]
		}
	}
	return Sharding{
		kind:           KindTiled,
		tileShape:      shapes.Make(newShape.DType, dims...),
		tileAssignment: s.tileAssignment,
	}
}
