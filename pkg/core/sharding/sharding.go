// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sharding implements Sharding, the HLO description of how a value is split across the devices
// participating in a computation.
//
// A Sharding is one of:
//
//   - Replicated: every device holds the full value.
//   - TileMaximal: the value is not split, and the one tile (the whole value) is assigned to a single device.
//     The device can be a real device, or one of the reserved Host or Unassigned devices.
//   - Tiled: the value is split into tiles of a given tile shape, and each tile is assigned to a distinct device,
//     given by a tile assignment array. Values not a multiple of the tile size in any dimension are implicitly
//     padded to the tile size.
//   - Tuple: for tuple-shaped values, one (non-tuple) sharding per leaf of the tuple shape, in pre-order.
//
// Shardings are immutable values: all transformations return new values, and they can be shared
// across goroutines without synchronization.
//
// Errors in the data (malformed protos, shardings that don't fit a shape) are returned as errors.
// Calling an operation that doesn't apply to the kind of sharding (e.g. Sharding.UniqueDevice on a replicated
// sharding) is a bug in the caller, and it panics (see github.com/gomlx/exceptions).
package sharding

import (
	"encoding/binary"
	"hash/fnv"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/pkg/errors"
)

// Kind of Sharding.
type Kind int

//go:generate go tool enumer -type=Kind -trimprefix=Kind -text -output=gen_kind_enumer.go sharding.go

const (
	// KindReplicated is the kind of Replicate shardings. It's the kind of the zero Sharding value.
	KindReplicated Kind = iota

	// KindTileMaximal is the kind of AssignDevice shardings.
	KindTileMaximal

	// KindTiled is the kind of Tile shardings.
	KindTiled

	// KindTuple is the kind of Tuple shardings.
	KindTuple
)

// Sharding describes how a value is split across devices. See package documentation for details.
//
// The zero value is a replicated sharding.
type Sharding struct {
	kind Kind

	// device is only set for KindTileMaximal.
	device Device

	// tileShape and tileAssignment are only set for KindTiled.
	tileShape      shapes.Shape
	tileAssignment *ndarray.Array[int]

	// elements is the flat list of the leaf shardings, in pre-order, only set for KindTuple.
	elements []Sharding
}

// Replicate returns a sharding that replicates the value across all devices.
func Replicate() Sharding {
	return Sharding{kind: KindReplicated}
}

// AssignDevice returns a sharding that emulates device placement: one tile equal to the whole value,
// assigned to a single device.
func AssignDevice(device Device) Sharding {
	return Sharding{kind: KindTileMaximal, device: device}
}

// Tile creates a sharding which splits a value into tiles of shape tileShape. Each tile is assigned to
// one device, specified by tileAssignment, indexed by the tile position.
// Values not a multiple of the tile size in any dimension are implicitly padded to the tile size.
//
// E.g.: Tile(f32[2,2], [[0, 1]]) on a value of shape f32[2,3] would look like:
//
//	    2     1 padding
//	 <------><->
//	 +----+----+
//	 | 0  |  1 |
//	 +----+----+
//
// Both tileShape and tileAssignment are copied. Only the parts that don't depend on the value are checked here:
// it panics if tileShape is not an array shape with a valid dtype, or if a device in tileAssignment is negative
// (reserved devices can only be used with AssignDevice). Use Sharding.Validate against the shape of the value.
func Tile(tileShape shapes.Shape, tileAssignment *ndarray.Array[int]) Sharding {
	if tileAssignment == nil {
		exceptions.Panicf("sharding.Tile(%s, nil): tile assignment must be given", tileShape)
	}
	if tileShape.IsTuple() || tileShape.DType == dtypes.InvalidDType {
		exceptions.Panicf("sharding.Tile(%s, ...): tile shape must be an array shape with a valid dtype", tileShape)
	}
	if index, found := tileAssignment.FindFunc(func(device int) bool { return device < 0 }); found {
		exceptions.Panicf("sharding.Tile(%s, ...): invalid device %d at tile %v, tiled shardings only take devices >= 0",
			tileShape, tileAssignment.At(index...), index)
	}
	return Sharding{kind: KindTiled, tileShape: tileShape.Clone(), tileAssignment: tileAssignment.Clone()}
}

// Tile1D creates a sharding which splits the rank-1 shape into numTiles contiguous tiles, tile i assigned
// to device i. The last tile is padded if the dimension is not a multiple of numTiles.
//
// It panics if shape is not a rank-1 array shape with a valid dtype, or if numTiles <= 0.
func Tile1D(shape shapes.Shape, numTiles int) Sharding {
	if shape.IsTuple() || shape.DType == dtypes.InvalidDType || shape.Rank() != 1 {
		exceptions.Panicf("sharding.Tile1D(%s, %d): shape must be of rank 1, with a valid dtype", shape, numTiles)
	}
	if numTiles <= 0 {
		exceptions.Panicf("sharding.Tile1D(%s, %d): number of tiles must be > 0", shape, numTiles)
	}
	tileDim := ceilOfRatio(shape.Dimensions[0], numTiles)
	return Sharding{
		kind:           KindTiled,
		tileShape:      shapes.Make(shape.DType, tileDim),
		tileAssignment: ndarray.Iota(numTiles),
	}
}

// Tuple creates a sharding for a tuple-shaped value, given the leaf shardings of tupleShape in pre-order.
//
// The number of elements must match tupleShape.LeafCount(): notice an empty tuple is its own leaf, so it
// takes exactly one (placeholder) sharding. Elements themselves cannot be tuple shardings.
func Tuple(tupleShape shapes.Shape, elements ...Sharding) (Sharding, error) {
	if !tupleShape.IsTuple() {
		return Sharding{}, errors.Errorf("sharding.Tuple(): shape %s is not a tuple", tupleShape)
	}
	if numLeaves := tupleShape.LeafCount(); numLeaves != len(elements) {
		return Sharding{}, errors.Errorf("sharding.Tuple(): tuple shape %s has %d leaves, but %d shardings were given",
			tupleShape, numLeaves, len(elements))
	}
	for i, element := range elements {
		if element.IsTuple() {
			return Sharding{}, errors.Errorf("sharding.Tuple(): element #%d is itself a tuple sharding %s, elements must be leaf shardings",
				i, element)
		}
	}
	return newTuple(elements), nil
}

// TupleFromTree creates a tuple sharding from a tree with the shardings of each leaf of a tuple shape.
//
// It panics if any of the leaves holds a tuple sharding.
func TupleFromTree(tree *shapes.Tree[Sharding]) Sharding {
	elements := tree.Values()
	for index, element := range tree.Leaves() {
		if element.IsTuple() {
			exceptions.Panicf("sharding.TupleFromTree(): leaf %s holds tuple sharding %s", index, element)
		}
	}
	return newTuple(elements)
}

// newTuple copies elements into a new tuple sharding.
func newTuple(elements []Sharding) Sharding {
	return Sharding{kind: KindTuple, elements: slices.Clone(elements)}
}

// Kind returns the kind of sharding.
func (s Sharding) Kind() Kind { return s.kind }

// IsTuple returns whether the sharding is for a tuple.
func (s Sharding) IsTuple() bool { return s.kind == KindTuple }

// IsReplicated returns whether the sharding is trivial: replicated on all devices.
// For tuples, it returns whether all elements are replicated.
func (s Sharding) IsReplicated() bool {
	if s.kind != KindTuple {
		return s.kind == KindReplicated
	}
	for _, element := range s.elements {
		if !element.IsReplicated() {
			return false
		}
	}
	return true
}

// IsTileMaximal returns whether the tile is the whole value, that is, the sharding is either replicated or
// assigned to a single device. For tuples, it returns whether all elements are tile-maximal.
func (s Sharding) IsTileMaximal() bool {
	if s.kind != KindTuple {
		return s.kind == KindReplicated || s.kind == KindTileMaximal
	}
	for _, element := range s.elements {
		if !element.IsTileMaximal() {
			return false
		}
	}
	return true
}

// TileShape returns the shape of the tiles. It panics if the sharding is not Tiled.
func (s Sharding) TileShape() shapes.Shape {
	if s.kind != KindTiled {
		exceptions.Panicf("Sharding.TileShape() called on %s sharding %s", s.kind, s)
	}
	return s.tileShape.Clone()
}

// TileAssignment returns a copy of the array of devices, indexed by tile position.
// For TileMaximal shardings of a real device, it returns a single element array with its device.
//
// It panics for replicated and tuple shardings, and for shardings on reserved devices.
func (s Sharding) TileAssignment() *ndarray.Array[int] {
	switch s.kind {
	case KindTiled:
		return s.tileAssignment.Clone()
	case KindTileMaximal:
		return ndarray.NewFilled(s.device.ID(), 1)
	}
	exceptions.Panicf("Sharding.TileAssignment() called on %s sharding %s", s.kind, s)
	return nil
}

// Elements returns a copy of the flat list of leaf shardings of a tuple sharding, in pre-order.
// It panics if the sharding is not a tuple.
func (s Sharding) Elements() []Sharding {
	s.requireTuple("Elements")
	return slices.Clone(s.elements)
}

// NumElements returns the number of leaf shardings of a tuple sharding. It panics if the sharding is not a tuple.
func (s Sharding) NumElements() int {
	s.requireTuple("NumElements")
	return len(s.elements)
}

func (s Sharding) requireTuple(method string) {
	if s.kind != KindTuple {
		exceptions.Panicf("Sharding.%s() requires a tuple sharding, got %s", method, s)
	}
}

func (s Sharding) requireNonTuple(method string) {
	if s.kind == KindTuple {
		exceptions.Panicf("Sharding.%s() requires a non-tuple sharding, got %s", method, s)
	}
}

// Equal returns whether both shardings are structurally equal: same kind, same devices, same
// tile assignments and compatible tile shapes.
func (s Sharding) Equal(other Sharding) bool {
	if s.kind != other.kind {
		return false
	}
	switch s.kind {
	case KindTileMaximal:
		return s.device == other.device
	case KindTiled:
		return s.tileShape.Equal(other.tileShape) && s.tileAssignment.Equal(other.tileAssignment)
	case KindTuple:
		return slices.EqualFunc(s.elements, other.elements, Sharding.Equal)
	}
	return true
}

// Hash returns a hash of the sharding, consistent with Equal: a.Equal(b) implies a.Hash() == b.Hash().
func (s Sharding) Hash() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	write := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	write(int64(s.kind))
	switch s.kind {
	case KindTileMaximal:
		write(s.device.Int64())
	case KindTiled:
		write(int64(s.tileShape.DType))
		write(int64(s.tileShape.Rank()))
		for _, dim := range s.tileShape.Dimensions {
			write(int64(dim))
		}
		write(int64(s.tileAssignment.Rank()))
		for _, dim := range s.tileAssignment.Dims() {
			write(int64(dim))
		}
		for _, device := range s.tileAssignment.Flat() {
			write(int64(device))
		}
	case KindTuple:
		write(int64(len(s.elements)))
		for _, element := range s.elements {
			write(int64(element.Hash()))
		}
	}
	return h.Sum64()
}

func ceilOfRatio(a, b int) int {
	return (a + b - 1) / b
}
