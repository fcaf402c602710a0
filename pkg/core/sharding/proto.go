// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// OpShardingType is the type of sharding in an OpSharding message.
type OpShardingType int32

//go:generate go tool enumer -type=OpShardingType -trimprefix=OpSharding -text -output=gen_opshardingtype_enumer.go proto.go

const (
	// OpShardingReplicated means the value is replicated on all devices.
	OpShardingReplicated OpShardingType = 0

	// OpShardingMaximal means the value is assigned to a single device.
	OpShardingMaximal OpShardingType = 1

	// OpShardingTuple means the value is a tuple, with one sharding per leaf in TupleShardings.
	OpShardingTuple OpShardingType = 2

	// OpShardingOther means the value is tiled, as described by TileShape and the tile assignment.
	OpShardingOther OpShardingType = 3
)

// primitiveTypeTuple is the XLA PrimitiveType for tuples.
const primitiveTypeTuple = 13

// dtypeForPrimitiveType maps XLA's PrimitiveType numbers back to dtypes.DType: they are not the same
// enumeration, see DType.PrimitiveType.
var dtypeForPrimitiveType = func() map[int32]dtypes.DType {
	m := make(map[int32]dtypes.DType, len(dtypes.DTypeValues()))
	for _, dtype := range dtypes.DTypeValues() {
		if dtype != dtypes.InvalidDType {
			m[int32(dtype.PrimitiveType())] = dtype
		}
	}
	return m
}()

// ShapeProto mirrors XLA's ShapeProto message, without layouts or dynamic dimensions.
type ShapeProto struct {
	// ElementType is XLA's PrimitiveType number: see dtypes.DType.PrimitiveType.
	ElementType int32
	Dimensions  []int64
	TupleShapes []*ShapeProto
}

// OpSharding mirrors XLA's OpSharding message: the serializable form of a Sharding.
//
// See OpSharding.Marshal and UnmarshalOpSharding for the binary wire format.
type OpSharding struct {
	Type OpShardingType

	// TileShape is only set for OpShardingOther.
	TileShape *ShapeProto

	// TileAssignmentDimensions are the dimensions of the tile assignment array, and TileAssignmentDevices its
	// flattened (row-major) contents. For OpShardingMaximal it holds a single device.
	TileAssignmentDimensions []int64
	TileAssignmentDevices    []int64

	// TupleShardings is only set for OpShardingTuple.
	TupleShardings []*OpSharding
}

// ShapeToProto converts a shape to its ShapeProto.
func ShapeToProto(shape shapes.Shape) *ShapeProto {
	if shape.IsTuple() {
		proto := &ShapeProto{ElementType: primitiveTypeTuple, TupleShapes: make([]*ShapeProto, 0, shape.TupleSize())}
		for _, element := range shape.TupleShapes {
			proto.TupleShapes = append(proto.TupleShapes, ShapeToProto(element))
		}
		return proto
	}
	proto := &ShapeProto{ElementType: int32(shape.DType.PrimitiveType())}
	for _, dim := range shape.Dimensions {
		proto.Dimensions = append(proto.Dimensions, int64(dim))
	}
	return proto
}

// ShapeFromProto converts a ShapeProto back to a shape.
func ShapeFromProto(proto *ShapeProto) (shapes.Shape, error) {
	if proto == nil {
		return shapes.Invalid(), errors.New("missing shape")
	}
	if proto.ElementType == primitiveTypeTuple {
		elements := make([]shapes.Shape, 0, len(proto.TupleShapes))
		for i, elementProto := range proto.TupleShapes {
			element, err := ShapeFromProto(elementProto)
			if err != nil {
				return shapes.Invalid(), errors.WithMessagef(err, "tuple shape element #%d", i)
			}
			elements = append(elements, element)
		}
		return shapes.MakeTuple(elements...), nil
	}
	dtype, found := dtypeForPrimitiveType[proto.ElementType]
	if !found {
		return shapes.Invalid(), errors.Errorf("shape has invalid element type %d", proto.ElementType)
	}
	if len(proto.TupleShapes) > 0 {
		return shapes.Invalid(), errors.Errorf("non-tuple shape of element type %s has %d tuple shapes", dtype, len(proto.TupleShapes))
	}
	var dims []int
	for axis, dim := range proto.Dimensions {
		if dim < 0 {
			return shapes.Invalid(), errors.Errorf("shape has invalid dimension %d for axis %d", dim, axis)
		}
		dims = append(dims, int(dim))
	}
	return shapes.Make(dtype, dims...), nil
}

// ToProto converts the sharding to its OpSharding form.
func (s Sharding) ToProto() *OpSharding {
	switch s.kind {
	case KindReplicated:
		return &OpSharding{Type: OpShardingReplicated}
	case KindTileMaximal:
		return &OpSharding{
			Type:                     OpShardingMaximal,
			TileAssignmentDimensions: []int64{1},
			TileAssignmentDevices:    []int64{s.device.Int64()},
		}
	case KindTuple:
		proto := &OpSharding{Type: OpShardingTuple, TupleShardings: make([]*OpSharding, 0, len(s.elements))}
		for _, element := range s.elements {
			proto.TupleShardings = append(proto.TupleShardings, element.ToProto())
		}
		return proto
	}
	proto := &OpSharding{Type: OpShardingOther, TileShape: ShapeToProto(s.tileShape)}
	for _, dim := range s.tileAssignment.Dims() {
		proto.TileAssignmentDimensions = append(proto.TileAssignmentDimensions, int64(dim))
	}
	for _, device := range s.tileAssignment.Flat() {
		proto.TileAssignmentDevices = append(proto.TileAssignmentDevices, int64(device))
	}
	return proto
}

// FromProto creates a Sharding from its OpSharding form.
//
// It returns an error for malformed messages, e.g.: tile assignment dimensions that don't match the number
// of devices, tuples without elements or with nested tuples, tiled shardings with reserved devices.
func FromProto(proto *OpSharding) (Sharding, error) {
	if proto == nil {
		return Sharding{}, errors.New("sharding.FromProto(nil)")
	}
	switch proto.Type {
	case OpShardingTuple:
		if len(proto.TupleShardings) == 0 {
			return Sharding{}, errors.New("tuple OpSharding has no elements: empty tuples take one placeholder element")
		}
		elements := make([]Sharding, 0, len(proto.TupleShardings))
		for i, elementProto := range proto.TupleShardings {
			element, err := FromProto(elementProto)
			if err != nil {
				return Sharding{}, errors.WithMessagef(err, "tuple OpSharding element #%d", i)
			}
			if element.IsTuple() {
				return Sharding{}, errors.Errorf("tuple OpSharding element #%d is itself a tuple, elements must be the flat list of leaves", i)
			}
			elements = append(elements, element)
		}
		return Sharding{kind: KindTuple, elements: elements}, nil

	case OpShardingReplicated:
		return Replicate(), nil

	case OpShardingMaximal:
		if len(proto.TileAssignmentDevices) != 1 {
			return Sharding{}, errors.Errorf("maximal OpSharding is expected to have a single device assignment, but %d were given",
				len(proto.TileAssignmentDevices))
		}
		device, err := DeviceFromInt64(proto.TileAssignmentDevices[0])
		if err != nil {
			return Sharding{}, errors.WithMessage(err, "maximal OpSharding")
		}
		return AssignDevice(device), nil

	case OpShardingOther:
		return tiledFromProto(proto)
	}
	return Sharding{}, errors.Errorf("unknown OpSharding type %d", proto.Type)
}

func tiledFromProto(proto *OpSharding) (Sharding, error) {
	if proto.TileShape == nil {
		if len(proto.TileAssignmentDevices) == 1 {
			// Legacy form of a device assignment.
			klog.V(2).Infof("sharding.FromProto: converting OpSharding of type OTHER with a single device and no tile shape to a maximal sharding")
			device, err := DeviceFromInt64(proto.TileAssignmentDevices[0])
			if err != nil {
				return Sharding{}, errors.WithMessage(err, "OpSharding")
			}
			return AssignDevice(device), nil
		}
		return Sharding{}, errors.New("tiled OpSharding is missing its tile shape")
	}
	tileShape, err := ShapeFromProto(proto.TileShape)
	if err != nil {
		return Sharding{}, errors.WithMessage(err, "tiled OpSharding tile shape")
	}
	if tileShape.IsTuple() {
		return Sharding{}, errors.Errorf("tiled OpSharding has tuple tile shape %s", tileShape)
	}
	dims := make([]int, 0, len(proto.TileAssignmentDimensions))
	for _, dim := range proto.TileAssignmentDimensions {
		dims = append(dims, int(dim))
	}
	devices := make([]int, 0, len(proto.TileAssignmentDevices))
	for _, device := range proto.TileAssignmentDevices {
		if device < 0 {
			return Sharding{}, errors.Errorf("tiled OpSharding has invalid device %d: reserved devices can only be used in maximal shardings", device)
		}
		devices = append(devices, int(device))
	}
	tileAssignment, err := ndarray.FromFlat(dims, devices)
	if err != nil {
		return Sharding{}, errors.WithMessage(err, "tiled OpSharding tile assignment")
	}
	return Sharding{kind: KindTiled, tileShape: tileShape, tileAssignment: tileAssignment}, nil
}
