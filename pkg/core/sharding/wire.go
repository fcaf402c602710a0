// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"k8s.io/klog/v2"
)

// Field numbers of XLA's OpSharding and ShapeProto messages (xla_data.proto).
const (
	opShardingTypeField                     protowire.Number = 1
	opShardingTileShapeField                protowire.Number = 2
	opShardingTileAssignmentDimensionsField protowire.Number = 3
	opShardingTileAssignmentDevicesField    protowire.Number = 4
	opShardingTupleShardingsField           protowire.Number = 5

	shapeElementTypeField protowire.Number = 2
	shapeDimensionsField  protowire.Number = 3
	shapeTupleShapesField protowire.Number = 4
)

// Marshal the OpSharding in the protobuf binary wire format, compatible with XLA's OpSharding message.
func (p *OpSharding) Marshal() []byte {
	return p.appendWire(nil)
}

func (p *OpSharding) appendWire(b []byte) []byte {
	if p.Type != OpShardingReplicated {
		b = protowire.AppendTag(b, opShardingTypeField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(p.Type)))
	}
	if p.TileShape != nil {
		b = protowire.AppendTag(b, opShardingTileShapeField, protowire.BytesType)
		b = protowire.AppendBytes(b, p.TileShape.appendWire(nil))
	}
	b = appendPackedInt64(b, opShardingTileAssignmentDimensionsField, p.TileAssignmentDimensions)
	b = appendPackedInt64(b, opShardingTileAssignmentDevicesField, p.TileAssignmentDevices)
	for _, element := range p.TupleShardings {
		b = protowire.AppendTag(b, opShardingTupleShardingsField, protowire.BytesType)
		b = protowire.AppendBytes(b, element.appendWire(nil))
	}
	return b
}

// Marshal the ShapeProto in the protobuf binary wire format, compatible with XLA's ShapeProto message.
func (p *ShapeProto) Marshal() []byte {
	return p.appendWire(nil)
}

func (p *ShapeProto) appendWire(b []byte) []byte {
	if p.ElementType != 0 {
		b = protowire.AppendTag(b, shapeElementTypeField, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(p.ElementType)))
	}
	b = appendPackedInt64(b, shapeDimensionsField, p.Dimensions)
	for _, element := range p.TupleShapes {
		b = protowire.AppendTag(b, shapeTupleShapesField, protowire.BytesType)
		b = protowire.AppendBytes(b, element.appendWire(nil))
	}
	return b
}

func appendPackedInt64(b []byte, num protowire.Number, values []int64) []byte {
	if len(values) == 0 {
		return b
	}
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// UnmarshalOpSharding parses an OpSharding from the protobuf binary wire format.
//
// Unknown fields are skipped. Use FromProto to convert the result to a Sharding.
func UnmarshalOpSharding(data []byte) (*OpSharding, error) {
	p := &OpSharding{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case opShardingTypeField:
			v, n, err := consumeVarintField(typ, b)
			p.Type = OpShardingType(int32(v))
			return n, err
		case opShardingTileShapeField:
			msg, n, err := consumeMessageField(typ, b)
			if err != nil {
				return n, err
			}
			p.TileShape, err = unmarshalShapeProto(msg)
			return n, errors.WithMessage(err, "OpSharding.tile_shape")
		case opShardingTileAssignmentDimensionsField:
			var n int
			var err error
			p.TileAssignmentDimensions, n, err = consumeRepeatedInt64(typ, b, p.TileAssignmentDimensions)
			return n, err
		case opShardingTileAssignmentDevicesField:
			var n int
			var err error
			p.TileAssignmentDevices, n, err = consumeRepeatedInt64(typ, b, p.TileAssignmentDevices)
			return n, err
		case opShardingTupleShardingsField:
			msg, n, err := consumeMessageField(typ, b)
			if err != nil {
				return n, err
			}
			element, err := UnmarshalOpSharding(msg)
			if err != nil {
				return n, errors.WithMessagef(err, "OpSharding.tuple_shardings[%d]", len(p.TupleShardings))
			}
			p.TupleShardings = append(p.TupleShardings, element)
			return n, nil
		}
		return skipField(num, typ, b, "OpSharding")
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalShapeProto(data []byte) (*ShapeProto, error) {
	p := &ShapeProto{}
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case shapeElementTypeField:
			v, n, err := consumeVarintField(typ, b)
			p.ElementType = int32(v)
			return n, err
		case shapeDimensionsField:
			var n int
			var err error
			p.Dimensions, n, err = consumeRepeatedInt64(typ, b, p.Dimensions)
			return n, err
		case shapeTupleShapesField:
			msg, n, err := consumeMessageField(typ, b)
			if err != nil {
				return n, err
			}
			element, err := unmarshalShapeProto(msg)
			if err != nil {
				return n, errors.WithMessagef(err, "ShapeProto.tuple_shapes[%d]", len(p.TupleShapes))
			}
			p.TupleShapes = append(p.TupleShapes, element)
			return n, nil
		}
		return skipField(num, typ, b, "ShapeProto")
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// consumeFields calls fieldFn for each field in data, with b pointing right after the field tag.
// fieldFn returns the number of bytes of the field value it consumed.
func consumeFields(data []byte, fieldFn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "invalid field tag")
		}
		data = data[n:]
		n, err := fieldFn(num, typ, data)
		if err != nil {
			return errors.WithMessagef(err, "field #%d", num)
		}
		data = data[n:]
	}
	return nil
}

func consumeVarintField(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errors.Errorf("expected varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, errors.Wrap(protowire.ParseError(n), "invalid varint")
	}
	return v, n, nil
}

func consumeMessageField(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errors.Errorf("expected length-delimited wire type for message, got %d", typ)
	}
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, errors.Wrap(protowire.ParseError(n), "invalid message")
	}
	return msg, n, nil
}

// consumeRepeatedInt64 accepts both packed and unpacked encodings, appending to values.
func consumeRepeatedInt64(typ protowire.Type, b []byte, values []int64) ([]int64, int, error) {
	switch typ {
	case protowire.VarintType:
		v, n, err := consumeVarintField(typ, b)
		if err != nil {
			return values, 0, err
		}
		return append(values, int64(v)), n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return values, 0, errors.Wrap(protowire.ParseError(n), "invalid packed repeated field")
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return values, 0, errors.Wrap(protowire.ParseError(m), "invalid packed varint")
			}
			values = append(values, int64(v))
			packed = packed[m:]
		}
		return values, n, nil
	}
	return values, 0, errors.Errorf("unexpected wire type %d for repeated int64", typ)
}

func skipField(num protowire.Number, typ protowire.Type, b []byte, messageName string) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, errors.Wrapf(protowire.ParseError(n), "invalid value for unknown field #%d", num)
	}
	klog.V(2).Infof("sharding: skipping unknown %s field #%d (wire type %d)", messageName, num, typ)
	return n, nil
}
