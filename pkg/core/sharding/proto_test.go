// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	. "github.com/gomlx/hlosharding/pkg/core/sharding"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func protoTestShardings(t *testing.T) map[string]Sharding {
	return map[string]Sharding{
		"replicated":         Replicate(),
		"maximal":            AssignDevice(Real(7)),
		"maximal-host":       AssignDevice(Host),
		"maximal-unassigned": AssignDevice(Unassigned),
		"tiled":              tiled([]int{2, 2}, []int{2, 1}, 1, 0),
		"tiled-3d":           tiled([]int{1, 2, 3}, []int{4, 1, 2}, 7, 6, 5, 4, 3, 2, 1, 0),
		"tiled-1d":           Tile1D(shapes.Make(dtypes.BFloat16, 10), 4),
		"tiled-c64":          Tile(shapes.Make(dtypes.Complex64, 3), must.M1(ndarray.FromFlat([]int{2}, []int{1, 0}))),
		"tiled-f8":           Tile(shapes.Make(dtypes.F8E4M3FN, 1, 4), must.M1(ndarray.FromFlat([]int{2, 1}, []int{0, 1}))),
		"tuple":              nestedSharding(t),
		"tuple-placeholder":  must.M1(Tuple(shapes.MakeTuple(), AssignDevice(Unassigned))),
	}
}

func TestProto(t *testing.T) {
	for name, s := range protoTestShardings(t) {
		t.Run(name, func(t *testing.T) {
			proto := s.ToProto()
			got, err := FromProto(proto)
			require.NoError(t, err)
			assert.True(t, got.Equal(s), "got %s, want %s", got, s)
			assert.Equal(t, s.Hash(), got.Hash())
		})
	}

	// Details of the proto forms.
	proto := AssignDevice(Host).ToProto()
	assert.Equal(t, OpShardingMaximal, proto.Type)
	assert.Equal(t, []int64{1}, proto.TileAssignmentDimensions)
	assert.Equal(t, []int64{-1}, proto.TileAssignmentDevices)

	proto = tiled([]int{2, 2}, []int{2, 1}, 1, 0).ToProto()
	assert.Equal(t, OpShardingOther, proto.Type)
	assert.Equal(t, int32(dtypes.Float32.PrimitiveType()), proto.TileShape.ElementType)
	assert.Equal(t, []int64{2, 2}, proto.TileShape.Dimensions)
	assert.Equal(t, []int64{2, 1}, proto.TileAssignmentDimensions)
	assert.Equal(t, []int64{1, 0}, proto.TileAssignmentDevices)

	proto = nestedSharding(t).ToProto()
	assert.Equal(t, OpShardingTuple, proto.Type)
	assert.Len(t, proto.TupleShardings, 4)
}

func TestFromProtoLegacyAndErrors(t *testing.T) {
	// OTHER with a single device and no tile shape is a device assignment.
	s, err := FromProto(&OpSharding{Type: OpShardingOther, TileAssignmentDimensions: []int64{1}, TileAssignmentDevices: []int64{3}})
	require.NoError(t, err)
	assert.True(t, s.Equal(AssignDevice(Real(3))))

	f32x4 := ShapeToProto(shapes.Make(dtypes.Float32, 4))
	badProtos := map[string]*OpSharding{
		"nil":             nil,
		"unknown-type":    {Type: 17},
		"empty-tuple":     {Type: OpShardingTuple},
		"nested-tuple":    {Type: OpShardingTuple, TupleShardings: []*OpSharding{{Type: OpShardingTuple, TupleShardings: []*OpSharding{{}}}}},
		"bad-element":     {Type: OpShardingTuple, TupleShardings: []*OpSharding{{}, {Type: 17}}},
		"maximal-empty":   {Type: OpShardingMaximal},
		"maximal-2":       {Type: OpShardingMaximal, TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
		"maximal-invalid": {Type: OpShardingMaximal, TileAssignmentDimensions: []int64{1}, TileAssignmentDevices: []int64{-3}},
		"no-tile-shape":   {Type: OpShardingOther, TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
		"size-mismatch":   {Type: OpShardingOther, TileShape: f32x4, TileAssignmentDimensions: []int64{3}, TileAssignmentDevices: []int64{0, 1}},
		"reserved-tiled":  {Type: OpShardingOther, TileShape: f32x4, TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, -1}},
		"tuple-tile-shape": {Type: OpShardingOther, TileShape: ShapeToProto(shapes.MakeTuple()),
			TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
		"invalid-dtype": {Type: OpShardingOther, TileShape: &ShapeProto{Dimensions: []int64{2}},
			TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
		"unknown-dtype": {Type: OpShardingOther, TileShape: &ShapeProto{ElementType: 1000, Dimensions: []int64{2}},
			TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
		"overflowing-assignment": {Type: OpShardingOther, TileShape: f32x4, TileAssignmentDimensions: []int64{1 << 32, 1 << 32}},
		"negative-dim": {Type: OpShardingOther, TileShape: &ShapeProto{ElementType: int32(dtypes.Float32.PrimitiveType()), Dimensions: []int64{-2}},
			TileAssignmentDimensions: []int64{2}, TileAssignmentDevices: []int64{0, 1}},
	}
	for name, proto := range badProtos {
		t.Run(name, func(t *testing.T) {
			_, err := FromProto(proto)
			require.Error(t, err)
		})
	}
}

func TestShapeProtoElementTypes(t *testing.T) {
	// Element types are encoded with XLA's PrimitiveType numbers, which differ from the dtypes.DType values.
	for primitiveType, dtype := range map[int32]dtypes.DType{1: dtypes.Bool, 11: dtypes.Float32, 15: dtypes.Complex64, 16: dtypes.BFloat16} {
		assert.Equal(t, primitiveType, ShapeToProto(shapes.Make(dtype, 2)).ElementType, "dtype %s", dtype)
	}
	for _, dtype := range dtypes.DTypeValues() {
		if dtype == dtypes.InvalidDType {
			continue
		}
		shape := shapes.Make(dtype, 2, 3)
		proto := ShapeToProto(shape)
		require.Equal(t, int32(dtype.PrimitiveType()), proto.ElementType, "dtype %s", dtype)
		got, err := ShapeFromProto(proto)
		require.NoError(t, err, "dtype %s", dtype)
		assert.True(t, got.Equal(shape), "got %s, want %s", got, shape)

		// And through the wire.
		s := Tile(shapes.Make(dtype, 1, 3), must.M1(ndarray.FromFlat([]int{2, 1}, []int{1, 0})))
		wireProto, err := UnmarshalOpSharding(s.ToProto().Marshal())
		require.NoError(t, err)
		parsed, err := FromProto(wireProto)
		require.NoError(t, err, "dtype %s", dtype)
		assert.True(t, parsed.Equal(s), "got %s, want %s", parsed, s)
	}
}

func TestShapeProto(t *testing.T) {
	for _, shape := range []shapes.Shape{
		shapes.Make(dtypes.Float32),
		shapes.Make(dtypes.Int64, 3, 1, 7),
		shapes.MakeTuple(),
		nestedShape(),
	} {
		got, err := ShapeFromProto(ShapeToProto(shape))
		require.NoError(t, err)
		assert.True(t, got.Equal(shape), "got %s, want %s", got, shape)
	}
	_, err := ShapeFromProto(nil)
	require.Error(t, err)
	_, err = ShapeFromProto(&ShapeProto{ElementType: int32(dtypes.Float32), TupleShapes: []*ShapeProto{{}}})
	require.Error(t, err)
}

func TestWire(t *testing.T) {
	for name, s := range protoTestShardings(t) {
		t.Run(name, func(t *testing.T) {
			data := s.ToProto().Marshal()
			proto, err := UnmarshalOpSharding(data)
			require.NoError(t, err)
			assert.Equal(t, s.ToProto(), proto)
			got, err := FromProto(proto)
			require.NoError(t, err)
			assert.True(t, got.Equal(s), "got %s, want %s", got, s)
		})
	}

	// Replicated is the default: all fields are omitted.
	assert.Empty(t, Replicate().ToProto().Marshal())
	proto, err := UnmarshalOpSharding(nil)
	require.NoError(t, err)
	assert.Equal(t, OpShardingReplicated, proto.Type)

	// Known encoding of a maximal sharding on device 3: type=1, dims=[1], devices=[3].
	assert.Equal(t, []byte{0x08, 0x01, 0x1a, 0x01, 0x01, 0x22, 0x01, 0x03}, AssignDevice(Real(3)).ToProto().Marshal())
}

func TestWireCompatibility(t *testing.T) {
	// Unpacked repeated fields and unknown fields, as written by other encoders.
	var data []byte
	data = protowire.AppendTag(data, 1, protowire.VarintType)
	data = protowire.AppendVarint(data, uint64(OpShardingOther))
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("ignored"))
	shapeBytes := ShapeToProto(shapes.Make(dtypes.Float32, 2)).Marshal()
	data = protowire.AppendTag(data, 2, protowire.BytesType)
	data = protowire.AppendBytes(data, shapeBytes)
	data = protowire.AppendTag(data, 3, protowire.VarintType)
	data = protowire.AppendVarint(data, 2)
	for _, device := range []uint64{1, 0} {
		data = protowire.AppendTag(data, 4, protowire.VarintType)
		data = protowire.AppendVarint(data, device)
	}
	data = protowire.AppendTag(data, 12, protowire.VarintType) // Unknown field.
	data = protowire.AppendVarint(data, 1)

	proto, err := UnmarshalOpSharding(data)
	require.NoError(t, err)
	s, err := FromProto(proto)
	require.NoError(t, err)
	assert.True(t, s.Equal(tiled([]int{2}, []int{2}, 1, 0)), "got %s", s)

	// Tile assignment dimensions whose number of elements overflows.
	var overflow []byte
	overflow = protowire.AppendTag(overflow, 1, protowire.VarintType)
	overflow = protowire.AppendVarint(overflow, uint64(OpShardingOther))
	overflow = protowire.AppendTag(overflow, 2, protowire.BytesType)
	overflow = protowire.AppendBytes(overflow, shapeBytes)
	overflow = protowire.AppendTag(overflow, 3, protowire.BytesType)
	overflow = protowire.AppendBytes(overflow, protowire.AppendVarint(protowire.AppendVarint(nil, 1<<32), 1<<32))
	proto, err = UnmarshalOpSharding(overflow)
	require.NoError(t, err)
	_, err = FromProto(proto)
	require.Error(t, err)

	// Malformed messages.
	good := nestedSharding(t).ToProto().Marshal()
	for name, data := range map[string][]byte{
		"truncated":       good[:len(good)-1],
		"bad-tag":         {0xff},
		"wrong-wire-type": protowire.AppendTag(nil, 1, protowire.BytesType),
		"bad-submessage":  protowire.AppendBytes(protowire.AppendTag(nil, 5, protowire.BytesType), []byte{0x08}),
	} {
		_, err := UnmarshalOpSharding(data)
		assert.Error(t, err, "case %s", name)
	}
}
