package distributed

import (
	"strings"

	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/core/sharding"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/gomlx/hlosharding/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ShardingSpec (also known as PartitionSpec in JAX) defines how a logical tensor is to be sharded (partitioned) across
// a DeviceMesh. It follows Shardy's representation [1], and it is lowered to a device level sharding.Sharding
// with ToHLOSharding.
//
// The definition is per axis of the logical tensor -- and not per axis of the Mesh, a common confusion.
// If not all axes of the Tensor are defined, the tail axes are considered simply to be replicated across the whole
// mesh.
//
// Each tensor axis can be replicated or sharded across one or more mesh axes.
//
// Example:
//
//	mesh, _ := NewDeviceMesh([]int{2, 2}, []string{"data", "model"})
//
//	// Input's "batch" axis is sharded across the "data" axis of the mesh.
//	inputSharding, _ := NewShardingSpec(mesh, AxisSpec{"data"})
//
//	// First axis is replicated, second is sharded across "model" devices
//	variableSharding, _ := BuildSpec(mesh).R().S("model").Done()
//
//	// Second axis is sharded across both "data" and "model" devices.
//	largeWeights, _ := BuildSpec(mesh).R().S("data", "model").Done()
//
// [1] https://github.com/openxla/shardy/blob/main/docs/sharding_representation.md
type ShardingSpec struct {
	Mesh *DeviceMesh
	Axes []AxisSpec
}

// AxisSpec specifies how a tensor axis is to be sharded (or replicated).
// See details in ShardingSpec.
//
// It's a list of mesh axes names, in order. An empty list means the axis is replicated.
type AxisSpec []string

// ReplicatedAxis is a special AxisSpec that means the tensor axis is replicated.
var ReplicatedAxis = AxisSpec(nil)

// NewShardingSpec creates a new ShardingSpec for a tensor, defined over the given mesh axes.
//
// It takes an axisSpec for each axis of the tensor (omitted axes are assumed to be replicated).
//
// There is also the BuildSpec function for a more ergonomic spec creation.
func NewShardingSpec(mesh *DeviceMesh, axisSpec ...AxisSpec) (*ShardingSpec, error) {
	s := &ShardingSpec{mesh, axisSpec}
	err := s.Validate()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewReplicatedShardingSpec creates a new ShardingSpec that is replicated across all mesh axes.
// It's the simplest sharding spec.
func NewReplicatedShardingSpec(mesh *DeviceMesh) *ShardingSpec {
	return &ShardingSpec{mesh, nil}
}

// Validate the spec returning an error if something is invalid.
func (s *ShardingSpec) Validate() error {
	meshAxesUsed := sets.Make[string]()
	for axisIdx, tensorAxisSpec := range s.Axes {
		for _, axisName := range tensorAxisSpec {
			if _, ok := s.Mesh.nameToAxis[axisName]; !ok {
				return errors.Errorf("ShardingSpec axis #%d refers to unknown mesh axis %q", axisIdx, axisName)
			}
			if !meshAxesUsed.InsertNew(axisName) {
				return errors.Errorf("mesh axis %q used more than once in ShardingSpec", axisName)
			}
		}
	}
	return nil
}

// Rank returns the rank of the tensor this ShardingSpec describes.
func (s *ShardingSpec) Rank() int {
	return len(s.Axes)
}

// IsReplicated returns true if the tensor is fully replicated
// (i.e., not sharded along any axis).
func (s *ShardingSpec) IsReplicated() bool {
	if len(s.Axes) == 0 {
		return true
	}
	for _, meshAxes := range s.Axes {
		if len(meshAxes) > 0 {
			return false
		}
	}
	return true
}

// String returns a human-readable string representation of the ShardingSpec.
// Returns "ShardingSpec<nil>" if s is nil.
func (s *ShardingSpec) String() string {
	if s == nil {
		return "ShardingSpec<nil>"
	}
	var sb strings.Builder
	sb.WriteString("ShardingSpec{mesh=" + s.Mesh.name + ", axes=[")
	for i, axisSpec := range s.Axes {
		if i > 0 {
			sb.WriteString(", ")
		}
		if len(axisSpec) == 0 {
			sb.WriteString("R")
		} else {
			sb.WriteString("S(" + strings.Join(axisSpec, ",") + ")")
		}
	}
	sb.WriteString("]}")
	return sb.String()
}

// SpecBuilder is a more ergonomic way of building SharingSpec.
type SpecBuilder struct {
	spec *ShardingSpec
}

// BuildSpec is a more ergonomic way of building SharingSpec.
//
// Example:
//
//	spec, err := distributed.BuildSpec(mesh).R().S("model").Done()
func BuildSpec(mesh *DeviceMesh) *SpecBuilder {
	return &SpecBuilder{spec: &ShardingSpec{Mesh: mesh}}
}

// R adds a replicated axis to the ShardingSpec being built.
func (b *SpecBuilder) R() *SpecBuilder {
	b.spec.Axes = append(b.spec.Axes, ReplicatedAxis)
	return b
}

// S adds a sharded axis along the meshAxes to the ShardingSpec being built.
func (b *SpecBuilder) S(meshAxes ...string) *SpecBuilder {
	b.spec.Axes = append(b.spec.Axes, meshAxes)
	return b
}

// Done builds the ShardingSpec according to the builder specification.
func (b *SpecBuilder) Done() (*ShardingSpec, error) {
	err := b.spec.Validate()
	if err != nil {
		return nil, err
	}
	return b.spec, nil
}

// NumDevicesShardingAxis returns the number of devices that will be used to shard the tensor along the given
// tensor axis. If the axis is replicated, it returns 1.
//
// Notice this is about the tensor axis, not the mesh axis. A tensor axis can be sharded across multiple mesh axes.
func (s *ShardingSpec) NumDevicesShardingAxis(axis int) int {
	if axis >= len(s.Axes) {
		return 1 // Replicated.
	}
	meshAxes := s.Axes[axis]
	if len(meshAxes) == 0 {
		return 1 // Replicated.
	}
	size := 1
	for _, meshAxis := range meshAxes {
		size *= s.Mesh.axesSizes[s.Mesh.nameToAxis[meshAxis]]
	}
	return size
}

// LogicalShapeForShard calculates the logical shape of a tensor given its shard shape and the sharding specification.
//
// The shard shape is assumed to be the shape of the tensor on a single device.
// The logical shape is the shape of the full tensor across all devices.
//
// If the sharding spec is nil, or if the rank of the shard shape does not match the spec,
// it returns the shard shape as is (assuming it's replicated or fully local).
func (s *ShardingSpec) LogicalShapeForShard(shardShape shapes.Shape) shapes.Shape {
	if s == nil || len(s.Axes) == 0 {
		return shardShape
	}
	logicalShape := shardShape.Clone()
	// We iterate over the axes of the spec: it may have fewer axes than the shardShape,
	// the remaining axes are assumed to be replicated so it doesn't affect the logical shape.
	for axis, axisSpec := range s.Axes {
		if len(axisSpec) > 0 {
			logicalShape.Dimensions[axis] *= s.NumDevicesShardingAxis(axis)
		}
	}
	return logicalShape
}

// ShardShape calculates the shard shape of a tensor given its logical shape and the sharding specification.
//
// The logical shape is the shape of the full tensor across all devices.
// The shard shape is the shape of the tensor on a single device.
//
// If the sharding spec is nil, or if the rank of the logical shape does not match the spec,
// it returns the logical shape as is (assuming it's replicated or fully local).
//
// If the logical shape is not divisible by the sharding spec, it returns an invalid shape.
func (s *ShardingSpec) ShardShape(logicalShape shapes.Shape) shapes.Shape {
	if s == nil || len(s.Axes) != logicalShape.Rank() {
		return logicalShape
	}

	var invalidShape shapes.Shape // The default shape is invalid.
	shardDims := make([]int, logicalShape.Rank())
	for i, dim := range logicalShape.Dimensions {
		numShards := s.NumDevicesShardingAxis(i)
		if dim%numShards != 0 {
			return invalidShape
		}
		shardDims[i] = dim / numShards
	}
	return shapes.Make(logicalShape.DType, shardDims...)
}

// ToHLOSharding lowers the ShardingSpec to the device level sharding.Sharding of a value of the given shape.
//
//   - A nil or fully replicated spec is lowered to sharding.Replicate().
//   - A spec over a single device mesh is lowered to sharding.AssignDevice() of that device.
//   - Otherwise, it is lowered to a tiled sharding: the tile assignment is the mesh Devices() with the mesh axes
//     permuted to follow the tensor axes they shard, and each tensor axis is split in
//     NumDevicesShardingAxis(axis) tiles. Tensor axes not divisible by their number of tiles are padded, as long
//     as no tile is left empty.
//
// Every mesh axis with more than one device must be used by the spec: a partially replicated value can't be
// expressed by a sharding.Sharding.
//
// The returned sharding is validated against shape, and it returns an error if it is not valid.
func (s *ShardingSpec) ToHLOSharding(shape shapes.Shape) (sharding.Sharding, error) {
	if shape.IsTuple() {
		return sharding.Sharding{}, errors.Errorf("ShardingSpec.ToHLOSharding(%s): tuple shapes are not supported", shape)
	}
	if s == nil || s.IsReplicated() {
		return sharding.Replicate(), nil
	}
	if err := s.Validate(); err != nil {
		return sharding.Sharding{}, err
	}
	if len(s.Axes) > shape.Rank() {
		return sharding.Sharding{}, errors.Errorf("%s has %d axes, but shape %s has rank %d", s, len(s.Axes), shape, shape.Rank())
	}
	devices := s.Mesh.Devices()
	if s.Mesh.NumDevices() == 1 {
		return sharding.AssignDevice(sharding.Real(devices.Flat()[0])), nil
	}

	// Order the mesh axes following the tensor axes they shard, and check the unused ones are trivial.
	permutation := make([]int, 0, s.Mesh.Rank())
	for _, axisSpec := range s.Axes {
		for _, meshAxis := range axisSpec {
			permutation = append(permutation, s.Mesh.nameToAxis[meshAxis])
		}
	}
	usedMeshAxes := sets.MakeWith(permutation...)
	for meshAxis, size := range s.Mesh.axesSizes {
		if usedMeshAxes.Has(meshAxis) {
			continue
		}
		if size > 1 {
			return sharding.Sharding{}, errors.Errorf("%s doesn't use mesh axis %q (size %d): partially replicated values "+
				"are not supported", s, s.Mesh.axesNames[meshAxis], size)
		}
		permutation = append(permutation, meshAxis)
	}

	// Tile assignment: one axis per tensor axis, with the number of shards of the axis.
	tileDims := make([]int, shape.Rank())
	assignmentDims := make([]int, shape.Rank())
	for axis, dim := range shape.Dimensions {
		numShards := s.NumDevicesShardingAxis(axis)
		assignmentDims[axis] = numShards
		tileDims[axis] = (dim + numShards - 1) / numShards
	}
	tileAssignment, err := ndarray.FromFlat(assignmentDims, transposeDevices(devices, permutation))
	if err != nil {
		return sharding.Sharding{}, errors.WithMessagef(err, "%s: building tile assignment", s)
	}
	hlo := sharding.Tile(shapes.Make(shape.DType, tileDims...), tileAssignment)
	if err := hlo.Validate(shape, s.Mesh.NumDevices()); err != nil {
		return sharding.Sharding{}, errors.WithMessagef(err, "%s can't shard a value of shape %s", s, shape)
	}
	klog.V(2).Infof("%s lowered to %s for shape %s", s, hlo, shape)
	return hlo, nil
}
