package distributed_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/hlosharding/pkg/core/distributed"
	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/core/sharding"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardingSpec(t *testing.T) {
	mesh := must.M1(distributed.NewDeviceMesh([]int{2, 4}, []string{"data", "model"}))

	spec, err := distributed.BuildSpec(mesh).R().S("model").Done()
	require.NoError(t, err)
	assert.Equal(t, 2, spec.Rank())
	assert.False(t, spec.IsReplicated())
	assert.Equal(t, "ShardingSpec{mesh=mesh, axes=[R, S(model)]}", spec.String())
	assert.Equal(t, 1, spec.NumDevicesShardingAxis(0))
	assert.Equal(t, 4, spec.NumDevicesShardingAxis(1))
	assert.Equal(t, 1, spec.NumDevicesShardingAxis(2))

	spec = must.M1(distributed.NewShardingSpec(mesh, distributed.ReplicatedAxis, distributed.AxisSpec{"data", "model"}))
	assert.Equal(t, "ShardingSpec{mesh=mesh, axes=[R, S(data,model)]}", spec.String())
	assert.Equal(t, 8, spec.NumDevicesShardingAxis(1))

	replicated := distributed.NewReplicatedShardingSpec(mesh)
	assert.True(t, replicated.IsReplicated())
	assert.Equal(t, "ShardingSpec{mesh=mesh, axes=[]}", replicated.String())
	assert.Equal(t, "ShardingSpec<nil>", (*distributed.ShardingSpec)(nil).String())

	_, err = distributed.BuildSpec(mesh).S("batch").Done()
	require.Error(t, err)
	_, err = distributed.NewShardingSpec(mesh, distributed.AxisSpec{"data"}, distributed.AxisSpec{"data"})
	require.Error(t, err)
}

func TestShardShapes(t *testing.T) {
	mesh := must.M1(distributed.NewDeviceMesh([]int{2, 4}, []string{"data", "model"}))
	spec := must.M1(distributed.BuildSpec(mesh).S("data").S("model").Done())

	logical := shapes.Make(dtypes.Float32, 8, 12)
	shard := spec.ShardShape(logical)
	assert.Equal(t, []int{4, 3}, shard.Dimensions)
	assert.True(t, spec.LogicalShapeForShard(shard).Equal(logical))

	// Not divisible.
	assert.False(t, spec.ShardShape(shapes.Make(dtypes.Float32, 8, 10)).Ok())

	// Rank different from the spec, or nil spec: unchanged.
	assert.True(t, spec.ShardShape(shapes.Make(dtypes.Float32, 8)).Equal(shapes.Make(dtypes.Float32, 8)))
	var nilSpec *distributed.ShardingSpec
	assert.True(t, nilSpec.ShardShape(logical).Equal(logical))
	assert.True(t, nilSpec.LogicalShapeForShard(logical).Equal(logical))
}

func TestToHLOSharding(t *testing.T) {
	mesh := must.M1(distributed.NewDeviceMesh([]int{2, 2}, []string{"data", "model"}))
	f32 := func(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float32, dims...) }

	tests := []struct {
		name  string
		spec  *distributed.ShardingSpec
		shape shapes.Shape
		want  string
	}{
		{"nil", nil, f32(8, 6), "{replicated}"},
		{"replicated", distributed.NewReplicatedShardingSpec(mesh), f32(8, 6), "{replicated}"},
		{"replicated-axes", must.M1(distributed.BuildSpec(mesh).R().R().Done()), f32(8, 6), "{replicated}"},
		{"2d", must.M1(distributed.BuildSpec(mesh).S("data").S("model").Done()), f32(8, 6), "{f32[4,3] devices=[2,2]0,1,2,3}"},
		{"2d-transposed", must.M1(distributed.BuildSpec(mesh).S("model").S("data").Done()), f32(8, 6), "{f32[4,3] devices=[2,2]0,2,1,3}"},
		{"two-mesh-axes", must.M1(distributed.BuildSpec(mesh).R().S("data", "model").Done()), f32(3, 8), "{f32[3,2] devices=[1,4]0,1,2,3}"},
		{"two-mesh-axes-transposed", must.M1(distributed.BuildSpec(mesh).S("model", "data").Done()), f32(8), "{f32[2] devices=[4]0,2,1,3}"},
		{"padded", must.M1(distributed.BuildSpec(mesh).S("data", "model").R().Done()), f32(7, 3), "{f32[2,3] devices=[4,1]0,1,2,3}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.spec.ToHLOSharding(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
			require.NoError(t, s.Validate(tt.shape, mesh.NumDevices()))
		})
	}

	t.Run("tiles", func(t *testing.T) {
		spec := must.M1(distributed.BuildSpec(mesh).S("data").S("model").Done())
		shape := f32(8, 6)
		s := must.M1(spec.ToHLOSharding(shape))
		assert.Equal(t, []int{4, 3}, s.TileOffsetForDevice(shape, sharding.Real(3)))
		assert.Equal(t, []int{8, 6}, s.TileLimitForDevice(shape, sharding.Real(3)))
		assert.Equal(t, []int{0, 3}, s.TileOffsetForDevice(shape, sharding.Real(1)))
	})

	t.Run("logical-device-assignment", func(t *testing.T) {
		mesh := must.M1(distributed.NewDeviceMesh([]int{4, 1}, []string{"x", "unused"}))
		require.NoError(t, mesh.SetLogicalDeviceAssignment(3, 2, 1, 0))
		spec := must.M1(distributed.BuildSpec(mesh).S("x").Done())
		s, err := spec.ToHLOSharding(f32(8, 2))
		require.NoError(t, err)
		assert.Equal(t, "{f32[2,2] devices=[4,1]3,2,1,0}", s.String())
	})

	t.Run("single-device", func(t *testing.T) {
		mesh := must.M1(distributed.NewDeviceMesh([]int{1}, []string{"x"}))
		spec := must.M1(distributed.BuildSpec(mesh).S("x").Done())
		s, err := spec.ToHLOSharding(f32(8))
		require.NoError(t, err)
		assert.True(t, s.Equal(sharding.AssignDevice(sharding.Real(0))))
	})

	t.Run("errors", func(t *testing.T) {
		for name, tc := range map[string]struct {
			spec  *distributed.ShardingSpec
			shape shapes.Shape
		}{
			"unused-mesh-axis": {must.M1(distributed.BuildSpec(mesh).S("data").Done()), f32(8, 6)},
			"rank-too-small":   {must.M1(distributed.BuildSpec(mesh).S("data").S("model").Done()), f32(8)},
			"tuple":            {must.M1(distributed.BuildSpec(mesh).S("data", "model").Done()), shapes.MakeTuple(f32(8))},
			"empty-tile":       {must.M1(distributed.BuildSpec(mesh).S("data", "model").Done()), f32(5)},
			"too-small-axis":   {must.M1(distributed.BuildSpec(mesh).S("data", "model").Done()), f32(2)},
			"unknown-axis":     {&distributed.ShardingSpec{Mesh: mesh, Axes: []distributed.AxisSpec{{"batch"}}}, f32(8)},
		} {
			_, err := tc.spec.ToHLOSharding(tc.shape)
			assert.Error(t, err, "case %s", name)
		}
	})
}
