// Package distributed describes the logical topology of the devices participating in a computation:
//
//   - DeviceMesh: expresses the topology of a set of devices, in terms of named axes and their sizes.
//   - ShardingSpec: defines how a logical tensor is sharded across the axes of a DeviceMesh. It can be
//     lowered to the device level sharding.Sharding with ShardingSpec.ToHLOSharding.
package distributed

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/support/ndarray"
	"github.com/gomlx/hlosharding/pkg/support/sets"
	"github.com/pkg/errors"
)

// DeviceMesh defines the logical topology of a set of devices.
type DeviceMesh struct {
	name string

	// axesNames are the names of the mesh axes.
	axesNames []string

	// axesSizes defines the number of devices along each mesh axis.
	axesSizes []int

	// nameToAxis maps axis names to their index.
	nameToAxis map[string]int

	// numDevices is the total number of devices in the mesh.
	numDevices int

	// logicalDeviceAssignment is the list of "logical" devices numbers in the mesh, in the order they appear in the
	// mesh. If nil, devices are numbered sequentially.
	logicalDeviceAssignment []int
}

const DefaultMeshName = "mesh"

// IsNameValid checks whether a name is a valid identifier for a mesh name or axis name.
func IsNameValid(name string) bool {
	if name == "" {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return false
	}
	return true
}

// NewDeviceMesh creates a new logical topology of a set of devices.
//
//   - axesSizes: defines the number of devices along each mesh axis, one value per axis. They must be > 0.
//   - axesNames: the names of the mesh axes. One value per axis. They must be valid identifiers (see IsNameValid).
//
// Used by ShardingSpec to describe how values are sharded.
//
// A DeviceMesh can also be assigned a name, but because there is usually only one mesh, it's set to the default
// name "mesh" (DefaultMeshName).
func NewDeviceMesh(axesSizes []int, axesNames []string) (*DeviceMesh, error) {
	if len(axesSizes) != len(axesNames) {
		return nil, errors.Errorf("axesSizes and axesNames must have the same length, got %d and %d",
			len(axesSizes), len(axesNames))
	}
	if len(axesSizes) == 0 {
		return nil, errors.New("DeviceMesh axesSizes cannot be empty")
	}

	numDevices := 1
	nameToAxis := make(map[string]int, len(axesSizes))
	for i, name := range axesNames {
		if !IsNameValid(name) {
			return nil, errors.Errorf(
				"DeviceMesh axis name %q at index %d is not a valid identifier, it must start with a ASCII letter "+
					"and be followed only by letters, numbers or underscore", name, i)
		}
		if _, found := nameToAxis[name]; found {
			return nil, errors.Errorf("DeviceMesh axis name %q is duplicated", name)
		}
		if axesSizes[i] <= 0 {
			return nil, errors.Errorf("DeviceMesh axis %q has invalid size %d, it must be > 0", name, axesSizes[i])
		}
		nameToAxis[name] = i
		numDevices *= axesSizes[i]
	}

	m := &DeviceMesh{
		name:       DefaultMeshName,
		axesNames:  slices.Clone(axesNames),
		axesSizes:  slices.Clone(axesSizes),
		nameToAxis: nameToAxis,
		numDevices: numDevices,
	}
	return m, nil
}

// SetName of the mesh.
func (m *DeviceMesh) SetName(name string) {
	m.name = name
}

// Name returns the mesh name.
func (m *DeviceMesh) Name() string {
	return m.name
}

// NumDevices returns the total number of devices in the mesh.
func (m *DeviceMesh) NumDevices() int {
	return m.numDevices
}

// Rank returns the number of axes in the mesh.
func (m *DeviceMesh) Rank() int {
	return len(m.axesSizes)
}

// AxesNames returns a copy of the mesh's axis names.
func (m *DeviceMesh) AxesNames() []string {
	return slices.Clone(m.axesNames)
}

// AxesSizes returns a copy of the mesh's axesSizes.
func (m *DeviceMesh) AxesSizes() []int {
	return slices.Clone(m.axesSizes)
}

// AxisSize returns the number of devices along the given mesh axis.
func (m *DeviceMesh) AxisSize(axisName string) (int, error) {
	idx, found := m.nameToAxis[axisName]
	if !found {
		return 0, errors.Errorf("mesh axis %q not found", axisName)
	}
	return m.axesSizes[idx], nil
}

// String implements the fmt.Stringer interface.
func (m *DeviceMesh) String() string {
	var sb strings.Builder
	sb.WriteString("DeviceMesh(axesSizes={")
	for i, name := range m.axesNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %d", name, m.axesSizes[i])
	}
	sb.WriteString("})")
	return sb.String()
}

// SetLogicalDeviceAssignment sets the assignment of logical devices to the mesh.
//
// The length of devices must be equal to NumDevices(). And it should include all numbers from 0 to NumDevices()-1.
// Calling it with no devices resets to the default sequential assignment.
//
// It returns an error if logicalDeviceAssignment has invalid device numbers or len(devices) != NumDevices().
func (m *DeviceMesh) SetLogicalDeviceAssignment(devices ...int) error {
	if len(devices) == 0 {
		m.logicalDeviceAssignment = nil
		return nil
	}
	if len(devices) != m.numDevices {
		return errors.Errorf("devices must have %d elements, got %d", m.numDevices, len(devices))
	}
	seen := sets.Make[int](m.numDevices)
	for _, device := range devices {
		if !seen.InsertNew(device) {
			return errors.Errorf("physical device #%d is duplicated in mapping", device)
		}
		if device < 0 || device >= m.numDevices {
			return errors.Errorf("devices must be between 0 and %d (NumDevices()-1), got device %d",
				m.numDevices-1, device)
		}
	}
	m.logicalDeviceAssignment = slices.Clone(devices)
	return nil
}

// LogicalDeviceAssignment returns the list of devices in the mesh, in the order they appear in the mesh.
//
// It can return nil if no assignment was set with SetLogicalDeviceAssignment() -- in which case it will
// default to a sequential assignment starting from 0.
func (m *DeviceMesh) LogicalDeviceAssignment() []int {
	if m.logicalDeviceAssignment == nil {
		return nil
	}
	return slices.Clone(m.logicalDeviceAssignment)
}

// Devices returns the array of devices of the mesh, shaped by AxesSizes: the element at a mesh position is the
// logical device at that position.
func (m *DeviceMesh) Devices() *ndarray.Array[int] {
	if m.logicalDeviceAssignment == nil {
		return ndarray.Iota(m.axesSizes...)
	}
	devices, err := ndarray.FromFlat(m.axesSizes, m.logicalDeviceAssignment)
	if err != nil {
		// Sizes are checked by SetLogicalDeviceAssignment.
		panic(err)
	}
	return devices
}

// ComputeReplicaGroups returns the replica groups participating in some collective (distributed) operation given the
// axes along which the operation is performed.
//
// Each replica group (a []int) includes the devices (from the LogicalDeviceAssignment) for the axes specified.
// The other axes will be split into different replica groups.
//
// Example:
//
//	m := NewDeviceMesh([]int{2, 2}, []string{"batch", "data"})
//	batchGroups, _ := m.ComputeReplicaGroups([]string{"batch"})  // -> [][]int{{0, 2}, {1, 3}}
//	dataGroups, _ := m.ComputeReplicaGroups([]string{"data"})    // -> [][]int{{0, 1}, {2, 3}}
//	globalGroups, _ := m.ComputeReplicaGroups([]string{"batch", "data"})  // -> [][]int{{0, 1, 2, 3}}
func (m *DeviceMesh) ComputeReplicaGroups(axes []string) ([][]int, error) {
	axisIndices := make([]int, 0, len(axes))
	groupAxes := sets.Make[int](len(axes))
	for _, axis := range axes {
		idx, found := m.nameToAxis[axis]
		if !found {
			return nil, errors.Errorf("axis %q not found in mesh", axis)
		}
		if !groupAxes.InsertNew(idx) {
			return nil, errors.Errorf("axis %q is duplicated: each axis can only appear once", axis)
		}
		axisIndices = append(axisIndices, idx)
	}
	nonAxisIndices := make([]int, 0, len(m.axesSizes)-len(axisIndices))
	for i := range m.axesSizes {
		if !groupAxes.Has(i) {
			nonAxisIndices = append(nonAxisIndices, i)
		}
	}

	// Permute the devices so the group axes are the minor ones: each group is then a contiguous run.
	permuted := transposeDevices(m.Devices(), append(nonAxisIndices, axisIndices...))
	groupSize := 1
	for _, idx := range axisIndices {
		groupSize *= m.axesSizes[idx]
	}
	return slices.Collect(slices.Chunk(permuted, groupSize)), nil
}

// transposeDevices returns the flat (row-major) values of devices with its axes permuted: axis i of the result
// is axis permutation[i] of devices.
func transposeDevices(devices *ndarray.Array[int], permutation []int) []int {
	dims := devices.Dims()
	permutedDims := make([]int, len(permutation))
	for i, axis := range permutation {
		permutedDims[i] = dims[axis]
	}
	flat := make([]int, 0, devices.Size())
	srcIndex := make([]int, len(dims))
	for _, index := range shapes.IterDims(permutedDims) {
		for i, axis := range permutation {
			srcIndex[axis] = index[i]
		}
		flat = append(flat, devices.At(srcIndex...))
	}
	return flat
}
