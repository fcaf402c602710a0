// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DeviceKind enumerates the kinds of device references a sharding can hold.
type DeviceKind int

//go:generate go tool enumer -type=DeviceKind -text -output=gen_devicekind_enumer.go device.go

const (
	// RealDevice is an execution device, identified by its non-negative ordinal.
	RealDevice DeviceKind = iota

	// HostDevice is the host, used for values computed outside the compiled program.
	HostDevice

	// UnassignedDevice is a placeholder used by spatial partitioning before the final device assignment.
	UnassignedDevice
)

// Wire encoding of the reserved devices, as used by XLA.
const (
	hostDeviceID       = -1
	unassignedDeviceID = -2
)

// Device references the target of a TileMaximal sharding: either a real device or one of the reserved ones.
//
// Device is comparable, and can be used as a map key.
type Device struct {
	kind DeviceKind
	id   int
}

var (
	// Host is the reserved device representing the host.
	Host = Device{kind: HostDevice, id: hostDeviceID}

	// Unassigned is the reserved device used as a placeholder, when the device is not yet known.
	Unassigned = Device{kind: UnassignedDevice, id: unassignedDeviceID}
)

// Real returns a reference to the device with the given ordinal. It panics if id < 0.
func Real(id int) Device {
	if id < 0 {
		exceptions.Panicf("sharding.Real(%d): device ordinals must be >= 0, use Host or Unassigned for reserved devices", id)
	}
	return Device{kind: RealDevice, id: id}
}

// IsReservedDevice returns whether the raw (wire encoded) device number is a reserved device number.
// A reserved device number has a special meaning, with dedicated handling logic.
func IsReservedDevice(device int64) bool { return device < 0 }

// DeviceFromInt64 converts the raw (wire encoded) device number to a Device.
func DeviceFromInt64(device int64) (Device, error) {
	switch {
	case device >= 0:
		return Device{kind: RealDevice, id: int(device)}, nil
	case device == hostDeviceID:
		return Host, nil
	case device == unassignedDeviceID:
		return Unassigned, nil
	}
	return Device{}, errors.Errorf("invalid device number %d: reserved devices are %d (host) and %d (unassigned)",
		device, hostDeviceID, unassignedDeviceID)
}

// Kind of the device reference.
func (d Device) Kind() DeviceKind { return d.kind }

// IsReserved returns whether the device is one of the reserved devices (Host or Unassigned).
func (d Device) IsReserved() bool { return d.kind != RealDevice }

// ID returns the ordinal of a real device. It panics for reserved devices.
func (d Device) ID() int {
	if d.IsReserved() {
		exceptions.Panicf("Device.ID() called on reserved device %s", d)
	}
	return d.id
}

// Int64 returns the raw (wire encoded) device number: the ordinal for real devices, or the negative
// reserved numbers for Host and Unassigned.
func (d Device) Int64() int64 {
	switch d.kind {
	case HostDevice:
		return hostDeviceID
	case UnassignedDevice:
		return unassignedDeviceID
	}
	return int64(d.id)
}

// String implements fmt.Stringer: the ordinal of a real device, or "host" or "unassigned".
func (d Device) String() string {
	switch d.kind {
	case HostDevice:
		return "host"
	case UnassignedDevice:
		return "unassigned"
	}
	return strconv.Itoa(d.id)
}

// ParseDevice parses the form generated by Device.String.
func ParseDevice(text string) (Device, error) {
	switch text {
	case "host":
		return Host, nil
	case "unassigned":
		return Unassigned, nil
	}
	id, err := strconv.Atoi(text)
	if err != nil || id < 0 {
		return Device{}, errors.Errorf("invalid device %q: it must be a non-negative number, \"host\" or \"unassigned\"", text)
	}
	return Real(id), nil
}
