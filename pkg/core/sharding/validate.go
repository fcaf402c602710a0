// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sharding

import (
	"slices"

	"github.com/gomlx/hlosharding/pkg/core/shapes"
	"github.com/gomlx/hlosharding/pkg/support/sets"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// Validate that the sharding can be applied to a value of the given shape, on a system with numDevices devices.
//
// For tuple shardings, every element is validated against the corresponding leaf of shape, and the returned
// error combines the errors of all invalid elements (see go.uber.org/multierr).
func (s Sharding) Validate(shape shapes.Shape, numDevices int) error {
	var err error
	if s.IsTuple() {
		err = s.validateTuple(shape, numDevices)
	} else {
		err = s.validateNonTuple(shape, numDevices)
	}
	if err != nil && klog.V(1).Enabled() {
		klog.Infof("Sharding %s is not valid for shape %s with %d devices: %v", s, shape, numDevices, err)
	}
	return err
}

func (s Sharding) validateTuple(shape shapes.Shape, numDevices int) error {
	if err := s.checkLeafCount(shape); err != nil {
		return err
	}
	var allErrs error
	leafIdx := 0
	for index, leafShape := range shape.Leaves() {
		element := s.elements[leafIdx]
		leafIdx++
		if element.IsTuple() {
			allErrs = multierr.Append(allErrs, errors.Errorf("tuple sharding element %s is itself a tuple sharding %s", index, element))
			continue
		}
		if err := element.validateNonTuple(leafShape, numDevices); err != nil {
			allErrs = multierr.Append(allErrs, errors.WithMessagef(err, "while validating sharding tuple element %s which is %s", index, element))
		}
	}
	return allErrs
}

func (s Sharding) validateNonTuple(shape shapes.Shape, numDevices int) error {
	if shape.IsTuple() {
		// Empty tuples take a placeholder sharding that is not split.
		if shape.TupleSize() > 0 || s.kind == KindTiled {
			return errors.Errorf("validation shape %s is a tuple but sharding %s is not", shape, s)
		}
	}
	switch s.kind {
	case KindReplicated:
		return nil
	case KindTileMaximal:
		if !s.device.IsReserved() && s.device.ID() >= numDevices {
			return errors.Errorf("device %s >= number of devices %d in sharding %s", s.device, numDevices, s)
		}
		return nil
	}

	// All tile assignments must be less than the number of available devices and unique.
	seen := sets.Make[int](s.tileAssignment.Size())
	for index, device := range s.tileAssignment.All() {
		if device < 0 {
			return errors.Errorf("invalid device %d in tile assignment at tile %v: tiled shardings only take non-negative devices", device, index)
		}
		if device >= numDevices {
			return errors.Errorf("device %d >= number of devices %d in tile assignment", device, numDevices)
		}
		if !seen.InsertNew(device) {
			return errors.Errorf("device %d is not unique in tile assignment", device)
		}
	}

	// The tile rank must be the same as the value rank.
	if s.tileShape.IsTuple() || s.tileShape.Rank() != shape.Rank() {
		return errors.Errorf("tile rank is different from the value rank: sharding=%s, shape=%s", s, shape)
	}
	if s.tileAssignment.Rank() != shape.Rank() {
		return errors.Errorf("tile assignment rank %d is different from the value rank: sharding=%s, shape=%s",
			s.tileAssignment.Rank(), s, shape)
	}

	// A tile shape equal to the value shape is not actually sharded, the caller should have used
	// Replicate or AssignDevice instead.
	if slices.Equal(s.tileShape.Dimensions, shape.Dimensions) {
		return errors.Errorf("tile shape %s is the same as the value shape %s: if a replicated sharding was intended "+
			"use Replicate(), if a device placement was intended use AssignDevice()", s.tileShape, shape)
	}

	for axis, tileDim := range s.tileShape.Dimensions {
		dim := shape.Dimensions[axis]
		if tileDim <= 0 {
			return errors.Errorf("tile dimension %d for axis %d must be > 0 (sharding=%s)", tileDim, axis, s)
		}
		if tileDim > dim {
			return errors.Errorf("tile is larger than value shape (axis %d, %d > %d)", axis, tileDim, dim)
		}
		// The tile assignment must have exactly ceil(shape[axis]/tile[axis]) tiles on every axis.
		if expected := ceilOfRatio(dim, tileDim); s.tileAssignment.Dim(axis) != expected {
			return errors.Errorf("tile assignment has incorrect shape: axis %d expected %d tiles, but got %d",
				axis, expected, s.tileAssignment.Dim(axis))
		}
	}
	return nil
}
