package compute

import (
	"errors"

	"github.com/fxnlabs/amp-core/internal/accel"
)

// Errors reported by the core. None of them are retried internally; choosing
// another device or giving up is the caller's decision.
var (
	ErrNoDeviceFound     = accel.ErrNoDeviceFound
	ErrInvalidDevice     = accel.ErrInvalidDevice
	ErrDeviceUnavailable = accel.ErrDeviceUnavailable
	ErrDeviceLost        = accel.ErrDeviceLost
	ErrKernelFault       = accel.ErrKernelFault

	// ErrInvalidOperation is returned when an operation is not valid for a view's mode or state.
	ErrInvalidOperation = errors.New("amp: invalid operation")

	// ErrInvalidShape is returned for non-positive dimensions or mismatched shapes.
	ErrInvalidShape = errors.New("amp: invalid shape")

	// ErrKernelCapability is returned when a kernel needs operations the device cannot run.
	ErrKernelCapability = errors.New("amp: kernel uses operations the device does not support")
)
