package accel

import "errors"

// Sentinel errors returned by the device layer. The compute package
// re-exports them so callers only need errors.Is against one name.
var (
	// ErrNoDeviceFound is returned when no backend reports a usable device.
	ErrNoDeviceFound = errors.New("amp: no compute device found")

	// ErrInvalidDevice is returned when a device is not part of the last enumeration.
	ErrInvalidDevice = errors.New("amp: invalid device")

	// ErrDeviceUnavailable is returned when a device no longer accepts work.
	ErrDeviceUnavailable = errors.New("amp: device unavailable")

	// ErrDeviceLost is returned when a device fails during a transfer.
	ErrDeviceLost = errors.New("amp: device lost")

	// ErrKernelFault is returned when a launched program panics or fails on a work-item.
	ErrKernelFault = errors.New("amp: kernel fault")

	// ErrTypeMismatch is returned when a host slice does not match a buffer's element type.
	ErrTypeMismatch = errors.New("amp: buffer type mismatch")

	// ErrLengthMismatch is returned when a host slice is shorter than a buffer.
	ErrLengthMismatch = errors.New("amp: buffer length mismatch")
)
