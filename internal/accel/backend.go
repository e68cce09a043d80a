package accel

import (
	"context"
	"reflect"
	"strings"
)

// Capability is a set of operations a device can execute inside a kernel
// beyond the device-safe core (arithmetic over indexed elements).
type Capability uint8

const (
	// CapHostCallbacks allows kernels to call arbitrary host functions.
	CapHostCallbacks Capability = 1 << iota
	// CapDynamicAlloc allows kernels to allocate memory per work-item.
	CapDynamicAlloc

	// CapNone is the device-safe subset every device supports.
	CapNone Capability = 0
	// CapAll is everything the host can do.
	CapAll = CapHostCallbacks | CapDynamicAlloc
)

// Has reports whether every capability in other is present in c.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// Missing returns the capabilities in required that c does not provide.
func (c Capability) Missing(required Capability) Capability {
	return required &^ c
}

func (c Capability) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	if c&CapHostCallbacks != 0 {
		parts = append(parts, "host-callbacks")
	}
	if c&CapDynamicAlloc != 0 {
		parts = append(parts, "dynamic-alloc")
	}
	return strings.Join(parts, ",")
}

// DeviceInfo contains information about a compute device
type DeviceInfo struct {
	ID            string     `json:"id"`
	Path          string     `json:"path"`
	Description   string     `json:"description"`
	Backend       string     `json:"backend"`
	Workers       int        `json:"workers"`
	TotalMemory   int64      `json:"totalMemory"` // in bytes, 0 if unknown
	Features      []string   `json:"features,omitempty"`
	Capabilities  Capability `json:"capabilities"`
	Emulated      bool       `json:"emulated"`
	DriverVersion string     `json:"driverVersion"`
}

// Buffer is device-resident storage for one data view.
//
// Implementation notes:
// - Upload and Download must reject host slices of a different element type
// - Data exposes the device-local slice so launched programs can bind to it;
//   it must not be touched by the host outside a launch
type Buffer interface {
	// Len returns the number of elements in the buffer.
	Len() int

	// Upload copies a host slice into device memory (host to device).
	Upload(src any) error

	// Download copies device memory into a host slice (device to host).
	Download(dst any) error

	// Data returns the device-local slice backing the buffer.
	Data() any

	// Close releases the device memory. The buffer is unusable afterwards.
	Close() error
}

// Program is a kernel already bound to device buffers.
// Run executes the work-items with linear ids in [lo, hi). Programs must be
// safe to run concurrently on disjoint ranges.
type Program interface {
	Run(lo, hi int) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(lo, hi int) error

// Run calls f(lo, hi).
func (f ProgramFunc) Run(lo, hi int) error {
	return f(lo, hi)
}

// Device is a single enumerated compute device.
//
// Launch is asynchronous: it enqueues work and returns an Event that completes
// when the whole range has run. Launches on one device complete in the order
// they were submitted.
type Device interface {
	// Info describes the device. It never changes after enumeration.
	Info() DeviceInfo

	// Allocate creates a zeroed buffer of n elements of type elem.
	Allocate(elem reflect.Type, n int) (Buffer, error)

	// Launch schedules prog over n work-items.
	Launch(n int, prog Program) (*Event, error)

	// Wait blocks until every launch submitted so far has completed.
	Wait(ctx context.Context) error

	// Accepting reports whether the device currently takes new work.
	Accepting() bool
}

// Backend defines the interface for compute backends.
// A backend discovers devices of one kind (parallel CPU pool, reference
// emulator, host) and owns their queues.
//
// Implementation notes:
// - Backends should be cheap to construct; heavy setup belongs in Initialize
// - Automatic fallback to the host device is handled by the Manager, not the backend
// - Cleanup must stop device queues so no goroutine outlives the backend
type Backend interface {
	// Name returns the backend name used in configuration ("cpu", "ref", "host").
	Name() string

	// IsAvailable checks if the backend can run on this system.
	// This should perform a quick check without heavy initialization.
	IsAvailable() bool

	// Initialize prepares the backend and its devices for use.
	// Should be called once before Devices.
	Initialize() error

	// Devices returns the devices discovered by this backend, in discovery order.
	Devices() []Device

	// Cleanup releases any resources held by the backend.
	Cleanup() error
}
