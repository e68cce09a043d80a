package compute

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/fxnlabs/amp-core/internal/metrics"
	"golang.org/x/exp/constraints"
)

// Number is the set of element types a view can hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// AccessMode says whether kernels may write through a view.
type AccessMode uint8

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

func (m AccessMode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// TransferPolicy controls when a view's data moves between host and device.
type TransferPolicy uint8

const (
	// AlwaysCopyIn uploads host contents before the view's first use on a device.
	AlwaysCopyIn TransferPolicy = 1 << iota
	// NeverCopyIn skips the upload; device storage starts zeroed.
	NeverCopyIn
	// CopyOutOnSync downloads device writes into the host slice on Synchronize.
	CopyOutOnSync
)

// Has reports whether every flag in other is set.
func (p TransferPolicy) Has(other TransferPolicy) bool {
	return p&other == other
}

func (p TransferPolicy) String() string {
	var parts []string
	if p.Has(AlwaysCopyIn) {
		parts = append(parts, "alwaysCopyIn")
	}
	if p.Has(NeverCopyIn) {
		parts = append(parts, "neverCopyIn")
	}
	if p.Has(CopyOutOnSync) {
		parts = append(parts, "copyOutOnSync")
	}
	return strings.Join(parts, "|")
}

// View is a typed, shaped window over a host slice that kernels read and
// write on a device. The host slice stays owned by the caller; results
// written by kernels reach it only through Synchronize.
//
// A View is not safe for concurrent use. Views over disjoint slices may be
// prepared from different goroutines.
type View[T Number] struct {
	host   []T
	extent Extent
	mode   AccessMode
	policy TransferPolicy

	device accel.Device
	buf    accel.Buffer

	stale  bool // host copy is newer than the device copy
	dirty  bool // device copy holds writes not yet copied back
	writes []*accel.Event
	reads  []*accel.Event
	fault  error
}

// Wrap creates a view over data with the given shape. The shape's size must
// equal len(data). Nothing is copied until a kernel uses the view.
func Wrap[T Number](data []T, shape Extent, mode AccessMode) (*View[T], error) {
	if shape.Rank() == 0 {
		return nil, fmt.Errorf("%w: view needs at least one dimension", ErrInvalidShape)
	}
	if shape.Size() != len(data) {
		return nil, fmt.Errorf("%w: shape %s holds %d elements, buffer has %d", ErrInvalidShape, shape, shape.Size(), len(data))
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, fmt.Errorf("%w: unknown access mode %d", ErrInvalidOperation, mode)
	}
	policy := AlwaysCopyIn
	if mode == ReadWrite {
		policy |= CopyOutOnSync
	}
	return &View[T]{
		host:   data,
		extent: shape,
		mode:   mode,
		policy: policy,
		stale:  true,
	}, nil
}

// WrapSlice creates a one-dimensional view over the whole slice.
func WrapSlice[T Number](data []T, mode AccessMode) (*View[T], error) {
	shape, err := NewExtent(len(data))
	if err != nil {
		return nil, err
	}
	return Wrap(data, shape, mode)
}

// Wrap2D creates a row-major rows×cols view.
func Wrap2D[T Number](data []T, rows, cols int, mode AccessMode) (*View[T], error) {
	shape, err := NewExtent(rows, cols)
	if err != nil {
		return nil, err
	}
	return Wrap(data, shape, mode)
}

func (v *View[T]) Shape() Extent          { return v.extent }
func (v *View[T]) Rank() int              { return v.extent.Rank() }
func (v *View[T]) Len() int               { return len(v.host) }
func (v *View[T]) Mode() AccessMode       { return v.mode }
func (v *View[T]) Policy() TransferPolicy { return v.policy }

// Device returns the device currently holding the view's data, or nil.
func (v *View[T]) Device() accel.Device { return v.device }

// Data returns the host slice. After MarkDiscard or a dispatch it is only
// meaningful once Synchronize has returned.
func (v *View[T]) Data() []T {
	return v.host
}

// At reads the host element at idx.
func (v *View[T]) At(idx ...int) (T, error) {
	off, err := v.extent.Linear(idx)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.host[off], nil
}

// MarkDiscard declares the current host contents irrelevant: the next use on
// a device skips the host-to-device copy. Only read-write views can be
// discarded.
func (v *View[T]) MarkDiscard() error {
	if v.mode != ReadWrite {
		return fmt.Errorf("%w: cannot discard a %s view", ErrInvalidOperation, v.mode)
	}
	v.policy = (v.policy &^ AlwaysCopyIn) | NeverCopyIn
	return nil
}

// Refresh declares that the host slice was modified outside the view, so the
// next use on a device uploads it again. Unsynchronized device writes are
// dropped.
func (v *View[T]) Refresh() {
	v.stale = true
	v.dirty = false
	v.policy = (v.policy &^ NeverCopyIn) | AlwaysCopyIn
}

// Synchronize blocks until every dispatch that wrote this view has
// finished and copies device writes back into the host slice. Calling it
// again without a new dispatch does nothing.
//
// If a dispatched kernel failed, the error is returned and the host slice is
// left exactly as it was before the dispatch. ctx only bounds the wait; it
// never cancels work already on the device.
func (v *View[T]) Synchronize(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.SynchronizeDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	for len(v.writes) > 0 {
		ev := v.writes[0]
		select {
		case <-ev.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		v.writes = v.writes[1:]
		if err := ev.Err(); err != nil && v.fault == nil {
			v.fault = err
		}
	}
	v.writes = nil

	if v.fault != nil {
		err := v.fault
		v.fault = nil
		// The device copy may be partially written; the host copy wins.
		v.dirty = false
		v.stale = true
		return fmt.Errorf("synchronize: %w", err)
	}

	if !v.dirty || !v.policy.Has(CopyOutOnSync) {
		return nil
	}
	if err := v.buf.Download(v.host); err != nil {
		return fmt.Errorf("synchronize %s view from %s: %w", v.extent, v.device.Info().Path, err)
	}
	v.dirty = false
	metrics.TransferBytesTotal.WithLabelValues(metrics.DirectionToHost).Add(float64(v.byteSize()))
	return nil
}

// Release waits for outstanding work, copies nothing back and frees the
// device copy. The view can be used again; its next use re-uploads.
func (v *View[T]) Release() error {
	v.drain()
	v.writes = nil
	v.reads = nil
	v.fault = nil
	v.dirty = false
	return v.releaseBuffer()
}

func (v *View[T]) releaseBuffer() error {
	if v.buf == nil {
		return nil
	}
	err := v.buf.Close()
	v.buf = nil
	v.device = nil
	v.stale = true
	return err
}

// prepare makes the view resident on dev, uploading host data when the
// transfer policy asks for it. It returns the number of bytes uploaded.
func (v *View[T]) prepare(ctx context.Context, dev accel.Device) (int, error) {
	if v.buf != nil && v.device != dev {
		// Moving devices: bring the host copy up to date first.
		if err := v.Synchronize(ctx); err != nil {
			return 0, err
		}
		v.drain()
		v.reads = nil
		if err := v.releaseBuffer(); err != nil {
			return 0, err
		}
	}

	if v.buf == nil {
		buf, err := dev.Allocate(reflect.TypeFor[T](), len(v.host))
		if err != nil {
			return 0, fmt.Errorf("allocate %s view on %s: %w", v.extent, dev.Info().Path, err)
		}
		v.buf = buf
		v.device = dev
		v.stale = true
	}

	if !v.stale {
		return 0, nil
	}

	if v.policy.Has(NeverCopyIn) {
		// Discard covers one copy-in; once a kernel has written the device
		// copy it is the data.
		v.policy = (v.policy &^ NeverCopyIn) | AlwaysCopyIn
		v.stale = false
		return 0, nil
	}

	// Earlier launches may still be using the device copy.
	v.drain()
	if err := v.buf.Upload(v.host); err != nil {
		return 0, fmt.Errorf("upload %s view to %s: %w", v.extent, dev.Info().Path, err)
	}
	v.stale = false
	n := v.byteSize()
	metrics.TransferBytesTotal.WithLabelValues(metrics.DirectionToDevice).Add(float64(n))
	return n, nil
}

// failed returns the error of a finished launch that wrote this view and
// has not been reported by Synchronize yet.
func (v *View[T]) failed() error {
	v.writes = v.prune(v.writes, true)
	return v.fault
}

// pendingWrites returns the launches still writing this view.
func (v *View[T]) pendingWrites() []*accel.Event {
	v.writes = v.prune(v.writes, true)
	return slices.Clone(v.writes)
}

// deviceData returns the device-local slice bound by kernels.
func (v *View[T]) deviceData() ([]T, error) {
	data, ok := v.buf.Data().([]T)
	if !ok {
		return nil, fmt.Errorf("%w: device %s returned %T for a []%s view",
			ErrDeviceUnavailable, v.device.Info().Path, v.buf.Data(), reflect.TypeFor[T]())
	}
	return data, nil
}

// track records a launch that uses the view.
func (v *View[T]) track(ev *accel.Event, wrote bool) {
	v.writes = v.prune(v.writes, true)
	v.reads = v.prune(v.reads, false)
	if wrote {
		v.writes = append(v.writes, ev)
		v.dirty = true
	} else {
		v.reads = append(v.reads, ev)
	}
}

// prune drops finished events so the lists stay short. Failures of launches
// that wrote the view are kept for Synchronize.
func (v *View[T]) prune(events []*accel.Event, keepFault bool) []*accel.Event {
	kept := events[:0]
	for _, ev := range events {
		select {
		case <-ev.Done():
			if err := ev.Err(); keepFault && err != nil && v.fault == nil {
				v.fault = err
			}
		default:
			kept = append(kept, ev)
		}
	}
	return kept
}

// drain blocks until every launch that touched the view has finished.
func (v *View[T]) drain() {
	for _, ev := range v.writes {
		<-ev.Done()
	}
	for _, ev := range v.reads {
		<-ev.Done()
	}
}

func (v *View[T]) byteSize() int {
	return len(v.host) * int(reflect.TypeFor[T]().Size())
}
