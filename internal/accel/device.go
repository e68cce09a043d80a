package accel

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
)

// localDevice is a device whose memory and execution live on the host CPU.
// Queued devices run launches on their own goroutine; inline devices (the
// host fallback) run them in the caller's goroutine.
type localDevice struct {
	info   DeviceInfo
	exec   executor
	queue  *queue
	closed atomic.Bool
}

func (d *localDevice) Info() DeviceInfo {
	return d.info
}

func (d *localDevice) String() string {
	return d.info.Path
}

func (d *localDevice) Allocate(elem reflect.Type, n int) (Buffer, error) {
	if !d.Accepting() {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, d.info.Path)
	}
	return newHostBuffer(elem, n)
}

func (d *localDevice) Launch(n int, prog Program) (*Event, error) {
	if d.queue != nil {
		return d.queue.submit(n, prog)
	}
	if !d.Accepting() {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, d.info.Path)
	}
	return completedEvent(d.exec(n, prog)), nil
}

func (d *localDevice) Wait(ctx context.Context) error {
	if d.queue == nil {
		return nil
	}
	ev, err := d.queue.marker()
	if err != nil {
		return err
	}
	return ev.Wait(ctx)
}

func (d *localDevice) Accepting() bool {
	if d.queue != nil {
		return d.queue.accepting()
	}
	return !d.closed.Load()
}

func (d *localDevice) shutdown() {
	d.closed.Store(true)
	if d.queue != nil {
		d.queue.close()
	}
}

// runRange executes prog over [lo, hi), turning a panic in the kernel body
// into ErrKernelFault.
func runRange(prog Program, lo, hi int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: work-items [%d,%d): %v", ErrKernelFault, lo, hi, r)
		}
	}()
	if err := prog.Run(lo, hi); err != nil {
		return fmt.Errorf("%w: %w", ErrKernelFault, err)
	}
	return nil
}
