package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/fxnlabs/amp-core/internal/metrics"
	"go.uber.org/zap"
)

// Dispatch runs k once for every index of domain on the session's default
// device: out[index] = body(index). Every view the kernel touches must have
// exactly the domain's shape.
//
// All checks happen before any data moves, so a rejected dispatch leaves every
// view untouched. Dispatch returns once the launch is queued; results reach
// the host through the output view's Synchronize, which also reports failures
// that happen while the kernel runs.
func Dispatch[T Number](ctx context.Context, s *Session, domain Extent, k *Kernel[T]) (err error) {
	if k == nil {
		return fmt.Errorf("%w: nil kernel", ErrInvalidOperation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := s.acquire()
	if err != nil {
		return err
	}
	info := dev.Info()
	log := s.logger.With(zap.String("device", info.Path))

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			log.Debug("dispatch rejected", zap.Stringer("domain", domain), zap.Error(err))
		}
		metrics.DispatchesTotal.WithLabelValues(info.Path, status).Inc()
	}()

	if err := k.check(domain, info); err != nil {
		return err
	}
	if !dev.Accepting() {
		return fmt.Errorf("%w: %s does not accept work", ErrDeviceUnavailable, info.Path)
	}

	views := make([]*View[T], 0, len(k.inputs)+1)
	views = append(views, k.out)
	for _, in := range k.inputs {
		if in != k.out {
			views = append(views, in)
		}
	}

	uploaded := 0
	data := make(map[*View[T]][]T, len(views))
	for _, v := range views {
		n, err := v.prepare(ctx, dev)
		if err != nil {
			return err
		}
		uploaded += n
		if data[v], err = v.deviceData(); err != nil {
			return err
		}
	}

	// A failed write leaves the device copy partially written; reading it
	// would hand those results to this kernel.
	var deps []*accel.Event
	for _, in := range k.inputs {
		if err := in.failed(); err != nil {
			return fmt.Errorf("%w: input view %s was written by a failed launch: %w", ErrKernelFault, in.extent, err)
		}
		deps = append(deps, in.pendingWrites()...)
	}

	prog := k.program(domain, data[k.out], data, deps)
	ev, err := dev.Launch(domain.Size(), prog)
	if err != nil {
		return fmt.Errorf("launch on %s: %w", info.Path, err)
	}
	for _, v := range views {
		v.track(ev, v == k.out)
	}

	log.Debug("kernel dispatched",
		zap.Stringer("domain", domain),
		zap.Stringer("kernel", k),
		zap.Int("views", len(views)),
		zap.Int("uploaded_bytes", uploaded),
		zap.Duration("enqueue_time", time.Since(start)))
	return nil
}
