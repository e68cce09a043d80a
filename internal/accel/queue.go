package accel

import (
	"fmt"
	"sync"
	"time"

	"github.com/fxnlabs/amp-core/internal/metrics"
	"go.uber.org/zap"
)

// executor runs n work-items of prog to completion.
type executor func(n int, prog Program) error

type launch struct {
	n    int
	prog Program
	ev   *Event
}

// queue is the in-order launch queue of one device. A single goroutine drains
// it, so launches never overlap on the same device.
type queue struct {
	mu     sync.Mutex
	jobs   chan launch
	closed bool
	done   chan struct{}
	exec   executor
	device string
	logger *zap.Logger
}

func newQueue(device string, depth int, exec executor, logger *zap.Logger) *queue {
	if depth <= 0 {
		depth = 1
	}
	q := &queue{
		jobs:   make(chan launch, depth),
		done:   make(chan struct{}),
		exec:   exec,
		device: device,
		logger: logger,
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		start := time.Now()
		var err error
		if job.prog != nil {
			err = q.exec(job.n, job.prog)
		}
		if job.n > 0 {
			metrics.KernelLaunchDuration.WithLabelValues(q.device).Observe(float64(time.Since(start).Microseconds()) / 1000)
			metrics.WorkItemsTotal.WithLabelValues(q.device).Add(float64(job.n))
		}
		if err != nil {
			q.logger.Debug("launch failed", zap.Int("work_items", job.n), zap.Error(err))
		}
		job.ev.complete(err)
	}
}

// submit enqueues a launch. It blocks while the queue is full.
func (q *queue) submit(n int, prog Program) (*Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("%w: %s queue is closed", ErrDeviceUnavailable, q.device)
	}
	ev := newEvent()
	q.jobs <- launch{n: n, prog: prog, ev: ev}
	return ev, nil
}

// marker enqueues an empty launch whose event completes once everything
// ahead of it has run.
func (q *queue) marker() (*Event, error) {
	return q.submit(0, nil)
}

func (q *queue) accepting() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

// close stops accepting work and waits for queued launches to drain.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	<-q.done
}
