package accel

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMinChunkSize is the smallest number of work-items handed to one worker.
	DefaultMinChunkSize = 64
	// DefaultQueueDepth is the number of launches a device buffers before Launch blocks.
	DefaultQueueDepth = 64
)

// CPUOptions tunes a CPU backend.
type CPUOptions struct {
	Workers      int // 0 means runtime.NumCPU()
	MinChunkSize int
	QueueDepth   int
}

// CPUBackend implements Backend on the host CPU. In parallel mode it exposes
// one device that splits each launch across a pool of workers; in reference
// mode it exposes a sequential emulator useful for checking results.
type CPUBackend struct {
	name        string
	reference   bool
	opts        CPUOptions
	logger      *zap.Logger
	device      *localDevice
	initialized bool
}

// NewCPUBackend creates the parallel CPU backend ("cpu").
func NewCPUBackend(logger *zap.Logger, opts CPUOptions) *CPUBackend {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = DefaultMinChunkSize
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	return &CPUBackend{
		name:   "cpu",
		opts:   opts,
		logger: logger.Named("cpu_backend"),
	}
}

// NewReferenceBackend creates the sequential reference emulator ("ref").
func NewReferenceBackend(logger *zap.Logger, queueDepth int) *CPUBackend {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &CPUBackend{
		name:      "ref",
		reference: true,
		opts:      CPUOptions{Workers: 1, MinChunkSize: 1, QueueDepth: queueDepth},
		logger:    logger.Named("ref_backend"),
	}
}

func (c *CPUBackend) Name() string {
	return c.name
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// Initialize creates the device and starts its launch queue
func (c *CPUBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	info := c.deviceInfo()
	c.device = &localDevice{info: info}
	c.device.exec = c.execute
	c.device.queue = newQueue(info.Path, c.opts.QueueDepth, c.execute, c.logger)
	c.initialized = true
	c.logger.Info("CPU backend initialized",
		zap.String("device", info.Path),
		zap.Int("workers", c.opts.Workers),
		zap.Int("min_chunk_size", c.opts.MinChunkSize))
	return nil
}

// Cleanup drains the launch queue and marks the device unavailable
func (c *CPUBackend) Cleanup() error {
	if c.device != nil {
		c.device.shutdown()
	}
	c.initialized = false
	return nil
}

func (c *CPUBackend) Devices() []Device {
	if !c.initialized {
		return nil
	}
	return []Device{c.device}
}

func (c *CPUBackend) deviceInfo() DeviceInfo {
	info := DeviceInfo{
		ID:            uuid.NewString(),
		Path:          c.name,
		Backend:       c.name,
		Workers:       c.opts.Workers,
		TotalMemory:   totalSystemMemory(),
		Features:      cpuFeatures(),
		Capabilities:  CapNone,
		DriverVersion: runtime.Version(),
	}
	if c.reference {
		info.Emulated = true
		info.Description = fmt.Sprintf("Reference emulator (%s, sequential)", runtime.GOARCH)
	} else {
		info.Description = fmt.Sprintf("CPU (%s, %d workers)", runtime.GOARCH, c.opts.Workers)
	}
	return info
}

// execute splits the linear range into chunks of at least MinChunkSize and
// runs them on up to Workers goroutines.
func (c *CPUBackend) execute(n int, prog Program) error {
	workers := c.opts.Workers
	if workers <= 1 || n <= c.opts.MinChunkSize {
		return runRange(prog, 0, n)
	}

	chunk := max((n+workers-1)/workers, c.opts.MinChunkSize)
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return runRange(prog, lo, hi)
		})
	}
	return g.Wait()
}
