package accel

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HostPath is the path of the fallback device used when no default is set.
const HostPath = "host"

// HostBackend exposes the calling goroutine as a device. Launches run inline
// and complete before Launch returns, and kernels may use every host
// capability. It is the fallback when no default device has been chosen.
type HostBackend struct {
	logger      *zap.Logger
	device      *localDevice
	initialized bool
}

// NewHostBackend creates the host fallback backend.
func NewHostBackend(logger *zap.Logger) *HostBackend {
	return &HostBackend{logger: logger.Named("host_backend")}
}

func (h *HostBackend) Name() string {
	return HostPath
}

func (h *HostBackend) IsAvailable() bool {
	return true
}

func (h *HostBackend) Initialize() error {
	if h.initialized {
		return nil
	}
	h.device = &localDevice{
		info: DeviceInfo{
			ID:            uuid.NewString(),
			Path:          HostPath,
			Description:   fmt.Sprintf("Host (%s, inline)", runtime.GOARCH),
			Backend:       HostPath,
			Workers:       1,
			TotalMemory:   totalSystemMemory(),
			Features:      cpuFeatures(),
			Capabilities:  CapAll,
			DriverVersion: runtime.Version(),
		},
		exec: func(n int, prog Program) error {
			return runRange(prog, 0, n)
		},
	}
	h.initialized = true
	h.logger.Debug("host backend initialized")
	return nil
}

func (h *HostBackend) Devices() []Device {
	if !h.initialized {
		return nil
	}
	return []Device{h.device}
}

func (h *HostBackend) Cleanup() error {
	if h.device != nil {
		h.device.shutdown()
	}
	h.initialized = false
	return nil
}
