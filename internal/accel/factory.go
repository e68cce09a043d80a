package accel

import (
	"fmt"

	"github.com/fxnlabs/amp-core/internal/config"
	"go.uber.org/zap"
)

// NewBackend creates the backend registered under name.
func NewBackend(name string, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	switch name {
	case "cpu":
		return NewCPUBackend(logger, CPUOptions{
			Workers:      cfg.Compute.Workers,
			MinChunkSize: cfg.Compute.MinChunkSize,
			QueueDepth:   cfg.Compute.QueueDepth,
		}), nil
	case "ref":
		return NewReferenceBackend(logger, cfg.Compute.QueueDepth), nil
	case HostPath:
		return NewHostBackend(logger), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
}
