package accel

import (
	"fmt"
	"sync"

	"github.com/fxnlabs/amp-core/internal/config"
	"github.com/fxnlabs/amp-core/internal/metrics"
	"go.uber.org/zap"
)

// Manager handles backend selection and lifecycle. It aggregates the devices
// of every initialized backend and always keeps the host fallback device.
type Manager struct {
	mu       sync.RWMutex
	backends []Backend
	host     *HostBackend
	logger   *zap.Logger
}

// NewManager creates the backends named in cfg.Compute.Backends, in order,
// and initializes the ones available on this system.
func NewManager(cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	host := NewHostBackend(logger)

	var backends []Backend
	for _, name := range cfg.Compute.Backends {
		if name == HostPath {
			backends = append(backends, host)
			continue
		}
		b, err := NewBackend(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return NewManagerWithBackends(logger, host, backends...)
}

// NewManagerWithBackends builds a manager from already constructed backends.
// host may be nil, in which case a new host backend is created.
func NewManagerWithBackends(logger *zap.Logger, host *HostBackend, backends ...Backend) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if host == nil {
		host = NewHostBackend(logger)
	}
	m := &Manager{
		host:   host,
		logger: logger.Named("manager"),
	}
	if err := m.detectAndInitialize(backends); err != nil {
		return nil, err
	}
	return m, nil
}

// detectAndInitialize keeps the backends that are available and initialize cleanly
func (m *Manager) detectAndInitialize(backends []Backend) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.host.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize host backend: %w", err)
	}

	for _, b := range backends {
		if !b.IsAvailable() {
			m.logger.Info("backend not available, skipping", zap.String("backend", b.Name()))
			continue
		}
		if err := b.Initialize(); err != nil {
			m.logger.Warn("backend failed to initialize", zap.String("backend", b.Name()), zap.Error(err))
			// If initialization failed, try cleanup
			_ = b.Cleanup()
			continue
		}
		m.backends = append(m.backends, b)
	}

	count := 0
	for _, b := range m.backends {
		count += len(b.Devices())
	}
	metrics.DevicesAvailable.Set(float64(count))
	m.logger.Info("backends initialized", zap.Strings("backends", m.backendNames()), zap.Int("devices", count))
	return nil
}

// Devices enumerates every device of every initialized backend, in backend
// order. It fails with ErrNoDeviceFound when the list would be empty.
func (m *Manager) Devices() ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var devices []Device
	for _, b := range m.backends {
		devices = append(devices, b.Devices()...)
	}
	if len(devices) == 0 {
		return nil, ErrNoDeviceFound
	}
	return devices, nil
}

// HostDevice returns the fallback device
func (m *Manager) HostDevice() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := m.host.Devices()
	if len(devices) == 0 {
		return nil
	}
	return devices[0]
}

// BackendNames returns the names of the initialized backends
func (m *Manager) BackendNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backendNames()
}

func (m *Manager) backendNames() []string {
	names := make([]string, 0, len(m.backends))
	for _, b := range m.backends {
		names = append(names, b.Name())
	}
	return names
}

// Cleanup releases resources held by every backend, the host fallback included
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, b := range m.backends {
		if b == Backend(m.host) {
			continue
		}
		if err := b.Cleanup(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup %s: %w", b.Name(), err)
		}
	}
	if err := m.host.Cleanup(); err != nil && firstErr == nil {
		firstErr = err
	}
	m.backends = nil
	metrics.DevicesAvailable.Set(0)
	return firstErr
}
