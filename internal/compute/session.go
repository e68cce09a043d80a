package compute

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fxnlabs/amp-core/internal/accel"
	"go.uber.org/zap"
)

// DeviceSource supplies the devices a Session chooses from.
// *accel.Manager implements it.
type DeviceSource interface {
	Devices() ([]accel.Device, error)
	HostDevice() accel.Device
}

// Session holds the device list and the default device used by dispatches.
// It replaces process-wide state: callers create one Session and pass it to
// every Dispatch.
type Session struct {
	mu      sync.RWMutex
	source  DeviceSource
	devices []accel.Device
	def     accel.Device
	used    bool
	logger  *zap.Logger
}

// NewSession creates a session over source. No device is enumerated yet.
func NewSession(source DeviceSource, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		source: source,
		logger: logger.Named("session"),
	}
}

// Enumerate queries the source and remembers the result as the set
// SetDefault accepts. Order is discovery order.
func (s *Session) Enumerate() ([]accel.Device, error) {
	devices, err := s.source.Devices()
	if err == nil && len(devices) == 0 {
		err = ErrNoDeviceFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.used {
			s.devices = nil
		}
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if s.def != nil && s.used && !slices.Contains(devices, s.def) {
		// The pinned default must stay enumerated; keep the previous list.
		return nil, fmt.Errorf("%w: default device %s is in use and no longer enumerated",
			ErrInvalidOperation, s.def.Info().Path)
	}
	s.devices = devices
	if s.def != nil && !s.used && !slices.Contains(devices, s.def) {
		s.logger.Warn("default device no longer enumerated, reverting to host",
			zap.String("device", s.def.Info().Path))
		s.def = nil
	}
	return slices.Clone(devices), nil
}

// Devices returns the result of the last Enumerate.
func (s *Session) Devices() []accel.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.devices)
}

// DeviceByPath finds a device of the last enumeration by its path.
func (s *Session) DeviceByPath(path string) (accel.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.Info().Path == path {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no enumerated device with path %q", ErrInvalidDevice, path)
}

// SetDefault makes dev the device used by later dispatches. dev must come
// from the last Enumerate. Once a dispatch has used the default it can no
// longer be changed to a different device.
func (s *Session) SetDefault(dev accel.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dev == nil || !slices.Contains(s.devices, dev) {
		return fmt.Errorf("%w: device is not in the last enumeration", ErrInvalidDevice)
	}
	if s.def == dev {
		return nil
	}
	if s.used {
		return fmt.Errorf("%w: default device already in use by a dispatch", ErrInvalidOperation)
	}
	s.def = dev
	s.logger.Info("default device set",
		zap.String("device", dev.Info().Path),
		zap.String("description", dev.Info().Description))
	return nil
}

// SetDefaultPath is SetDefault for the enumerated device with the given path.
func (s *Session) SetDefaultPath(path string) error {
	dev, err := s.DeviceByPath(path)
	if err != nil {
		return err
	}
	return s.SetDefault(dev)
}

// Default returns the default device, or the host fallback if none was set.
func (s *Session) Default() accel.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.def != nil {
		return s.def
	}
	return s.source.HostDevice()
}

// acquire returns the default device for a dispatch and pins it.
func (s *Session) acquire() (accel.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.def
	if dev == nil {
		dev = s.source.HostDevice()
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: no default device and no host fallback", ErrDeviceUnavailable)
	}
	s.used = true
	return dev, nil
}

// Wait blocks until every launch submitted to the session's devices has finished.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.RLock()
	devices := slices.Clone(s.devices)
	def := s.def
	s.mu.RUnlock()

	if def != nil && !slices.Contains(devices, def) {
		devices = append(devices, def)
	}
	for _, d := range devices {
		if err := d.Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", d.Info().Path, err)
		}
	}
	return nil
}
