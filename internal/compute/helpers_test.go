package compute

import (
	"reflect"
	"testing"

	"github.com/fxnlabs/amp-core/internal/accel"
	"github.com/fxnlabs/amp-core/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestManager builds a manager with the default cpu and ref backends.
func newTestManager(t *testing.T) *accel.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Compute.Workers = 4
	cfg.Compute.MinChunkSize = 8
	m, err := accel.NewManager(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Cleanup() })
	return m
}

// newTestSession returns an enumerated session, optionally with a default device.
func newTestSession(t *testing.T, defaultPath string) *Session {
	t.Helper()
	s := NewSession(newTestManager(t), zaptest.NewLogger(t))
	_, err := s.Enumerate()
	require.NoError(t, err)
	if defaultPath != "" {
		require.NoError(t, s.SetDefaultPath(defaultPath))
	}
	return s
}

type fakeSource struct {
	devices []accel.Device
	host    accel.Device
	err     error
}

func (f *fakeSource) Devices() ([]accel.Device, error) { return f.devices, f.err }
func (f *fakeSource) HostDevice() accel.Device         { return f.host }

// lossyDevice wraps a real device and fails every device-to-host copy.
type lossyDevice struct {
	accel.Device
}

func (d *lossyDevice) Allocate(elem reflect.Type, n int) (accel.Buffer, error) {
	b, err := d.Device.Allocate(elem, n)
	if err != nil {
		return nil, err
	}
	return &lossyBuffer{Buffer: b}, nil
}

type lossyBuffer struct {
	accel.Buffer
}

func (b *lossyBuffer) Download(any) error {
	return accel.ErrDeviceLost
}

func iota32(n int, scale int32) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i) * scale
	}
	return out
}
