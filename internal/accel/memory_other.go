//go:build !linux

package accel

// totalSystemMemory is not queried outside Linux.
func totalSystemMemory() int64 {
	return 0
}
