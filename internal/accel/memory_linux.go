//go:build linux

package accel

import "golang.org/x/sys/unix"

// totalSystemMemory returns total system memory in bytes
func totalSystemMemory() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return int64(info.Totalram) * int64(info.Unit)
}
