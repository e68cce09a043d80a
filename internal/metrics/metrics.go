package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amp_dispatches_total",
		Help: "The total number of kernel dispatches",
	}, []string{"device", "status"})

	// Kernel Execution Metrics
	KernelLaunchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "amp_kernel_launch_duration_ms",
		Help:    "Duration of a kernel launch on the device in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20), // 10µs to ~5s
	}, []string{"device"})

	WorkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amp_work_items_total",
		Help: "Total number of work-items executed by device",
	}, []string{"device"})

	// Transfer Metrics
	TransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amp_transfer_bytes_total",
		Help: "Bytes copied between host and device memory",
	}, []string{"direction"})

	SynchronizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "amp_synchronize_duration_ms",
		Help:    "Time spent blocked in view synchronization in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20),
	})

	// Device Metrics
	DevicesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amp_devices_available",
		Help: "Number of devices reported by initialized backends",
	})
)

// Transfer directions used as TransferBytesTotal label values.
const (
	DirectionToDevice = "to_device"
	DirectionToHost   = "to_host"
)
