package metrics

import "time"

// BdevMetrics receives block device I/O events.
type BdevMetrics interface {
	// ObserveIO records one read or write. op is "read" or "write".
	ObserveIO(bdev, op string, bytes int, duration time.Duration, err error)
}

var newBdevMetrics func() BdevMetrics

// RegisterBdevMetricsConstructor is called by pkg/metrics/prometheus
// during package initialization.
func RegisterBdevMetricsConstructor(c func() BdevMetrics) {
	newBdevMetrics = c
}

// NewBdevMetrics returns the Prometheus-backed implementation, or nil when
// metrics are disabled.
func NewBdevMetrics() BdevMetrics {
	if !IsEnabled() || newBdevMetrics == nil {
		return nil
	}
	return newBdevMetrics()
}

// ObserveIO is a nil-safe helper.
func ObserveIO(m BdevMetrics, bdev, op string, bytes int, start time.Time, err error) {
	if m != nil {
		m.ObserveIO(bdev, op, bytes, time.Since(start), err)
	}
}
