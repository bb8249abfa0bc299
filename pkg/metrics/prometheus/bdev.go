package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoaccel/pkg/metrics"
)

type bdevMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewBdevMetrics registers the block device collectors on reg.
func NewBdevMetrics(reg prometheus.Registerer) metrics.BdevMetrics {
	f := promauto.With(reg)
	return &bdevMetrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_bdev_operations_total",
				Help: "Block device operations by device, operation and status",
			},
			[]string{"bdev", "op", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoaccel_bdev_operation_duration_milliseconds",
				Help: "Block device operation duration in milliseconds",
				Buckets: []float64{
					0.05, // malloc
					0.1,
					0.5,
					1,
					5, // badger
					10,
					50,
					100, // s3
					500,
				},
			},
			[]string{"bdev", "op"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_bdev_bytes_total",
				Help: "Bytes transferred by block devices",
			},
			[]string{"bdev", "op"},
		),
	}
}

func (m *bdevMetrics) ObserveIO(bdev, op string, bytes int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(bdev, op, status).Inc()
	m.duration.WithLabelValues(bdev, op).Observe(float64(duration.Microseconds()) / 1000.0)
	if err == nil {
		m.bytes.WithLabelValues(bdev, op).Add(float64(bytes))
	}
}
