// Package prometheus implements the metrics interfaces with
// prometheus/client_golang. Import it for its side effect of registering
// the constructors used by pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoaccel/pkg/metrics"
)

func init() {
	metrics.RegisterAccelMetricsConstructor(func() metrics.AccelMetrics {
		return NewAccelMetrics(metrics.GetRegistry())
	})
	metrics.RegisterBdevMetricsConstructor(func() metrics.BdevMetrics {
		return NewBdevMetrics(metrics.GetRegistry())
	})
}

// accelMetrics is the Prometheus implementation of metrics.AccelMetrics.
type accelMetrics struct {
	submissions  *prometheus.CounterVec
	submitBytes  *prometheus.CounterVec
	completions  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	exhausted    *prometheus.CounterVec
	liveChannels prometheus.Gauge
	cryptoKeys   prometheus.Gauge
}

// NewAccelMetrics registers the framework collectors on reg.
func NewAccelMetrics(reg prometheus.Registerer) metrics.AccelMetrics {
	f := promauto.With(reg)
	return &accelMetrics{
		submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_submissions_total",
				Help: "Operations handed to a module, by opcode, module and acceptance status",
			},
			[]string{"opcode", "module", "status"}, // status: "accepted", "rejected"
		),
		submitBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_submitted_bytes_total",
				Help: "Input bytes of accepted operations",
			},
			[]string{"opcode", "module"},
		),
		completions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_completions_total",
				Help: "Completed operations by opcode, module and status",
			},
			[]string{"opcode", "module", "status"}, // status: "success", "error"
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoaccel_operation_latency_microseconds",
				Help: "Submit to completion latency in microseconds",
				Buckets: []float64{
					1, // inline software copies
					5,
					10,
					50,
					100, // polled offload completions
					500,
					1000,
					5000, // large compress/crypto payloads
					20000,
				},
			},
			[]string{"opcode", "module"},
		),
		exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoaccel_task_pool_exhausted_total",
				Help: "Submissions refused because the channel task pool was empty",
			},
			[]string{"opcode"},
		),
		liveChannels: f.NewGauge(prometheus.GaugeOpts{
			Name: "dittoaccel_channels",
			Help: "Open framework channels",
		}),
		cryptoKeys: f.NewGauge(prometheus.GaugeOpts{
			Name: "dittoaccel_crypto_keys",
			Help: "Keys in the crypto keyring",
		}),
	}
}

func (m *accelMetrics) RecordSubmit(opcode, module string, nbytes uint64, err error) {
	if err != nil {
		m.submissions.WithLabelValues(opcode, module, "rejected").Inc()
		return
	}
	m.submissions.WithLabelValues(opcode, module, "accepted").Inc()
	m.submitBytes.WithLabelValues(opcode, module).Add(float64(nbytes))
}

func (m *accelMetrics) RecordCompletion(opcode, module string, latency time.Duration, status error) {
	s := "success"
	if status != nil {
		s = "error"
	}
	m.completions.WithLabelValues(opcode, module, s).Inc()
	m.latency.WithLabelValues(opcode, module).Observe(float64(latency.Nanoseconds()) / 1e3)
}

func (m *accelMetrics) RecordTaskExhausted(opcode string) {
	m.exhausted.WithLabelValues(opcode).Inc()
}

func (m *accelMetrics) SetLiveChannels(n int) {
	m.liveChannels.Set(float64(n))
}

func (m *accelMetrics) SetCryptoKeys(n int) {
	m.cryptoKeys.Set(float64(n))
}
