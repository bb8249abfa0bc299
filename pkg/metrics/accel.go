package metrics

import "time"

// AccelMetrics receives framework events. Labels are opcode and module
// names, both from small fixed sets.
type AccelMetrics interface {
	// RecordSubmit records a submission handed to a module; err is the
	// module's synchronous acceptance result.
	RecordSubmit(opcode, module string, nbytes uint64, err error)

	// RecordCompletion records a completed task and its submit-to-complete
	// latency.
	RecordCompletion(opcode, module string, latency time.Duration, status error)

	// RecordTaskExhausted records a submission refused for lack of tasks.
	RecordTaskExhausted(opcode string)

	// SetLiveChannels reports the number of open framework channels.
	SetLiveChannels(n int)

	// SetCryptoKeys reports the keyring size.
	SetCryptoKeys(n int)
}

var newAccelMetrics func() AccelMetrics

// RegisterAccelMetricsConstructor is called by pkg/metrics/prometheus
// during package initialization.
func RegisterAccelMetricsConstructor(c func() AccelMetrics) {
	newAccelMetrics = c
}

// NewAccelMetrics returns the Prometheus-backed implementation, or nil when
// metrics are disabled or no implementation is linked in.
func NewAccelMetrics() AccelMetrics {
	if !IsEnabled() || newAccelMetrics == nil {
		return nil
	}
	return newAccelMetrics()
}
