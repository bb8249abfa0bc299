package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccelMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewAccelMetrics(reg).(*accelMetrics)

	m.RecordSubmit("copy", "software", 4096, nil)
	m.RecordSubmit("copy", "software", 4096, nil)
	m.RecordSubmit("encrypt", "cryptodev", 512, errors.New("queue full"))
	m.RecordCompletion("copy", "software", 3*time.Microsecond, nil)
	m.RecordCompletion("compare", "software", time.Microsecond, errors.New("miscompare"))
	m.RecordTaskExhausted("fill")
	m.SetLiveChannels(3)
	m.SetCryptoKeys(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("copy", "software", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("encrypt", "cryptodev", "rejected")))
	assert.Equal(t, 8192.0, testutil.ToFloat64(m.submitBytes.WithLabelValues("copy", "software")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.submitBytes.WithLabelValues("encrypt", "cryptodev")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("compare", "software", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("fill")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.liveChannels))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cryptoKeys))

	n, err := testutil.GatherAndCount(reg, "dittoaccel_operation_latency_microseconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBdevMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewBdevMetrics(reg).(*bdevMetrics)

	m.ObserveIO("crypto0", "write", 4096, time.Millisecond, nil)
	m.ObserveIO("crypto0", "read", 4096, time.Millisecond, errors.New("io"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("crypto0", "write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("crypto0", "read", "error")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.bytes.WithLabelValues("crypto0", "write")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.bytes.WithLabelValues("crypto0", "read")))
}
