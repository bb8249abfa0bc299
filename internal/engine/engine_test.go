package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// queueModule runs every opcode through a Pool with a caller-supplied job.
type queueModule struct {
	pool *Pool
	job  Job
}

func (m *queueModule) Name() string                        { return accel.SoftwareModuleName }
func (m *queueModule) Init() error                         { return nil }
func (m *queueModule) Fini(done func())                    { m.pool.Stop(done) }
func (m *queueModule) SupportsOpcode(op accel.Opcode) bool { return true }

func (m *queueModule) GetIOChannel(*accel.Channel) (accel.ModuleChannel, error) {
	return &queueChannel{}, nil
}

func (m *queueModule) Submit(ch accel.ModuleChannel, t *accel.Task) error {
	if !m.pool.TrySubmit(&ch.(*queueChannel).q, t, m.job) {
		return accel.ErrNoTask
	}
	return nil
}

type queueChannel struct{ q Queue }

func (c *queueChannel) Poll() int { return c.q.Poll() }
func (c *queueChannel) Put()      {}

func TestPoolDeliversThroughQueue(t *testing.T) {
	t.Parallel()

	var ran atomic.Int32
	errOdd := errors.New("odd")
	m := &queueModule{pool: Start(4, 64), job: func(t *accel.Task) error {
		ran.Add(1)
		if t.Nbytes%2 == 1 {
			return errOdd
		}
		return nil
	}}

	fw := accel.New(accel.WithMaxTasksPerChannel(64))
	require.NoError(t, fw.Register(m))
	require.NoError(t, fw.Start())

	ch, err := fw.GetIOChannel()
	require.NoError(t, err)

	var ok, failed int
	for i := 1; i <= 32; i++ {
		require.NoError(t, ch.SubmitFill(make([]byte, i), 0, 0, func(s error) {
			if errors.Is(s, errOdd) {
				failed++
			} else {
				ok++
			}
		}))
	}
	require.NoError(t, ch.Drain(context.Background()))
	assert.Equal(t, int32(32), ran.Load())
	assert.Equal(t, 16, ok)
	assert.Equal(t, 16, failed)

	ch.Put()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fw.Shutdown(ctx))
}

// postModule posts each completion at submission, without a pool.
type postModule struct{ queueModule }

func (m *postModule) Fini(done func()) { done() }

func (m *postModule) Submit(ch accel.ModuleChannel, t *accel.Task) error {
	ch.(*queueChannel).q.Post(t, nil)
	return nil
}

func TestQueueNestedPoll(t *testing.T) {
	t.Parallel()

	fw := accel.New(accel.WithMaxTasksPerChannel(64))
	require.NoError(t, fw.Register(&postModule{}))
	require.NoError(t, fw.Start())
	ch, err := fw.GetIOChannel()
	require.NoError(t, err)

	var order []int
	submit := func(id int, cb func()) {
		require.NoError(t, ch.SubmitFill(make([]byte, 8), 0, 0, func(error) {
			order = append(order, id)
			if cb != nil {
				cb()
			}
		}))
	}

	for i := 0; i < 4; i++ {
		submit(-1, nil)
	}
	require.Equal(t, 4, ch.Poll())
	order = nil

	submit(0, func() {
		submit(10, func() {
			submit(20, nil)
			submit(21, nil)
		})
		submit(11, nil)
		ch.Poll()
	})
	submit(1, nil)

	ch.Poll()
	require.NoError(t, ch.Drain(context.Background()))
	assert.Equal(t, []int{0, 10, 11, 1, 20, 21}, order)

	ch.Put()
	require.NoError(t, fw.Shutdown(context.Background()))
}

func TestTrySubmitFullRing(t *testing.T) {
	t.Parallel()

	// No workers: the ring never drains.
	p := Start(0, 2)
	var q Queue
	job := func(*accel.Task) error { return nil }

	assert.True(t, p.TrySubmit(&q, nil, job))
	assert.True(t, p.TrySubmit(&q, nil, job))
	assert.False(t, p.TrySubmit(&q, nil, job))
	assert.Equal(t, 0, q.Len())
}

func TestStopWaitsForQueuedJobs(t *testing.T) {
	t.Parallel()

	p := Start(1, 8)
	var q Queue
	release := make(chan struct{})
	var ran atomic.Int32
	job := func(*accel.Task) error {
		<-release
		ran.Add(1)
		return nil
	}
	for i := 0; i < 3; i++ {
		require.True(t, p.TrySubmit(&q, nil, job))
	}

	stopped := make(chan struct{})
	p.Stop(func() { close(stopped) })

	select {
	case <-stopped:
		t.Fatal("stopped before queued jobs ran")
	case <-time.After(10 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 3, q.Len())
}
