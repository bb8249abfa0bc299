// Package engine provides the worker pool and completion queue used by the
// emulated offload modules. Work runs on pool goroutines; results are posted
// to a per-channel Queue and delivered to tasks by the owner's Poll.
package engine

import (
	"sync"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

// Job computes the completion status of a task.
type Job func(t *accel.Task) error

type item struct {
	q   *Queue
	t   *accel.Task
	run Job
}

// Pool is a fixed set of workers draining a bounded ring.
type Pool struct {
	ring chan item
	wg   sync.WaitGroup
}

// Start launches workers goroutines over a ring of ringSize slots.
func Start(workers, ringSize int) *Pool {
	p := &Pool{ring: make(chan item, ringSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for it := range p.ring {
		it.q.Post(it.t, it.run(it.t))
	}
}

// TrySubmit queues t without blocking. It returns false when the ring is
// full.
func (p *Pool) TrySubmit(q *Queue, t *accel.Task, run Job) bool {
	select {
	case p.ring <- item{q: q, t: t, run: run}:
		return true
	default:
		return false
	}
}

// Stop closes the ring and calls done from another goroutine once every
// queued job has run.
func (p *Pool) Stop(done func()) {
	close(p.ring)
	go func() {
		p.wg.Wait()
		done()
	}()
}

type completion struct {
	t      *accel.Task
	status error
}

// Queue collects completions for one framework channel. Post may be called
// from any goroutine; Poll only from the channel owner.
type Queue struct {
	mu    sync.Mutex
	done  []completion
	spare []completion
}

// Post records the status of t.
func (q *Queue) Post(t *accel.Task, status error) {
	q.mu.Lock()
	q.done = append(q.done, completion{t: t, status: status})
	q.mu.Unlock()
}

// Poll completes every task posted before the call and returns how many.
// Tasks posted from completion callbacks wait for the next Poll, which may
// be nested inside a callback.
func (q *Queue) Poll() int {
	q.mu.Lock()
	batch := q.done
	q.done, q.spare = q.spare[:0], nil
	q.mu.Unlock()

	for _, c := range batch {
		c.t.Complete(c.status)
	}
	n := len(batch)
	clear(batch)

	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()
	return n
}

// Len returns the number of posted, undelivered completions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.done)
}
