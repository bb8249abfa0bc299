package accel

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// MaxTasksPerChannel is the default task pool capacity of a channel.
const MaxTasksPerChannel = 0x800

// Channel is a per-goroutine submission context: a fixed task arena, its
// free-index stack, and one module sub-channel per opcode slot.
//
// A Channel must only be used by one goroutine at a time. Handing a
// channel to another goroutine through a Go channel or mutex is fine.
type Channel struct {
	fw *Framework
	id string

	tasks []Task
	free  []int32 // LIFO stack of free task indexes

	modules  [OpcodeCount]Module
	moduleCh [OpcodeCount]ModuleChannel
	pollers  []ModuleChannel

	inFlight int
	closed   bool
}

// GetIOChannel creates a channel for the calling goroutine. The framework
// must be started. Release it with Put.
func (fw *Framework) GetIOChannel() (*Channel, error) {
	if !fw.started.Load() {
		return nil, opError("get_channel", ErrNotStarted)
	}
	if err := fw.acquireChannelRef(); err != nil {
		return nil, err
	}
	table := fw.table.Load()
	if table == nil {
		fw.releaseChannelRef()
		return nil, opError("get_channel", ErrShutdown)
	}

	ch := &Channel{fw: fw, id: uuid.NewString()}
	ch.modules = *table
	ch.allocTasks(fw.maxTasks, fw.taskCtxSize)

	for op := Opcode(0); op < OpcodeCount; op++ {
		m := ch.modules[op]
		mch, err := m.GetIOChannel(ch)
		if err != nil {
			ch.releaseModuleChannels(op)
			ch.tasks, ch.free = nil, nil
			fw.releaseChannelRef()
			logger.Warn("accel channel creation failed",
				logger.KeyModule, m.Name(), logger.KeyOpcode, op.String(), logger.KeyError, err)
			return nil, &Error{Op: "get_channel", Module: m.Name(), Opcode: op.String(), Err: err}
		}
		ch.moduleCh[op] = mch
	}

	seen := make(map[ModuleChannel]struct{}, OpcodeCount)
	for _, mch := range ch.moduleCh {
		if _, ok := seen[mch]; ok {
			continue
		}
		seen[mch] = struct{}{}
		ch.pollers = append(ch.pollers, mch)
	}

	logger.Debug("accel channel created", logger.KeyChannel, ch.id, logger.KeyTasks, len(ch.tasks))
	return ch, nil
}

// allocTasks builds the arena. Module contexts share one backing slice.
func (c *Channel) allocTasks(n, ctxSize int) {
	c.tasks = make([]Task, n)
	c.free = make([]int32, n)

	var ctxArea []byte
	if ctxSize > 0 {
		ctxArea = make([]byte, n*ctxSize)
	}
	for i := range c.tasks {
		t := &c.tasks[i]
		t.ch = c
		t.index = int32(i)
		if ctxSize > 0 {
			t.ModuleCtx = ctxArea[i*ctxSize : (i+1)*ctxSize : (i+1)*ctxSize]
		}
		// Lowest index on top of the stack.
		c.free[n-1-i] = int32(i)
	}
}

// releaseModuleChannels puts the sub-channels of slots [0, upto).
func (c *Channel) releaseModuleChannels(upto Opcode) {
	for op := Opcode(0); op < upto; op++ {
		if c.moduleCh[op] != nil {
			c.moduleCh[op].Put()
			c.moduleCh[op] = nil
		}
	}
}

// ID returns the channel's identifier, used in logs.
func (c *Channel) ID() string {
	return c.id
}

// Capacity returns the size of the task pool.
func (c *Channel) Capacity() int {
	return len(c.tasks)
}

// Available returns the number of free tasks.
func (c *Channel) Available() int {
	return len(c.free)
}

// InFlight returns the number of accepted, not yet completed tasks.
func (c *Channel) InFlight() int {
	return c.inFlight
}

// Poll reaps completions from every module sub-channel and returns how
// many tasks were completed.
func (c *Channel) Poll() int {
	n := 0
	for _, p := range c.pollers {
		n += p.Poll()
	}
	return n
}

// Drain polls until every in-flight task has completed or ctx is done.
func (c *Channel) Drain(ctx context.Context) error {
	idle := 0
	for c.inFlight > 0 {
		if c.Poll() > 0 {
			idle = 0
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		idle++
		if idle < 64 {
			runtime.Gosched()
		} else {
			time.Sleep(20 * time.Microsecond)
		}
	}
	return nil
}

// Put waits for in-flight tasks, releases every sub-channel and drops the
// arena. Calling Put twice is a no-op.
func (c *Channel) Put() {
	if c.closed {
		return
	}
	_ = c.Drain(context.Background())

	c.closed = true
	c.releaseModuleChannels(OpcodeCount)
	c.pollers = nil
	c.tasks, c.free = nil, nil
	c.fw.releaseChannelRef()

	logger.Debug("accel channel released", logger.KeyChannel, c.id)
}

func (c *Channel) getTask() *Task {
	n := len(c.free)
	if n == 0 {
		return nil
	}
	idx := c.free[n-1]
	c.free = c.free[:n-1]

	t := &c.tasks[idx]
	t.state = taskInFlight
	c.inFlight++
	return t
}

func (c *Channel) putTask(t *Task) {
	t.state = taskFree
	t.Op = nil
	t.cb = nil
	c.free = append(c.free, t.index)
	c.inFlight--
}
