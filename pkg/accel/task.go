package accel

import (
	"time"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// CompletionFunc receives the final status of a submitted operation. A nil
// status means success.
type CompletionFunc func(status error)

type taskState uint8

const (
	taskFree taskState = iota
	taskInFlight
)

// Task is one in-flight operation. Tasks live in their channel's arena and
// are reused; modules must not retain a task after completing it.
type Task struct {
	// Opcode is the operation kind; Op holds the matching *XxxOp value.
	Opcode Opcode
	Op     Operation

	// Nbytes is the operation's input size in bytes.
	Nbytes uint64
	Flags  Flags

	// Status is the status passed to the most recent Complete.
	Status error

	// ModuleCtx is per-task scratch space for the module executing the
	// task, sized to the largest ContextSizer request. It is not cleared
	// between uses.
	ModuleCtx []byte

	ch        *Channel
	index     int32
	state     taskState
	cb        CompletionFunc
	module    string
	submitted time.Time
}

// Channel returns the framework channel that owns the task.
func (t *Task) Channel() *Channel {
	return t.ch
}

// Complete finishes the task. The task is returned to its channel's pool
// before the completion callback runs, so a callback may resubmit on the
// same channel even when the pool was otherwise empty.
//
// Complete must be called exactly once per accepted task, from the
// goroutine owning the channel (usually inside ModuleChannel.Poll).
func (t *Task) Complete(status error) {
	if t.state != taskInFlight {
		logger.Error("accel task completed while not in flight",
			logger.KeyOpcode, t.Opcode.String(),
			logger.KeyModule, t.module,
			logger.KeyChannel, t.ch.id)
		return
	}

	ch := t.ch
	cb := t.cb
	t.Status = status

	if m := ch.fw.metrics; m != nil {
		m.RecordCompletion(t.Opcode.String(), t.module, time.Since(t.submitted), status)
	}

	ch.putTask(t)

	if cb != nil {
		cb(status)
	}
}
