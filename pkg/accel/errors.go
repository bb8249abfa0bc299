package accel

import (
	"errors"
	"fmt"
)

// Standard framework errors. API handlers map these to HTTP status codes.
var (
	// ErrInvalidArgument indicates malformed or missing parameters, or a
	// buffer that violates an alignment constraint.
	//
	//   - HTTP: 400 Bad Request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRange indicates that source and destination byte totals of a
	// crypto operation differ or are zero. It also matches
	// ErrInvalidArgument.
	ErrRange = fmt.Errorf("%w: source and destination sizes differ or are zero", ErrInvalidArgument)

	// ErrNotFound indicates an unknown module, crypto key or unassigned
	// opcode.
	//
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("not found")

	// ErrExists indicates a duplicate crypto key or module name.
	//
	//   - HTTP: 409 Conflict
	ErrExists = errors.New("already exists")

	// ErrNoTask indicates that the channel's task pool is empty. This is a
	// backpressure signal; retry after earlier operations complete.
	//
	//   - HTTP: 503 Service Unavailable
	ErrNoTask = errors.New("task pool exhausted")

	// ErrNotSupported indicates a module lacks a required capability.
	//
	//   - HTTP: 501 Not Implemented
	ErrNotSupported = errors.New("not supported")

	// ErrStarted is returned by registration and opcode overrides once the
	// framework has started.
	ErrStarted = errors.New("framework already started")

	// ErrNotStarted is returned when channels are requested before Start.
	ErrNotStarted = errors.New("framework not started")

	// ErrShutdown is returned once Finish has begun.
	ErrShutdown = errors.New("framework is shutting down")
)

// Error wraps a sentinel or module error with the operation context it
// occurred in. errors.Is and errors.As see through it:
//
//	err := fw.AssignOpcode(accel.OpcodeEncrypt, "dma")
//	errors.Is(err, accel.ErrStarted)
type Error struct {
	// Op is the framework operation: "register", "start", "submit",
	// "key_create", "key_destroy", "get_channel".
	Op string

	// Module is the module involved, if any.
	Module string

	// Opcode is the operation kind involved, if any.
	Opcode string

	// Key is the crypto key name involved, if any.
	Key string

	// Err is the wrapped cause.
	Err error
}

func (e *Error) Error() string {
	msg := "accel " + e.Op
	if e.Opcode != "" {
		msg += " opcode=" + e.Opcode
	}
	if e.Module != "" {
		msg += " module=" + e.Module
	}
	if e.Key != "" {
		msg += " key=" + e.Key
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
