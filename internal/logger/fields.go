package logger

import (
	"log/slog"
)

// Standard field keys. Use these consistently so log queries work across
// the framework, the modules and the block devices.
const (
	// ========================================================================
	// Tracing and requests
	// ========================================================================
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"

	// ========================================================================
	// Acceleration framework
	// ========================================================================
	KeyModule    = "module"     // module (backend) name
	KeyOpcode    = "opcode"     // operation kind: copy, crc32c, encrypt, ...
	KeyChannel   = "channel"    // accel channel id
	KeyKeyName   = "key_name"   // crypto key name
	KeyCipher    = "cipher"     // AES_CBC, AES_XTS
	KeyDriver    = "driver"     // crypto driver hint
	KeyTasks     = "tasks"      // task pool capacity or in-flight count
	KeyBlockSize = "block_size" // data unit / logical block size
	KeyNbytes    = "nbytes"

	// ========================================================================
	// Block devices
	// ========================================================================
	KeyBdev      = "bdev"
	KeyBaseBdev  = "base_bdev"
	KeyBdevType  = "bdev_type" // malloc, badger, s3, crypto
	KeyLBA       = "lba"
	KeyNumBlocks = "num_blocks"
	KeyBucket    = "bucket"
	KeyPath      = "path"

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAddress    = "address"
)

// Module returns an attr for a module name.
func Module(name string) slog.Attr {
	return slog.String(KeyModule, name)
}

// Opcode returns an attr for an operation kind name.
func Opcode(name string) slog.Attr {
	return slog.String(KeyOpcode, name)
}

// KeyName returns an attr for a crypto key name. Never log key material.
func KeyName(name string) slog.Attr {
	return slog.String(KeyKeyName, name)
}

// Bdev returns an attr for a block device name.
func Bdev(name string) slog.Attr {
	return slog.String(KeyBdev, name)
}

// LBA returns an attr for a logical block address.
func LBA(lba uint64) slog.Attr {
	return slog.Uint64(KeyLBA, lba)
}

// DurationMs returns an attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an attr for an error; a nil error yields an empty attr that
// handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
