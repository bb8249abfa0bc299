package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrOpcode   = "accel.opcode"
	AttrModule   = "accel.module"
	AttrKeyName  = "accel.key.name"
	AttrCipher   = "accel.key.cipher"
	AttrBdev     = "bdev.name"
	AttrBaseBdev = "bdev.base"
	AttrLBA      = "bdev.lba"
	AttrBytes    = "bdev.bytes"
)

// Span names.
const (
	SpanFrameworkStart  = "accel.start"
	SpanFrameworkFinish = "accel.finish"
	SpanKeyCreate       = "accel.key.create"
	SpanKeyDestroy      = "accel.key.destroy"
	SpanBdevRead        = "bdev.read"
	SpanBdevWrite       = "bdev.write"
	SpanBdevCreate      = "bdev.create"
	SpanBdevDelete      = "bdev.delete"
)

func Opcode(name string) attribute.KeyValue  { return attribute.String(AttrOpcode, name) }
func Module(name string) attribute.KeyValue  { return attribute.String(AttrModule, name) }
func KeyName(name string) attribute.KeyValue { return attribute.String(AttrKeyName, name) }
func Cipher(name string) attribute.KeyValue  { return attribute.String(AttrCipher, name) }
func Bdev(name string) attribute.KeyValue    { return attribute.String(AttrBdev, name) }
func BaseBdev(name string) attribute.KeyValue {
	return attribute.String(AttrBaseBdev, name)
}

// LBA is clamped to int64 by the attribute API.
func LBA(lba uint64) attribute.KeyValue { return attribute.Int64(AttrLBA, int64(lba)) }
func Bytes(n int) attribute.KeyValue    { return attribute.Int(AttrBytes, n) }

// StartBdevSpan starts a span for block I/O on bdev.
func StartBdevSpan(ctx context.Context, name, bdev string, lba uint64, n int) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(Bdev(bdev), LBA(lba), Bytes(n)))
}

// StartKeySpan starts a span for a keyring operation.
func StartKeySpan(ctx context.Context, name, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(append([]attribute.KeyValue{KeyName(key)}, attrs...)...))
}
