// Package memop executes the memory operations shared by the software and
// dma modules.
package memop

import (
	"bytes"
	"errors"
	"hash/crc32"

	"github.com/marmos91/dittoaccel/pkg/accel"
)

var (
	// ErrMiscompare is the completion status of a compare whose buffers
	// differ.
	ErrMiscompare = errors.New("buffers differ")

	// ErrUnsupported is returned by Run for operations it does not handle.
	ErrUnsupported = errors.New("operation not handled by memop")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C continues the CRC-32C seed over the concatenation of v. Passing a
// previous result as seed chains the checksum across calls.
func CRC32C(seed uint32, v [][]byte) uint32 {
	crc := seed
	for _, b := range v {
		crc = crc32.Update(crc, castagnoli, b)
	}
	return crc
}

// Handles reports whether Run can execute op.
func Handles(op accel.Opcode) bool {
	switch op {
	case accel.OpcodeCopy, accel.OpcodeFill, accel.OpcodeDualcast, accel.OpcodeCompare,
		accel.OpcodeCRC32C, accel.OpcodeCopyCRC32C:
		return true
	}
	return false
}

// Run executes a memory operation and returns its completion status.
func Run(o accel.Operation) error {
	switch op := o.(type) {
	case *accel.CopyOp:
		copy(op.Dst, op.Src)

	case *accel.FillOp:
		fill(op.Dst, byte(op.Pattern))

	case *accel.DualcastOp:
		copy(op.Dst1, op.Src)
		copy(op.Dst2, op.Src)

	case *accel.CompareOp:
		if !bytes.Equal(op.Src1, op.Src2[:len(op.Src1)]) {
			return ErrMiscompare
		}

	case *accel.CRC32COp:
		*op.CRC = CRC32C(op.Seed, op.Src)

	case *accel.CopyCRC32COp:
		off := 0
		crc := op.Seed
		for _, b := range op.Src {
			off += copy(op.Dst[off:], b)
			crc = crc32.Update(crc, castagnoli, b)
		}
		*op.CRC = crc

	default:
		return ErrUnsupported
	}
	return nil
}

func fill(dst []byte, b byte) {
	if len(dst) == 0 {
		return
	}
	dst[0] = b
	for n := 1; n < len(dst); n *= 2 {
		copy(dst[n:], dst[:n])
	}
}
