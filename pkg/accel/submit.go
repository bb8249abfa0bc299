package accel

import (
	"fmt"
	"time"
	"unsafe"
)

// Align4K is the destination alignment required by dualcast.
const Align4K = 0x1000

func (c *Channel) submit(op Opcode, o Operation, nbytes uint64, flags Flags, cb CompletionFunc) error {
	if c.closed {
		return &Error{Op: "submit", Opcode: op.String(), Err: ErrShutdown}
	}

	m := c.modules[op]
	t := c.getTask()
	if t == nil {
		if c.fw.metrics != nil {
			c.fw.metrics.RecordTaskExhausted(op.String())
		}
		return &Error{Op: "submit", Opcode: op.String(), Err: ErrNoTask}
	}

	t.Opcode = op
	t.Op = o
	t.Nbytes = nbytes
	t.Flags = flags
	t.Status = nil
	t.cb = cb
	t.module = m.Name()
	if c.fw.metrics != nil {
		t.submitted = time.Now()
	}

	err := m.Submit(c.moduleCh[op], t)
	if c.fw.metrics != nil {
		c.fw.metrics.RecordSubmit(op.String(), t.module, nbytes, err)
	}
	if err != nil {
		c.putTask(t)
		return &Error{Op: "submit", Module: t.module, Opcode: op.String(), Err: err}
	}
	return nil
}

func invalid(op Opcode, format string, args ...any) error {
	return &Error{Op: "submit", Opcode: op.String(), Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)}
}

// IsAligned reports whether the first byte of b sits on an align boundary.
// align must be a power of two.
func IsAligned(b []byte, align uintptr) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))&(align-1) == 0
}

// AlignedBuffer returns a zeroed n-byte slice whose first byte is aligned
// to align (a power of two).
func AlignedBuffer(n int, align uintptr) []byte {
	raw := make([]byte, n+int(align))
	off := int((align - uintptr(unsafe.Pointer(unsafe.SliceData(raw)))&(align-1)) & (align - 1))
	return raw[off : off+n : off+n]
}

// SubmitCopy copies src into dst.
func (c *Channel) SubmitCopy(dst, src []byte, flags Flags, cb CompletionFunc) error {
	if len(dst) < len(src) {
		return invalid(OpcodeCopy, "destination shorter than source (%d < %d)", len(dst), len(src))
	}
	return c.submit(OpcodeCopy, &CopyOp{Dst: dst, Src: src}, uint64(len(src)), flags, cb)
}

// SubmitDualcast copies src into dst1 and dst2. Both destinations must be
// 4 KiB aligned.
func (c *Channel) SubmitDualcast(dst1, dst2, src []byte, flags Flags, cb CompletionFunc) error {
	if !IsAligned(dst1, Align4K) || !IsAligned(dst2, Align4K) {
		return invalid(OpcodeDualcast, "dualcast requires 4K alignment on destination addresses")
	}
	if len(dst1) < len(src) || len(dst2) < len(src) {
		return invalid(OpcodeDualcast, "destination shorter than source")
	}
	return c.submit(OpcodeDualcast, &DualcastOp{Dst1: dst1, Dst2: dst2, Src: src}, uint64(len(src)), flags, cb)
}

// SubmitCompare compares src1 and src2. A mismatch is reported through the
// completion status by the module.
func (c *Channel) SubmitCompare(src1, src2 []byte, cb CompletionFunc) error {
	if len(src2) < len(src1) {
		return invalid(OpcodeCompare, "second source shorter than first (%d < %d)", len(src2), len(src1))
	}
	return c.submit(OpcodeCompare, &CompareOp{Src1: src1, Src2: src2}, uint64(len(src1)), 0, cb)
}

// SubmitFill fills dst with the byte fill.
func (c *Channel) SubmitFill(dst []byte, fill byte, flags Flags, cb CompletionFunc) error {
	return c.submit(OpcodeFill, &FillOp{Dst: dst, Pattern: FillPattern(fill)}, uint64(len(dst)), flags, cb)
}

// SubmitCRC32C computes the CRC-32C of src into *crc.
func (c *Channel) SubmitCRC32C(crc *uint32, src []byte, seed uint32, cb CompletionFunc) error {
	if crc == nil {
		return invalid(OpcodeCRC32C, "nil crc destination")
	}
	return c.submit(OpcodeCRC32C, &CRC32COp{Src: [][]byte{src}, Seed: seed, CRC: crc}, uint64(len(src)), 0, cb)
}

// SubmitCRC32Cv computes a chained CRC-32C over the vector src.
func (c *Channel) SubmitCRC32Cv(crc *uint32, src [][]byte, seed uint32, cb CompletionFunc) error {
	if crc == nil {
		return invalid(OpcodeCRC32C, "nil crc destination")
	}
	if len(src) == 0 {
		return invalid(OpcodeCRC32C, "empty source vector")
	}
	return c.submit(OpcodeCRC32C, &CRC32COp{Src: src, Seed: seed, CRC: crc}, IOVecLen(src), 0, cb)
}

// SubmitCopyCRC32C copies src into dst and computes its CRC-32C.
func (c *Channel) SubmitCopyCRC32C(dst, src []byte, crc *uint32, seed uint32, flags Flags, cb CompletionFunc) error {
	return c.SubmitCopyCRC32Cv(dst, [][]byte{src}, crc, seed, flags, cb)
}

// SubmitCopyCRC32Cv copies the vector src into dst and computes a chained
// CRC-32C.
func (c *Channel) SubmitCopyCRC32Cv(dst []byte, src [][]byte, crc *uint32, seed uint32, flags Flags, cb CompletionFunc) error {
	if crc == nil {
		return invalid(OpcodeCopyCRC32C, "nil crc destination")
	}
	if len(src) == 0 {
		return invalid(OpcodeCopyCRC32C, "empty source vector")
	}
	n := IOVecLen(src)
	if uint64(len(dst)) < n {
		return invalid(OpcodeCopyCRC32C, "destination shorter than source (%d < %d)", len(dst), n)
	}
	return c.submit(OpcodeCopyCRC32C, &CopyCRC32COp{Dst: dst, Src: src, Seed: seed, CRC: crc}, n, flags, cb)
}

// SubmitCompress compresses the vector src into dst. The compressed size
// is stored in *outputSize on success.
func (c *Channel) SubmitCompress(dst []byte, src [][]byte, outputSize *uint32, flags Flags, cb CompletionFunc) error {
	if len(src) == 0 {
		return invalid(OpcodeCompress, "empty source vector")
	}
	if outputSize == nil {
		return invalid(OpcodeCompress, "nil output size")
	}
	return c.submit(OpcodeCompress, &CompressOp{Dst: dst, Src: src, OutputSize: outputSize}, IOVecLen(src), flags, cb)
}

// SubmitDecompress decompresses the vector src into the vector dst.
// outputSize may be nil.
func (c *Channel) SubmitDecompress(dst, src [][]byte, outputSize *uint32, flags Flags, cb CompletionFunc) error {
	if len(src) == 0 || len(dst) == 0 {
		return invalid(OpcodeDecompress, "empty source or destination vector")
	}
	return c.submit(OpcodeDecompress, &DecompressOp{Dst: dst, Src: src, OutputSize: outputSize}, IOVecLen(src), flags, cb)
}

func (c *Channel) checkCrypto(op Opcode, key *CryptoKey, dst, src [][]byte) (uint64, error) {
	if key == nil || len(dst) == 0 || len(src) == 0 {
		return 0, invalid(op, "key, source and destination are required")
	}
	srcLen, dstLen := IOVecLen(src), IOVecLen(dst)
	if srcLen != dstLen || srcLen == 0 {
		return 0, &Error{Op: "submit", Opcode: op.String(), Key: key.name, Err: ErrRange}
	}
	if !key.live.Load() {
		return 0, invalid(op, "crypto key %q has been destroyed", key.name)
	}
	if key.module != c.modules[op] {
		return 0, invalid(op, "crypto key %q belongs to module %s, %s is assigned to %s",
			key.name, key.module.Name(), op, c.modules[op].Name())
	}
	return srcLen, nil
}

// SubmitEncrypt encrypts the vector src into the vector dst with key. The
// totals of src and dst must be equal and non-zero. Data unit i of
// blockSize bytes uses iv+i.
func (c *Channel) SubmitEncrypt(key *CryptoKey, dst, src [][]byte, iv uint64, blockSize uint32, flags Flags, cb CompletionFunc) error {
	n, err := c.checkCrypto(OpcodeEncrypt, key, dst, src)
	if err != nil {
		return err
	}
	op := &EncryptOp{CryptoOp{Key: key, Dst: dst, Src: src, IV: iv, BlockSize: blockSize}}
	return c.submit(OpcodeEncrypt, op, n, flags, cb)
}

// SubmitDecrypt decrypts the vector src into the vector dst with key.
// blockSize must be non-zero.
func (c *Channel) SubmitDecrypt(key *CryptoKey, dst, src [][]byte, iv uint64, blockSize uint32, flags Flags, cb CompletionFunc) error {
	n, err := c.checkCrypto(OpcodeDecrypt, key, dst, src)
	if err != nil {
		return err
	}
	if blockSize == 0 {
		return invalid(OpcodeDecrypt, "block size must be non-zero")
	}
	op := &DecryptOp{CryptoOp{Key: key, Dst: dst, Src: src, IV: iv, BlockSize: blockSize}}
	return c.submit(OpcodeDecrypt, op, n, flags, cb)
}
