package accel

// Operation is the opcode-specific part of a task. The set of
// implementations is closed; modules type-switch on Task.Op.
type Operation interface {
	opcode() Opcode
}

// Flags modify how a module executes an operation.
type Flags uint32

const (
	// FlagPersistent marks the destination as persistent memory; modules
	// must make the data durable before completing.
	FlagPersistent Flags = 1 << 0
)

// CopyOp copies Src into Dst. len(Dst) >= len(Src).
type CopyOp struct {
	Dst []byte
	Src []byte
}

// FillOp writes Pattern (one byte replicated eight times) over Dst.
type FillOp struct {
	Dst     []byte
	Pattern uint64
}

// DualcastOp copies Src into both Dst1 and Dst2.
type DualcastOp struct {
	Dst1 []byte
	Dst2 []byte
	Src  []byte
}

// CompareOp compares Src1 and Src2 over len(Src1) bytes.
type CompareOp struct {
	Src1 []byte
	Src2 []byte
}

// CRC32COp computes a CRC-32C over the concatenation of Src, seeded with
// Seed, and stores the result in *CRC.
type CRC32COp struct {
	Src  [][]byte
	Seed uint32
	CRC  *uint32
}

// CopyCRC32COp copies the concatenation of Src into Dst while computing its
// CRC-32C.
type CopyCRC32COp struct {
	Dst  []byte
	Src  [][]byte
	Seed uint32
	CRC  *uint32
}

// CompressOp compresses the concatenation of Src into Dst and stores the
// compressed length in *OutputSize.
type CompressOp struct {
	Dst        []byte
	Src        [][]byte
	OutputSize *uint32
}

// DecompressOp decompresses the concatenation of Src into the Dst vector.
// OutputSize is optional.
type DecompressOp struct {
	Dst        [][]byte
	Src        [][]byte
	OutputSize *uint32
}

// CryptoOp holds the parameters shared by encrypt and decrypt. The payload
// is split into data units of BlockSize bytes; unit i uses IV+i as its
// tweak or initialization vector.
type CryptoOp struct {
	Key       *CryptoKey
	Dst       [][]byte
	Src       [][]byte
	IV        uint64
	BlockSize uint32
}

// EncryptOp encrypts Src into Dst.
type EncryptOp struct{ CryptoOp }

// DecryptOp decrypts Src into Dst.
type DecryptOp struct{ CryptoOp }

func (*CopyOp) opcode() Opcode       { return OpcodeCopy }
func (*FillOp) opcode() Opcode       { return OpcodeFill }
func (*DualcastOp) opcode() Opcode   { return OpcodeDualcast }
func (*CompareOp) opcode() Opcode    { return OpcodeCompare }
func (*CRC32COp) opcode() Opcode     { return OpcodeCRC32C }
func (*CopyCRC32COp) opcode() Opcode { return OpcodeCopyCRC32C }
func (*CompressOp) opcode() Opcode   { return OpcodeCompress }
func (*DecompressOp) opcode() Opcode { return OpcodeDecompress }
func (*EncryptOp) opcode() Opcode    { return OpcodeEncrypt }
func (*DecryptOp) opcode() Opcode    { return OpcodeDecrypt }

// FillPattern replicates b into every byte of a uint64.
func FillPattern(b byte) uint64 {
	return uint64(b) * 0x0101010101010101
}

// IOVecLen returns the total length of a scatter/gather vector.
func IOVecLen(v [][]byte) uint64 {
	var n uint64
	for _, b := range v {
		n += uint64(len(b))
	}
	return n
}
