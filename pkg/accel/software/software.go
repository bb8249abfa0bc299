// Package software is the CPU fallback module. It supports every opcode,
// executes work inline at submission and delivers completions from the
// owning channel's Poll.
package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/marmos91/dittoaccel/internal/blockcipher"
	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/memop"
	"github.com/marmos91/dittoaccel/pkg/accel"
)

// Name is the module name.
const Name = accel.SoftwareModuleName

var (
	// ErrMiscompare is the completion status of a compare whose buffers
	// differ.
	ErrMiscompare = memop.ErrMiscompare

	// ErrOutputOverflow is the completion status of a compress or
	// decompress whose output does not fit the destination.
	ErrOutputOverflow = errors.New("output exceeds destination buffer")
)

// Config configures the module.
type Config struct {
	// CompressionLevel is a flate level, -2 (Huffman only) to 9. Zero
	// selects flate.DefaultCompression.
	CompressionLevel int `mapstructure:"compression_level" validate:"min=-2,max=9" yaml:"compression_level" json:"compression_level"`
}

// Module implements accel.Module and accel.CryptoKeyModule.
type Module struct {
	level int

	mu       sync.Mutex
	channels map[*accel.Channel]*ioChannel
}

// New creates the module.
func New(cfg Config) *Module {
	level := cfg.CompressionLevel
	if level == 0 {
		level = flate.DefaultCompression
	}
	return &Module{level: level, channels: make(map[*accel.Channel]*ioChannel)}
}

// Register adds a software module to fw.
func Register(fw *accel.Framework, cfg Config) error {
	return fw.Register(New(cfg))
}

func (m *Module) Name() string { return Name }

func (m *Module) Init() error {
	logger.Debug("software accel module initialized", "compression_level", m.level)
	return nil
}

func (m *Module) Fini(done func()) {
	done()
}

func (m *Module) SupportsOpcode(op accel.Opcode) bool {
	return op.Valid()
}

// GetIOChannel returns the sub-channel shared by every opcode slot of
// owner.
func (m *Module) GetIOChannel(owner *accel.Channel) (accel.ModuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.channels[owner]; ok {
		c.refs++
		return c, nil
	}
	c := &ioChannel{m: m, owner: owner, refs: 1}
	m.channels[owner] = c
	return c, nil
}

func (m *Module) Submit(ch accel.ModuleChannel, t *accel.Task) error {
	c := ch.(*ioChannel)
	c.done = append(c.done, completion{task: t, status: c.execute(t)})
	return nil
}

// CryptoKeyInit builds the key's cipher. The driver hint is ignored.
func (m *Module) CryptoKeyInit(key *accel.CryptoKey) error {
	u, err := blockcipher.New(key.Cipher(), key.Key1(), key.Key2())
	if err != nil {
		return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
	}
	key.Priv = u
	return nil
}

func (m *Module) CryptoKeyDeinit(key *accel.CryptoKey) {
	key.Priv = nil
}

type completion struct {
	task   *accel.Task
	status error
}

type ioChannel struct {
	m     *Module
	owner *accel.Channel
	refs  int

	done  []completion
	spare []completion

	zw *flate.Writer
}

// Poll completes every task queued before the call. Tasks submitted from
// completion callbacks are delivered on the next Poll, which may be a
// nested one.
func (c *ioChannel) Poll() int {
	if len(c.done) == 0 {
		return 0
	}
	q := c.done
	// A nested Poll must not append into the batch still being delivered.
	c.done, c.spare = c.spare[:0], nil

	for _, d := range q {
		d.task.Complete(d.status)
	}
	n := len(q)
	clear(q)
	c.spare = q[:0]
	return n
}

func (c *ioChannel) Put() {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	c.refs--
	if c.refs == 0 {
		delete(c.m.channels, c.owner)
	}
}

func (c *ioChannel) execute(t *accel.Task) error {
	switch op := t.Op.(type) {
	case *accel.CompressOp:
		return c.compress(op)
	case *accel.DecompressOp:
		return decompress(op)
	case *accel.EncryptOp:
		return crypt(true, &op.CryptoOp)
	case *accel.DecryptOp:
		return crypt(false, &op.CryptoOp)
	}
	return memop.Run(t.Op)
}

func crypt(encrypt bool, op *accel.CryptoOp) error {
	u, ok := op.Key.Priv.(blockcipher.Unit)
	if !ok {
		return fmt.Errorf("%w: key %q has no software cipher", accel.ErrInvalidArgument, op.Key.Name())
	}
	if err := blockcipher.Process(u, encrypt, op.Dst, op.Src, op.IV, op.BlockSize); err != nil {
		return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
	}
	return nil
}
