// Package malloc provides a memory-backed block device.
package malloc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittoaccel/pkg/bdev"
)

// Config describes a malloc device.
type Config struct {
	Name      string `mapstructure:"name" validate:"required" yaml:"name" json:"name"`
	BlockSize uint32 `mapstructure:"block_size" validate:"required,min=512" yaml:"block_size" json:"block_size"`
	NumBlocks uint64 `mapstructure:"num_blocks" validate:"required,min=1" yaml:"num_blocks" json:"num_blocks"`
	UUID      string `mapstructure:"uuid" yaml:"uuid,omitempty" json:"uuid,omitempty"`
}

// Device is a block device backed by a single byte slice.
type Device struct {
	name      string
	uuid      string
	blockSize uint32
	numBlocks uint64

	mu     sync.RWMutex
	data   []byte
	closed bool
}

// New allocates a zeroed device.
func New(cfg Config) (*Device, error) {
	if cfg.Name == "" || cfg.BlockSize == 0 || cfg.NumBlocks == 0 {
		return nil, fmt.Errorf("%w: malloc bdev needs a name, block size and block count", bdev.ErrInvalidRange)
	}
	id := cfg.UUID
	if id == "" {
		id = uuid.NewString()
	}
	return &Device{
		name:      cfg.Name,
		uuid:      id,
		blockSize: cfg.BlockSize,
		numBlocks: cfg.NumBlocks,
		data:      make([]byte, uint64(cfg.BlockSize)*cfg.NumBlocks),
	}, nil
}

func (d *Device) Name() string        { return d.name }
func (d *Device) UUID() string        { return d.uuid }
func (d *Device) BlockSize() uint32   { return d.blockSize }
func (d *Device) NumBlocks() uint64   { return d.numBlocks }
func (d *Device) ProductName() string { return "Malloc disk" }

func (d *Device) ReadBlocks(ctx context.Context, lba uint64, buf []byte) error {
	if _, err := bdev.CheckRange(d, lba, buf); err != nil {
		return err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return bdev.ErrClosed
	}
	off := lba * uint64(d.blockSize)
	copy(buf, d.data[off:])
	return nil
}

func (d *Device) WriteBlocks(ctx context.Context, lba uint64, buf []byte) error {
	if _, err := bdev.CheckRange(d, lba, buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return bdev.ErrClosed
	}
	off := lba * uint64(d.blockSize)
	copy(d.data[off:], buf)
	return nil
}

// Close drops the backing memory.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.data = nil
	return nil
}

// Raw returns a copy of the stored bytes of the blocks [lba, lba+n).
func (d *Device) Raw(lba, n uint64) []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	off := lba * uint64(d.blockSize)
	out := make([]byte, n*uint64(d.blockSize))
	copy(out, d.data[off:])
	return out
}

var _ bdev.Device = (*Device)(nil)
