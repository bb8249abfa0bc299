// Package bdev defines block devices and the registry that names them.
//
// A Device exposes fixed-size logical blocks addressed by LBA. Backing
// devices live in subpackages (malloc, badger, s3); the crypto subpackage
// layers transparent encryption over any registered device.
package bdev

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange indicates a request that is not a whole number of
	// blocks or extends past the end of the device.
	ErrInvalidRange = errors.New("invalid block range")

	// ErrNotFound indicates an unknown device name.
	ErrNotFound = errors.New("bdev not found")

	// ErrExists indicates a duplicate device name.
	ErrExists = errors.New("bdev already exists")

	// ErrClaimed indicates a device already claimed by another module.
	ErrClaimed = errors.New("bdev is claimed")

	// ErrClosed is returned by I/O on a closed device.
	ErrClosed = errors.New("bdev is closed")
)

// Device is a block device.
type Device interface {
	// Name returns the unique device name.
	Name() string

	// UUID returns the device identifier.
	UUID() string

	// BlockSize returns the logical block size in bytes.
	BlockSize() uint32

	// NumBlocks returns the device size in blocks.
	NumBlocks() uint64

	// ReadBlocks fills buf from the blocks starting at lba. len(buf) must
	// be a multiple of BlockSize.
	ReadBlocks(ctx context.Context, lba uint64, buf []byte) error

	// WriteBlocks writes buf to the blocks starting at lba. len(buf) must
	// be a multiple of BlockSize.
	WriteBlocks(ctx context.Context, lba uint64, buf []byte) error

	// Close releases the device.
	Close() error
}

// ProductNamer is implemented by devices that report a product name
// ("Malloc disk", "crypto", ...).
type ProductNamer interface {
	ProductName() string
}

// CheckRange validates an I/O of len(buf) bytes at lba against d and
// returns the number of blocks it covers.
func CheckRange(d Device, lba uint64, buf []byte) (uint64, error) {
	bs := uint64(d.BlockSize())
	n := uint64(len(buf))
	if n == 0 || n%bs != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a multiple of block size %d", ErrInvalidRange, n, bs)
	}
	blocks := n / bs
	if lba >= d.NumBlocks() || blocks > d.NumBlocks()-lba {
		return 0, fmt.Errorf("%w: lba %d + %d blocks exceeds %d", ErrInvalidRange, lba, blocks, d.NumBlocks())
	}
	return blocks, nil
}

// Info describes a registered device.
type Info struct {
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	ProductName string `json:"product_name"`
	BlockSize   uint32 `json:"block_size"`
	NumBlocks   uint64 `json:"num_blocks"`
	ClaimedBy   string `json:"claimed_by,omitempty"`
}
