// Package badger provides a persistent block device stored in BadgerDB.
// Each written block is one key; unwritten blocks read as zeroes.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/bdev"
)

// Config describes a badger device.
type Config struct {
	Name      string `mapstructure:"name" validate:"required" yaml:"name" json:"name"`
	Path      string `mapstructure:"path" yaml:"path" json:"path"`
	BlockSize uint32 `mapstructure:"block_size" validate:"required,min=512" yaml:"block_size" json:"block_size"`
	NumBlocks uint64 `mapstructure:"num_blocks" validate:"required,min=1" yaml:"num_blocks" json:"num_blocks"`

	// InMemory keeps the database in memory. Path is ignored.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory" json:"in_memory"`
}

var keyMeta = []byte("meta")

const blockPrefix = "blk/"

func keyBlock(lba uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], lba)
	return k
}

type meta struct {
	UUID      string `json:"uuid"`
	BlockSize uint32 `json:"block_size"`
	NumBlocks uint64 `json:"num_blocks"`
}

// Device is a BadgerDB-backed block device.
type Device struct {
	name string
	meta meta
	db   *badgerdb.DB
}

// Open opens or creates the database at cfg.Path. An existing database
// must have the same geometry.
func Open(cfg Config) (*Device, error) {
	if cfg.Name == "" || cfg.BlockSize == 0 || cfg.NumBlocks == 0 {
		return nil, fmt.Errorf("%w: badger bdev needs a name, block size and block count", bdev.ErrInvalidRange)
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger bdev %s: path is required", cfg.Name)
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(badgerLogger{name: cfg.Name})
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger bdev %s: %w", cfg.Name, err)
	}

	d := &Device{name: cfg.Name, db: db}
	if err := d.loadMeta(cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) loadMeta(cfg Config) error {
	return d.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyMeta)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			d.meta = meta{UUID: uuid.NewString(), BlockSize: cfg.BlockSize, NumBlocks: cfg.NumBlocks}
			b, err := json.Marshal(d.meta)
			if err != nil {
				return err
			}
			return txn.Set(keyMeta, b)
		}
		if err != nil {
			return err
		}

		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d.meta)
		}); err != nil {
			return fmt.Errorf("failed to decode badger bdev metadata: %w", err)
		}
		if d.meta.BlockSize != cfg.BlockSize || d.meta.NumBlocks != cfg.NumBlocks {
			return fmt.Errorf("%w: badger bdev %s was created with %d blocks of %d bytes",
				bdev.ErrInvalidRange, cfg.Name, d.meta.NumBlocks, d.meta.BlockSize)
		}
		return nil
	})
}

func (d *Device) Name() string        { return d.name }
func (d *Device) UUID() string        { return d.meta.UUID }
func (d *Device) BlockSize() uint32   { return d.meta.BlockSize }
func (d *Device) NumBlocks() uint64   { return d.meta.NumBlocks }
func (d *Device) ProductName() string { return "Badger disk" }

func (d *Device) ReadBlocks(ctx context.Context, lba uint64, buf []byte) error {
	n, err := bdev.CheckRange(d, lba, buf)
	if err != nil {
		return err
	}
	bs := uint64(d.meta.BlockSize)

	err = d.db.View(func(txn *badgerdb.Txn) error {
		for i := uint64(0); i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := buf[i*bs : (i+1)*bs]
			item, err := txn.Get(keyBlock(lba + i))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				clear(dst)
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				copy(dst, val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return mapErr(err)
}

func (d *Device) WriteBlocks(ctx context.Context, lba uint64, buf []byte) error {
	n, err := bdev.CheckRange(d, lba, buf)
	if err != nil {
		return err
	}
	bs := uint64(d.meta.BlockSize)

	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	for i := uint64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		val := make([]byte, bs)
		copy(val, buf[i*bs:(i+1)*bs])
		if err := wb.Set(keyBlock(lba+i), val); err != nil {
			return mapErr(err)
		}
	}
	return mapErr(wb.Flush())
}

// Close closes the database.
func (d *Device) Close() error {
	return d.db.Close()
}

func mapErr(err error) error {
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return bdev.ErrClosed
	}
	return err
}

// badgerLogger forwards badger's logs to the process logger.
type badgerLogger struct {
	name string
}

func (l badgerLogger) Errorf(f string, args ...any) {
	logger.Error(strings.TrimSpace(fmt.Sprintf(f, args...)), logger.KeyBdev, l.name)
}

func (l badgerLogger) Warningf(f string, args ...any) {
	logger.Warn(strings.TrimSpace(fmt.Sprintf(f, args...)), logger.KeyBdev, l.name)
}

func (l badgerLogger) Infof(f string, args ...any) {
	logger.Debug(strings.TrimSpace(fmt.Sprintf(f, args...)), logger.KeyBdev, l.name)
}

func (l badgerLogger) Debugf(f string, args ...any) {
	logger.Debug(strings.TrimSpace(fmt.Sprintf(f, args...)), logger.KeyBdev, l.name)
}

var _ bdev.Device = (*Device)(nil)
