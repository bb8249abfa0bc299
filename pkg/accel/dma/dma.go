// Package dma is an emulated memory-offload engine. Descriptors are
// executed by a bounded pool of worker goroutines and their completions are
// posted back to the submitting channel, to be delivered by its Poll.
package dma

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittoaccel/internal/engine"
	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/memop"
	"github.com/marmos91/dittoaccel/pkg/accel"
)

// Name is the module name.
const Name = "dma"

// MethodScan is the configuration entry that enables the module.
const MethodScan = "dma_scan_accel_module"

var (
	// ErrMiscompare is the completion status of a compare whose buffers
	// differ.
	ErrMiscompare = memop.ErrMiscompare

	// ErrBusy is returned by Submit when the descriptor ring is full. It
	// matches accel.ErrNoTask.
	ErrBusy = fmt.Errorf("%w: descriptor ring full", accel.ErrNoTask)

	// ErrChannelLimit is returned when MaxChannels channels are open.
	ErrChannelLimit = errors.New("dma channel limit reached")
)

// Config configures the engine.
type Config struct {
	// Workers is the number of descriptor workers.
	Workers int `mapstructure:"workers" validate:"min=0" yaml:"workers" json:"workers"`

	// RingSize bounds the descriptors queued across all channels.
	RingSize int `mapstructure:"ring_size" validate:"min=0" yaml:"ring_size" json:"ring_size"`

	// MaxChannels bounds the framework channels served at once. Zero
	// means no limit.
	MaxChannels int `mapstructure:"max_channels" validate:"min=0" yaml:"max_channels" json:"max_channels"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{Workers: 4, RingSize: 1024, MaxChannels: 64}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.RingSize <= 0 {
		c.RingSize = d.RingSize
	}
}

// Module implements accel.Module.
type Module struct {
	cfg Config

	pool *engine.Pool

	mu       sync.Mutex
	channels map[*accel.Channel]*ioChannel
}

// New creates the engine. Workers start in Init.
func New(cfg Config) *Module {
	cfg.applyDefaults()
	return &Module{cfg: cfg, channels: make(map[*accel.Channel]*ioChannel)}
}

// Register adds a dma engine to fw.
func Register(fw *accel.Framework, cfg Config) error {
	return fw.Register(New(cfg))
}

func (m *Module) Name() string { return Name }

func (m *Module) Init() error {
	m.pool = engine.Start(m.cfg.Workers, m.cfg.RingSize)
	logger.Info("dma accel module initialized",
		"workers", m.cfg.Workers, "ring_size", m.cfg.RingSize, "max_channels", m.cfg.MaxChannels)
	return nil
}

// Fini stops the workers and calls done once they have exited.
func (m *Module) Fini(done func()) {
	if m.pool == nil {
		done()
		return
	}
	m.pool.Stop(func() {
		logger.Debug("dma accel workers stopped")
		done()
	})
}

func (m *Module) SupportsOpcode(op accel.Opcode) bool {
	return memop.Handles(op)
}

func (m *Module) ConfigEntries() []accel.ConfigEntry {
	return []accel.ConfigEntry{{Method: MethodScan}}
}

// GetIOChannel returns owner's sub-channel, creating it on first use.
func (m *Module) GetIOChannel(owner *accel.Channel) (accel.ModuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.channels[owner]; ok {
		c.refs++
		return c, nil
	}
	if m.cfg.MaxChannels > 0 && len(m.channels) >= m.cfg.MaxChannels {
		return nil, ErrChannelLimit
	}
	c := &ioChannel{m: m, owner: owner, refs: 1}
	m.channels[owner] = c
	return c, nil
}

// Submit queues t on the descriptor ring without blocking.
func (m *Module) Submit(ch accel.ModuleChannel, t *accel.Task) error {
	c := ch.(*ioChannel)
	if !m.pool.TrySubmit(&c.q, t, execute) {
		return ErrBusy
	}
	return nil
}

func execute(t *accel.Task) error {
	return memop.Run(t.Op)
}

// ChannelCount returns the number of framework channels served.
func (m *Module) ChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

type ioChannel struct {
	m     *Module
	owner *accel.Channel
	refs  int

	q engine.Queue
}

// Poll delivers the completions posted by the workers so far.
func (c *ioChannel) Poll() int {
	return c.q.Poll()
}

func (c *ioChannel) Put() {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()

	c.refs--
	if c.refs == 0 {
		delete(c.m.channels, c.owner)
	}
}
