// Package cryptodev is an emulated crypto offload device. It supports only
// encrypt and decrypt, binds every key to a driver session, and runs work
// on a worker pool behind per-channel queue pairs of bounded depth.
package cryptodev

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittoaccel/internal/blockcipher"
	"github.com/marmos91/dittoaccel/internal/engine"
	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/accel"
)

// Name is the module name.
const Name = "cryptodev"

// Configuration entries written by ConfigEntries.
const (
	MethodEnable    = "cryptodev_accel_enable"
	MethodSetDriver = "cryptodev_set_driver"
)

var (
	// ErrQueueFull is returned by Submit when the channel's queue pair is
	// at capacity. It matches accel.ErrNoTask.
	ErrQueueFull = fmt.Errorf("%w: queue pair full", accel.ErrNoTask)

	// ErrUnknownDriver indicates a driver name the module does not know.
	ErrUnknownDriver = errors.New("unknown crypto driver")
)

// SetDriverParams are the params of a cryptodev_set_driver entry.
type SetDriverParams struct {
	DriverName string `json:"driver_name"`
}

// Config configures the device.
type Config struct {
	// Driver is the default driver for keys that do not name one.
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=crypto_aesni_mb crypto_qat mlx5_pci" yaml:"driver" json:"driver"`

	// Workers is the number of goroutines executing crypto work.
	Workers int `mapstructure:"workers" validate:"min=0" yaml:"workers" json:"workers"`

	// QueueDepth bounds in-flight operations per channel.
	QueueDepth int `mapstructure:"queue_depth" validate:"min=0" yaml:"queue_depth" json:"queue_depth"`
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{Driver: DefaultDriver, Workers: 2, QueueDepth: 128}
}

// Module implements accel.Module and accel.CryptoKeyModule.
type Module struct {
	cfg  Config
	pool *engine.Pool

	mu       sync.Mutex
	channels map[*accel.Channel]*queuePair
	sessions int
}

// session is the per-key device state stored in CryptoKey.Priv.
type session struct {
	driver string
	unit   blockcipher.Unit
}

// New validates cfg and creates the device.
func New(cfg Config) (*Module, error) {
	d := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = d.Driver
	}
	if cfg.Workers <= 0 {
		cfg.Workers = d.Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = d.QueueDepth
	}
	if _, ok := lookupDriver(cfg.Driver); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	return &Module{cfg: cfg, channels: make(map[*accel.Channel]*queuePair)}, nil
}

// Register creates a device and adds it to fw.
func Register(fw *accel.Framework, cfg Config) error {
	m, err := New(cfg)
	if err != nil {
		return err
	}
	return fw.Register(m)
}

func (m *Module) Name() string { return Name }

// Driver returns the default driver name.
func (m *Module) Driver() string { return m.cfg.Driver }

func (m *Module) Init() error {
	m.pool = engine.Start(m.cfg.Workers, m.cfg.QueueDepth*m.cfg.Workers)
	logger.Info("cryptodev accel module initialized",
		logger.KeyDriver, m.cfg.Driver, "workers", m.cfg.Workers, "queue_depth", m.cfg.QueueDepth)
	return nil
}

func (m *Module) Fini(done func()) {
	if m.pool == nil {
		done()
		return
	}
	m.pool.Stop(done)
}

func (m *Module) SupportsOpcode(op accel.Opcode) bool {
	return op == accel.OpcodeEncrypt || op == accel.OpcodeDecrypt
}

func (m *Module) ConfigEntries() []accel.ConfigEntry {
	return []accel.ConfigEntry{
		{Method: MethodEnable},
		{Method: MethodSetDriver, Params: SetDriverParams{DriverName: m.cfg.Driver}},
	}
}

// CryptoKeyInit checks the cipher and key sizes against the driver and
// creates the key's session.
func (m *Module) CryptoKeyInit(key *accel.CryptoKey) error {
	name := key.Driver()
	if name == "" {
		name = m.cfg.Driver
	}
	drv, ok := lookupDriver(name)
	if !ok {
		return fmt.Errorf("%w: %w: %q", accel.ErrInvalidArgument, ErrUnknownDriver, name)
	}
	if !drv.supports(key.Cipher()) {
		return fmt.Errorf("%w: driver %s does not support %s", accel.ErrNotSupported, name, key.Cipher())
	}

	k1, k2 := len(key.Key1()), len(key.Key2())
	switch key.Cipher() {
	case accel.CipherAESCBC:
		if k1 != 16 || k2 != 0 {
			return fmt.Errorf("%w: %s on %s needs a 16 byte key and no key2", accel.ErrInvalidArgument, key.Cipher(), name)
		}
	case accel.CipherAESXTS:
		valid := false
		for _, n := range drv.xtsKeySizes {
			valid = valid || (k1 == n && k2 == n)
		}
		if !valid {
			return fmt.Errorf("%w: %s on %s needs key and key2 of %v bytes", accel.ErrInvalidArgument, key.Cipher(), name, drv.xtsKeySizes)
		}
	}

	u, err := blockcipher.New(key.Cipher(), key.Key1(), key.Key2())
	if err != nil {
		return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
	}
	key.Priv = &session{driver: name, unit: u}

	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()
	logger.Debug("cryptodev session created", logger.KeyKeyName, key.Name(), logger.KeyDriver, name)
	return nil
}

func (m *Module) CryptoKeyDeinit(key *accel.CryptoKey) {
	if _, ok := key.Priv.(*session); !ok {
		return
	}
	key.Priv = nil
	m.mu.Lock()
	m.sessions--
	m.mu.Unlock()
}

// Sessions returns the number of live key sessions.
func (m *Module) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// GetIOChannel returns owner's queue pair, creating it on first use.
func (m *Module) GetIOChannel(owner *accel.Channel) (accel.ModuleChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qp, ok := m.channels[owner]; ok {
		qp.refs++
		return qp, nil
	}
	qp := &queuePair{m: m, owner: owner, refs: 1}
	m.channels[owner] = qp
	return qp, nil
}

func (m *Module) Submit(ch accel.ModuleChannel, t *accel.Task) error {
	qp := ch.(*queuePair)
	if qp.inFlight >= m.cfg.QueueDepth {
		return ErrQueueFull
	}
	if !m.pool.TrySubmit(&qp.q, t, execute) {
		return ErrQueueFull
	}
	qp.inFlight++
	return nil
}

func execute(t *accel.Task) error {
	var (
		op      *accel.CryptoOp
		encrypt bool
	)
	switch o := t.Op.(type) {
	case *accel.EncryptOp:
		op, encrypt = &o.CryptoOp, true
	case *accel.DecryptOp:
		op = &o.CryptoOp
	default:
		return accel.ErrNotSupported
	}

	s, ok := op.Key.Priv.(*session)
	if !ok {
		return fmt.Errorf("%w: key %q has no session", accel.ErrInvalidArgument, op.Key.Name())
	}
	if err := blockcipher.Process(s.unit, encrypt, op.Dst, op.Src, op.IV, op.BlockSize); err != nil {
		return fmt.Errorf("%w: %v", accel.ErrInvalidArgument, err)
	}
	return nil
}

// queuePair is the per-channel submission queue.
type queuePair struct {
	m     *Module
	owner *accel.Channel
	refs  int

	inFlight int
	q        engine.Queue
}

// Poll frees queue slots before delivering completions so callbacks can
// resubmit.
func (qp *queuePair) Poll() int {
	ready := qp.q.Len()
	qp.inFlight -= ready
	n := qp.q.Poll()
	qp.inFlight -= n - ready
	return n
}

func (qp *queuePair) Put() {
	qp.m.mu.Lock()
	defer qp.m.mu.Unlock()

	qp.refs--
	if qp.refs == 0 {
		delete(qp.m.channels, qp.owner)
	}
}
