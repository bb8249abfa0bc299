// Package crypto implements a virtual block device that encrypts data on
// its way to a base device and decrypts it on the way back, using a key
// from the accel keyring. Block n is processed with IV n.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/internal/telemetry"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/bdev"
	"github.com/marmos91/dittoaccel/pkg/bufpool"
	"github.com/marmos91/dittoaccel/pkg/metrics"
)

// DefaultCipher is used by the legacy key path when no cipher is given.
const DefaultCipher = accel.CipherAESCBC

// DefaultChannels is the default size of the accel channel pool.
const DefaultChannels = 4

// Options describe a crypto bdev. Either KeyName names an existing key,
// or the legacy Cipher/Key/Key2/Driver/Module fields describe one to
// create under the name "<Name>_<Cipher>_<Driver>".
type Options struct {
	Name     string `mapstructure:"name" validate:"required" yaml:"name" json:"name"`
	BaseBdev string `mapstructure:"base_bdev" validate:"required" yaml:"base_bdev" json:"base_bdev_name"`
	KeyName  string `mapstructure:"key_name" yaml:"key_name,omitempty" json:"key_name,omitempty"`

	Cipher string `mapstructure:"cipher" yaml:"cipher,omitempty" json:"cipher,omitempty"`
	Key    string `mapstructure:"key" yaml:"key,omitempty" json:"key,omitempty"`
	Key2   string `mapstructure:"key2" yaml:"key2,omitempty" json:"key2,omitempty"`
	Driver string `mapstructure:"driver" yaml:"driver,omitempty" json:"crypto_pmd,omitempty"`
	Module string `mapstructure:"module" yaml:"module,omitempty" json:"module,omitempty"`

	// Channels bounds concurrent I/O. Zero selects DefaultChannels.
	Channels int `mapstructure:"channels" validate:"min=0" yaml:"channels,omitempty" json:"channels,omitempty"`
}

// LegacyKeyName returns the key name used by the legacy key path.
func LegacyKeyName(name, cipher, driver string) string {
	return fmt.Sprintf("%s_%s_%s", name, cipher, driver)
}

// Device is a crypto virtual bdev.
type Device struct {
	name string
	uuid string
	base bdev.Device
	mgr  *bdev.Manager
	fw   *accel.Framework

	key      *accel.CryptoKey
	keyOwned bool

	metrics metrics.BdevMetrics

	pool    chan *accel.Channel
	slots   chan struct{}
	mu      sync.Mutex
	created []*accel.Channel
	closed  bool
	io      sync.WaitGroup
}

// Option configures Create.
type Option func(*Device)

// WithMetrics records per-I/O metrics. A nil value disables them.
func WithMetrics(m metrics.BdevMetrics) Option {
	return func(d *Device) { d.metrics = m }
}

// Create claims the base bdev, resolves or creates the key, and registers
// the new device with mgr.
func Create(mgr *bdev.Manager, fw *accel.Framework, opts Options, options ...Option) (*Device, error) {
	if opts.Name == "" || opts.BaseBdev == "" {
		return nil, fmt.Errorf("%w: crypto bdev needs a name and a base bdev", accel.ErrInvalidArgument)
	}

	key, owned, err := resolveKey(fw, opts)
	if err != nil {
		return nil, err
	}
	releaseKey := func() {
		if owned {
			_ = fw.DestroyCryptoKey(key)
		}
	}

	base, err := mgr.Claim(opts.BaseBdev, opts.Name)
	if err != nil {
		releaseKey()
		return nil, err
	}

	n := opts.Channels
	if n <= 0 {
		n = DefaultChannels
	}
	d := &Device{
		name:     opts.Name,
		uuid:     uuid.NewString(),
		base:     base,
		mgr:      mgr,
		fw:       fw,
		key:      key,
		keyOwned: owned,
		pool:     make(chan *accel.Channel, n),
		slots:    make(chan struct{}, n),
	}
	for _, o := range options {
		o(d)
	}

	if err := mgr.Register(d); err != nil {
		mgr.Release(opts.BaseBdev, opts.Name)
		releaseKey()
		return nil, err
	}

	logger.Info("crypto bdev created",
		logger.KeyBdev, d.name, logger.KeyBaseBdev, base.Name(),
		logger.KeyKeyName, key.Name(), logger.KeyCipher, key.Cipher(), logger.KeyModule, key.Module().Name())
	return d, nil
}

// resolveKey returns the key for opts and whether the device owns it.
func resolveKey(fw *accel.Framework, opts Options) (*accel.CryptoKey, bool, error) {
	if opts.KeyName != "" {
		key, err := fw.GetCryptoKey(opts.KeyName)
		if err != nil {
			return nil, false, err
		}
		if opts.Key != "" || opts.Cipher != "" || opts.Driver != "" {
			logger.Info("crypto bdev key name given, other key parameters are ignored", logger.KeyBdev, opts.Name)
		}
		return key, false, nil
	}

	cipher := opts.Cipher
	if cipher == "" {
		cipher = DefaultCipher
	}
	name := LegacyKeyName(opts.Name, cipher, opts.Driver)
	if key, err := fw.GetCryptoKey(name); err == nil {
		logger.Info("crypto bdev reusing key", logger.KeyBdev, opts.Name, logger.KeyKeyName, name)
		return key, false, nil
	}
	if opts.Key == "" {
		return nil, false, fmt.Errorf("%w: crypto bdev %s needs key_name or a key", accel.ErrInvalidArgument, opts.Name)
	}

	key, err := fw.CreateCryptoKey(opts.Module, accel.CryptoKeyParams{
		Name:   name,
		Cipher: cipher,
		Key:    opts.Key,
		Key2:   opts.Key2,
		Driver: opts.Driver,
	})
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

func (d *Device) Name() string        { return d.name }
func (d *Device) UUID() string        { return d.uuid }
func (d *Device) BlockSize() uint32   { return d.base.BlockSize() }
func (d *Device) NumBlocks() uint64   { return d.base.NumBlocks() }
func (d *Device) ProductName() string { return "crypto" }

// Base returns the underlying device.
func (d *Device) Base() bdev.Device { return d.base }

// Key returns the device's crypto key.
func (d *Device) Key() *accel.CryptoKey { return d.key }

// ReadBlocks reads ciphertext from the base device and decrypts it in
// place.
func (d *Device) ReadBlocks(ctx context.Context, lba uint64, buf []byte) (err error) {
	if _, err := bdev.CheckRange(d, lba, buf); err != nil {
		return err
	}
	if err := d.enter(); err != nil {
		return err
	}
	defer d.io.Done()

	ctx, span := telemetry.StartBdevSpan(ctx, telemetry.SpanBdevRead, d.name, lba, len(buf))
	start := time.Now()
	defer func() {
		metrics.ObserveIO(d.metrics, d.name, "read", len(buf), start, err)
		telemetry.EndSpan(span, err)
	}()

	if err := d.base.ReadBlocks(ctx, lba, buf); err != nil {
		return err
	}
	return d.crypt(ctx, false, buf, buf, lba)
}

// WriteBlocks encrypts buf into a pooled buffer and writes it to the base
// device. buf is left unchanged.
func (d *Device) WriteBlocks(ctx context.Context, lba uint64, buf []byte) (err error) {
	if _, err := bdev.CheckRange(d, lba, buf); err != nil {
		return err
	}
	if err := d.enter(); err != nil {
		return err
	}
	defer d.io.Done()

	ctx, span := telemetry.StartBdevSpan(ctx, telemetry.SpanBdevWrite, d.name, lba, len(buf))
	start := time.Now()
	defer func() {
		metrics.ObserveIO(d.metrics, d.name, "write", len(buf), start, err)
		telemetry.EndSpan(span, err)
	}()

	enc := bufpool.Get(len(buf))
	defer bufpool.Put(enc)

	if err := d.crypt(ctx, true, enc, buf, lba); err != nil {
		return err
	}
	return d.base.WriteBlocks(ctx, lba, enc)
}

func (d *Device) enter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return bdev.ErrClosed
	}
	d.io.Add(1)
	return nil
}

func (d *Device) crypt(ctx context.Context, encrypt bool, dst, src []byte, lba uint64) error {
	ch, err := d.getChannel(ctx)
	if err != nil {
		return err
	}
	defer d.putChannel(ch)

	var status error
	cb := func(s error) { status = s }
	bs := d.base.BlockSize()
	if encrypt {
		err = ch.SubmitEncrypt(d.key, [][]byte{dst}, [][]byte{src}, lba, bs, 0, cb)
	} else {
		err = ch.SubmitDecrypt(d.key, [][]byte{dst}, [][]byte{src}, lba, bs, 0, cb)
	}
	if err != nil {
		return err
	}
	// The task references dst and src, so wait for it regardless of ctx.
	_ = ch.Drain(context.Background())
	return status
}

// getChannel takes a pooled channel, creating one while under the limit.
func (d *Device) getChannel(ctx context.Context) (*accel.Channel, error) {
	select {
	case ch := <-d.pool:
		return ch, nil
	default:
	}

	select {
	case ch := <-d.pool:
		return ch, nil
	case d.slots <- struct{}{}:
		ch, err := d.fw.GetIOChannel()
		if err != nil {
			<-d.slots
			return nil, err
		}
		d.mu.Lock()
		d.created = append(d.created, ch)
		d.mu.Unlock()
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Device) putChannel(ch *accel.Channel) {
	d.pool <- ch
}

// Close waits for in-flight I/O, releases the accel channels, the base
// claim and an owned key. The base device stays registered and open.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.io.Wait()

	d.mu.Lock()
	channels := d.created
	d.created = nil
	d.mu.Unlock()
	for _, ch := range channels {
		ch.Put()
	}

	d.mgr.Release(d.base.Name(), d.name)
	if d.keyOwned {
		if err := d.fw.DestroyCryptoKey(d.key); err != nil && !errors.Is(err, accel.ErrNotFound) {
			return err
		}
	}
	logger.Info("crypto bdev closed", logger.KeyBdev, d.name)
	return nil
}

// Delete unregisters and closes the crypto bdev called name, then calls
// done with the result from a new goroutine.
func Delete(mgr *bdev.Manager, name string, done func(error)) {
	go func() {
		err := deleteDevice(mgr, name)
		if err != nil {
			logger.Warn("crypto bdev delete failed", logger.KeyBdev, name, logger.KeyError, err)
		}
		if done != nil {
			done(err)
		}
	}()
}

func deleteDevice(mgr *bdev.Manager, name string) error {
	d, err := mgr.Get(name)
	if err != nil {
		return err
	}
	if _, ok := d.(*Device); !ok {
		return fmt.Errorf("%w: %s is not a crypto bdev", bdev.ErrNotFound, name)
	}
	if _, err := mgr.Unregister(name); err != nil {
		return err
	}
	return d.Close()
}

var _ bdev.Device = (*Device)(nil)
