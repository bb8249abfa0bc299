package accel

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// MaxCryptoKeyHexLength is the longest accepted hex-encoded key component.
const MaxCryptoKeyHexLength = 1024

// Cipher identifiers understood by the bundled modules.
const (
	CipherAESCBC = "AES_CBC"
	CipherAESXTS = "AES_XTS"
)

// SecretBytes holds key material. Wipe overwrites the buffer before
// dropping it; every path that discards a SecretBytes must call Wipe.
type SecretBytes struct {
	b []byte
}

// Bytes returns the underlying buffer. Callers must not retain it after
// Wipe.
func (s *SecretBytes) Bytes() []byte {
	return s.b
}

// Len returns the material length in bytes.
func (s *SecretBytes) Len() int {
	return len(s.b)
}

// Wipe zeroes and releases the material.
func (s *SecretBytes) Wipe() {
	clear(s.b)
	runtime.KeepAlive(s.b)
	s.b = nil
}

// decodeSecret decodes a hex key component. The transient byte copy of the
// hex text is wiped as well.
func decodeSecret(field, text string) (SecretBytes, error) {
	if len(text) > MaxCryptoKeyHexLength {
		return SecretBytes{}, fmt.Errorf("%w: %s exceeds %d hex characters", ErrInvalidArgument, field, MaxCryptoKeyHexLength)
	}
	src := []byte(text)
	defer clear(src)

	dst := make([]byte, hex.DecodedLen(len(src)))
	if _, err := hex.Decode(dst, src); err != nil {
		clear(dst)
		return SecretBytes{}, fmt.Errorf("%w: %s is not valid hex", ErrInvalidArgument, field)
	}
	return SecretBytes{b: dst}, nil
}

// CryptoKeyParams are the parameters of a crypto key creation request. Key
// and Key2 are hex encoded.
type CryptoKeyParams struct {
	Name   string `json:"name"`
	Cipher string `json:"cipher"`
	Key    string `json:"key"`
	Key2   string `json:"key2,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// CryptoKeyDump is the persisted form of a live key, replayable through
// the accel_crypto_key_create configuration method.
type CryptoKeyDump struct {
	Name   string `json:"name"`
	Module string `json:"module"`
	Cipher string `json:"cipher"`
	Key    string `json:"key"`
	Key2   string `json:"key2,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// CryptoKey is a named key owned by one module.
type CryptoKey struct {
	name    string
	cipher  string
	driver  string
	module  Module
	hasKey2 bool
	live    atomic.Bool

	// mu guards the material against a concurrent wipe.
	mu   sync.RWMutex
	key1 SecretBytes
	key2 SecretBytes

	// Priv is module private state set by CryptoKeyInit.
	Priv any
}

func (k *CryptoKey) Name() string   { return k.name }
func (k *CryptoKey) Cipher() string { return k.cipher }
func (k *CryptoKey) Driver() string { return k.driver }
func (k *CryptoKey) Module() Module { return k.module }

// HasKey2 reports whether the key was created with a tweak key. It does
// not touch the material.
func (k *CryptoKey) HasKey2() bool { return k.hasKey2 }

// Key1 returns the first key component. The slice is valid only while the
// key is live; owning modules read it from CryptoKeyInit and Submit.
func (k *CryptoKey) Key1() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key1.Bytes()
}

// Key2 returns the second (tweak) key component, or nil.
func (k *CryptoKey) Key2() []byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key2.Bytes()
}

// Dump returns the key's creation parameters, including key material. It
// reports false once the key has been destroyed.
func (k *CryptoKey) Dump() (CryptoKeyDump, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.live.Load() {
		return CryptoKeyDump{}, false
	}
	d := CryptoKeyDump{
		Name:   k.name,
		Module: k.module.Name(),
		Cipher: k.cipher,
		Key:    hex.EncodeToString(k.key1.Bytes()),
		Driver: k.driver,
	}
	if k.key2.Len() > 0 {
		d.Key2 = hex.EncodeToString(k.key2.Bytes())
	}
	return d, true
}

// wipe clears the material. live must already be false.
func (k *CryptoKey) wipe() {
	k.mu.Lock()
	k.key1.Wipe()
	k.key2.Wipe()
	k.Priv = nil
	k.mu.Unlock()
}

// CreateCryptoKey validates params, lets the owning module initialize the
// key, and inserts it into the keyring. moduleName selects the module; an
// empty name selects the module assigned to encrypt.
func (fw *Framework) CreateCryptoKey(moduleName string, params CryptoKeyParams) (*CryptoKey, error) {
	fail := func(mod string, err error) (*CryptoKey, error) {
		return nil, &Error{Op: "key_create", Module: mod, Key: params.Name, Err: err}
	}

	if fw.finishing.Load() {
		return fail(moduleName, ErrShutdown)
	}
	if params.Name == "" || params.Cipher == "" || params.Key == "" {
		return fail(moduleName, fmt.Errorf("%w: name, cipher and key are required", ErrInvalidArgument))
	}

	if err := fw.reserveKeyName(params.Name); err != nil {
		return fail(moduleName, err)
	}
	defer fw.keyCreates.Done()
	committed := false
	defer func() {
		if !committed {
			fw.releaseKeyName(params.Name)
		}
	}()

	m, err := fw.keyModule(moduleName)
	if err != nil {
		return fail(moduleName, err)
	}
	km, ok := m.(CryptoKeyModule)
	if !ok {
		return fail(m.Name(), fmt.Errorf("%w: module has no crypto key support", ErrNotSupported))
	}

	key := &CryptoKey{name: params.Name, cipher: params.Cipher, driver: params.Driver, module: m}
	if key.key1, err = decodeSecret("key", params.Key); err != nil {
		return fail(m.Name(), err)
	}
	if params.Key2 != "" {
		if key.key2, err = decodeSecret("key2", params.Key2); err != nil {
			key.wipe()
			return fail(m.Name(), err)
		}
		key.hasKey2 = key.key2.Len() > 0
	}

	if err := km.CryptoKeyInit(key); err != nil {
		key.wipe()
		logger.Warn("accel crypto key init failed", logger.KeyKeyName, params.Name, logger.KeyModule, m.Name(), logger.KeyError, err)
		return fail(m.Name(), err)
	}

	fw.keyMu.Lock()
	if fw.keysClosed {
		fw.keyMu.Unlock()
		km.CryptoKeyDeinit(key)
		key.wipe()
		return fail(m.Name(), ErrShutdown)
	}
	key.live.Store(true)
	delete(fw.pending, params.Name)
	fw.keys = append(fw.keys, key)
	n := len(fw.keys)
	fw.keyMu.Unlock()
	committed = true

	if fw.metrics != nil {
		fw.metrics.SetCryptoKeys(n)
	}
	logger.Info("accel crypto key created", logger.KeyKeyName, key.name, logger.KeyCipher, key.cipher, logger.KeyModule, m.Name())
	return key, nil
}

// reserveKeyName fails if name is live or being created, or if the
// keyring is closed. On success the caller counts as an in-flight create
// and must call keyCreates.Done.
func (fw *Framework) reserveKeyName(name string) error {
	fw.keyMu.Lock()
	defer fw.keyMu.Unlock()

	if fw.keysClosed {
		return ErrShutdown
	}
	if _, busy := fw.pending[name]; busy {
		return ErrExists
	}
	for _, k := range fw.keys {
		if k.name == name {
			return ErrExists
		}
	}
	fw.pending[name] = struct{}{}
	fw.keyCreates.Add(1)
	return nil
}

func (fw *Framework) releaseKeyName(name string) {
	fw.keyMu.Lock()
	delete(fw.pending, name)
	fw.keyMu.Unlock()
}

func (fw *Framework) keyModule(name string) (Module, error) {
	if name != "" {
		m, err := fw.FindModule(name)
		if err != nil {
			return nil, ErrNotFound
		}
		return m, nil
	}

	enc, dec := fw.assigned(OpcodeEncrypt), fw.assigned(OpcodeDecrypt)
	if enc == nil {
		return nil, fmt.Errorf("%w: no module assigned to encrypt", ErrNotFound)
	}
	if dec != nil && dec != enc {
		logger.Warn("accel encrypt and decrypt are assigned to different modules, keys are created by the encrypt module",
			"encrypt", enc.Name(), "decrypt", dec.Name())
	}
	return enc, nil
}

// DestroyCryptoKey removes key from the keyring, lets its module release
// private state, and wipes the material. Destroying a key that is not in
// the keyring fails with ErrNotFound.
func (fw *Framework) DestroyCryptoKey(key *CryptoKey) error {
	if key == nil {
		return opError("key_destroy", ErrInvalidArgument)
	}

	fw.keyMu.Lock()
	idx := -1
	for i, k := range fw.keys {
		if k == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		fw.keyMu.Unlock()
		return &Error{Op: "key_destroy", Key: key.name, Err: ErrNotFound}
	}
	fw.keys = append(fw.keys[:idx], fw.keys[idx+1:]...)
	key.live.Store(false)
	n := len(fw.keys)
	fw.keyMu.Unlock()

	if km, ok := key.module.(CryptoKeyModule); ok {
		km.CryptoKeyDeinit(key)
	}
	key.wipe()

	if fw.metrics != nil {
		fw.metrics.SetCryptoKeys(n)
	}
	logger.Info("accel crypto key destroyed", logger.KeyKeyName, key.name)
	return nil
}

// GetCryptoKey returns the live key called name.
func (fw *Framework) GetCryptoKey(name string) (*CryptoKey, error) {
	fw.keyMu.Lock()
	defer fw.keyMu.Unlock()

	for _, k := range fw.keys {
		if k.name == name {
			return k, nil
		}
	}
	return nil, &Error{Op: "key_get", Key: name, Err: ErrNotFound}
}

// closeKeyring rejects further creates and returns the live keys. Creates
// already past reservation fail at insertion; keyCreates tracks them.
func (fw *Framework) closeKeyring() []*CryptoKey {
	fw.keyMu.Lock()
	defer fw.keyMu.Unlock()

	fw.keysClosed = true
	out := make([]*CryptoKey, len(fw.keys))
	copy(out, fw.keys)
	return out
}

// CryptoKeys returns a snapshot of the live keys in creation order.
func (fw *Framework) CryptoKeys() []*CryptoKey {
	fw.keyMu.Lock()
	defer fw.keyMu.Unlock()

	out := make([]*CryptoKey, len(fw.keys))
	copy(out, fw.keys)
	return out
}
