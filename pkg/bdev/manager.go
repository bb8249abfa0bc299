package bdev

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittoaccel/internal/logger"
)

// Manager is the named registry of block devices. A device claimed by a
// virtual bdev cannot be unregistered or claimed again until released.
type Manager struct {
	mu      sync.RWMutex
	devices map[string]Device
	claims  map[string]string
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{
		devices: make(map[string]Device),
		claims:  make(map[string]string),
	}
}

// Register adds d under d.Name().
func (m *Manager) Register(d Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[d.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrExists, d.Name())
	}
	m.devices[d.Name()] = d
	logger.Info("bdev registered", logger.KeyBdev, d.Name(),
		logger.KeyBlockSize, d.BlockSize(), logger.KeyNumBlocks, d.NumBlocks())
	return nil
}

// Get returns the device called name.
func (m *Manager) Get(name string) (Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// Unregister removes the device called name without closing it.
func (m *Manager) Unregister(name string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if owner, claimed := m.claims[name]; claimed {
		return nil, fmt.Errorf("%w: %s by %s", ErrClaimed, name, owner)
	}
	delete(m.devices, name)
	logger.Info("bdev unregistered", logger.KeyBdev, name)
	return d, nil
}

// Claim marks the device called name as used by owner and returns it.
func (m *Manager) Claim(name, owner string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if cur, claimed := m.claims[name]; claimed {
		return nil, fmt.Errorf("%w: %s by %s", ErrClaimed, name, cur)
	}
	m.claims[name] = owner
	return d, nil
}

// Release drops owner's claim on the device called name.
func (m *Manager) Release(name, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claims[name] == owner {
		delete(m.claims, name)
	}
}

// List returns every registered device sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.devices))
	for name, d := range m.devices {
		info := Info{
			Name:      name,
			UUID:      d.UUID(),
			BlockSize: d.BlockSize(),
			NumBlocks: d.NumBlocks(),
			ClaimedBy: m.claims[name],
		}
		if p, ok := d.(ProductNamer); ok {
			info.ProductName = p.ProductName()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseAll unregisters and closes every unclaimed device, then the rest,
// and returns the joined close errors.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	devices := m.devices
	claims := m.claims
	m.devices = make(map[string]Device)
	m.claims = make(map[string]string)
	m.mu.Unlock()

	var errs []error
	closeOne := func(name string, d Device) {
		if err := d.Close(); err != nil {
			logger.Warn("bdev close failed", logger.KeyBdev, name, logger.KeyError, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for name, d := range devices {
		if _, claimed := claims[name]; !claimed {
			closeOne(name, d)
		}
	}
	for name := range claims {
		if d, ok := devices[name]; ok {
			closeOne(name, d)
		}
	}
	return errors.Join(errs...)
}
