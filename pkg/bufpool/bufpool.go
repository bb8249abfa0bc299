// Package bufpool provides tiered scratch buffers for block I/O.
//
// Tiers match the common payload shapes of the framework: one logical
// block, a typical multi-block request, and a large streaming request.
// Requests above the largest tier are allocated directly and never pooled.
//
// Buffers that held plaintext or key-derived data must be returned with
// PutZeroed so that pooled memory never carries sensitive bytes to the
// next user.
//
//	buf := bufpool.Get(n)
//	defer bufpool.PutZeroed(buf)
package bufpool

import (
	"sync"
)

// Default tier sizes.
const (
	DefaultBlockSize   = 4 << 10   // one 4 KiB logical block
	DefaultRequestSize = 128 << 10 // typical multi-block request
	DefaultLargeSize   = 1 << 20
)

// Pool is a set of sync.Pools keyed by tier.
type Pool struct {
	tiers []tier
}

type tier struct {
	size int
	pool *sync.Pool
}

// Config sets the tier sizes. Zero values take the defaults.
type Config struct {
	BlockSize   int
	RequestSize int
	LargeSize   int
}

// NewPool creates a pool. Tiers are sorted ascending; duplicates collapse.
func NewPool(cfg Config) *Pool {
	sizes := []int{
		orDefault(cfg.BlockSize, DefaultBlockSize),
		orDefault(cfg.RequestSize, DefaultRequestSize),
		orDefault(cfg.LargeSize, DefaultLargeSize),
	}

	p := &Pool{}
	for _, s := range sizes {
		if n := len(p.tiers); n > 0 && p.tiers[n-1].size >= s {
			continue
		}
		size := s
		p.tiers = append(p.tiers, tier{
			size: size,
			pool: &sync.Pool{New: func() any {
				b := make([]byte, size)
				return &b
			}},
		})
	}
	return p
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

// Get returns a slice of length size. Its capacity is the tier size, or
// exactly size for oversized requests. Contents are unspecified.
func (p *Pool) Get(size int) []byte {
	for _, t := range p.tiers {
		if size <= t.size {
			b := *(t.pool.Get().(*[]byte))
			return b[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its tier. Buffers not obtained from Get are dropped.
func (p *Pool) Put(buf []byte) {
	for _, t := range p.tiers {
		if cap(buf) == t.size {
			full := buf[:t.size]
			t.pool.Put(&full)
			return
		}
	}
}

// PutZeroed clears the whole capacity of buf, then returns it.
func (p *Pool) PutZeroed(buf []byte) {
	clear(buf[:cap(buf)])
	p.Put(buf)
}

var global = NewPool(Config{})

// Get returns a buffer from the process-wide pool.
func Get(size int) []byte { return global.Get(size) }

// Put returns a buffer to the process-wide pool.
func Put(buf []byte) { global.Put(buf) }

// PutZeroed clears and returns a buffer to the process-wide pool.
func PutZeroed(buf []byte) { global.PutZeroed(buf) }
