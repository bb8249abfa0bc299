package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Tier selection
// ============================================================================

func TestGetTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{"Zero", 0, DefaultBlockSize},
		{"OneBlock", DefaultBlockSize, DefaultBlockSize},
		{"JustOverBlock", DefaultBlockSize + 1, DefaultRequestSize},
		{"Request", 64 << 10, DefaultRequestSize},
		{"Large", 512 << 10, DefaultLargeSize},
		{"Oversized", 3 << 20, 3 << 20},
	}

	p := NewPool(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := p.Get(tt.size)
			defer p.Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
		})
	}
}

func TestCustomTiersCollapseDuplicates(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{BlockSize: 512, RequestSize: 512, LargeSize: 8192})
	require.Len(t, p.tiers, 2)
	assert.Equal(t, 512, cap(p.Get(100)))
	assert.Equal(t, 8192, cap(p.Get(513)))
}

// ============================================================================
// Put / PutZeroed
// ============================================================================

func TestPutZeroedClearsFullCapacity(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{BlockSize: 64, RequestSize: 128, LargeSize: 256})
	buf := p.Get(16)
	full := buf[:cap(buf)]
	for i := range full {
		full[i] = 0xAA
	}

	p.PutZeroed(buf)

	for i, b := range full {
		require.Zerof(t, b, "byte %d not cleared", i)
	}
}

func TestPutIgnoresForeignBuffers(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{})
	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 10))
		p.PutZeroed(make([]byte, 10, 33))
	})
}

func TestGlobalPool(t *testing.T) {
	t.Parallel()

	buf := Get(100)
	assert.Len(t, buf, 100)
	PutZeroed(buf)
	Put(Get(DefaultLargeSize))
}

// ============================================================================
// Concurrency
// ============================================================================

func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	p := NewPool(Config{})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed byte) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf := p.Get(DefaultBlockSize)
				for j := range buf {
					buf[j] = seed
				}
				for j := range buf {
					if buf[j] != seed {
						t.Errorf("buffer shared between goroutines")
						return
					}
				}
				p.PutZeroed(buf)
			}
		}(byte(g + 1))
	}
	wg.Wait()
}

func BenchmarkGetPut(b *testing.B) {
	p := NewPool(Config{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p.Put(p.Get(DefaultBlockSize))
	}
}
