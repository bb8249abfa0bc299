package crypto

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoaccel/internal/blockcipher"
	"github.com/marmos91/dittoaccel/pkg/accel"
	"github.com/marmos91/dittoaccel/pkg/accel/software"
	"github.com/marmos91/dittoaccel/pkg/bdev"
	"github.com/marmos91/dittoaccel/pkg/bdev/malloc"
)

const (
	testKey  = "00112233445566778899aabbccddeeff"
	testKey2 = "ffeeddccbbaa99887766554433221100"
)

type fixture struct {
	fw   *accel.Framework
	mgr  *bdev.Manager
	base *malloc.Device
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fw := accel.New(accel.WithMaxTasksPerChannel(16))
	require.NoError(t, software.Register(fw, software.Config{}))
	require.NoError(t, fw.Start())

	mgr := bdev.NewManager()
	base, err := malloc.New(malloc.Config{Name: "Malloc0", BlockSize: 512, NumBlocks: 64})
	require.NoError(t, err)
	require.NoError(t, mgr.Register(base))

	t.Cleanup(func() {
		require.NoError(t, mgr.CloseAll())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, fw.Shutdown(ctx))
	})
	return &fixture{fw: fw, mgr: mgr, base: base}
}

func deleteSync(t *testing.T, mgr *bdev.Manager, name string) error {
	t.Helper()
	result := make(chan error, 1)
	Delete(mgr, name, func(err error) { result <- err })
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("delete callback not called")
		return nil
	}
}

// ============================================================================
// Data path
// ============================================================================

func TestWriteEncryptsReadDecrypts(t *testing.T) {
	t.Parallel()

	f := setup(t)
	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", Key: testKey, Driver: "crypto_aesni_mb"})
	require.NoError(t, err)
	assert.Equal(t, uint32(512), d.BlockSize())
	assert.Equal(t, uint64(64), d.NumBlocks())

	ctx := context.Background()
	plain := bytes.Repeat([]byte("secret data 0123"), 64)
	orig := append([]byte(nil), plain...)
	require.NoError(t, d.WriteBlocks(ctx, 5, plain))
	assert.Equal(t, orig, plain, "write must not modify the caller's buffer")

	raw := f.base.Raw(5, 2)
	assert.NotEqual(t, plain, raw)
	assert.NotEqual(t, raw[:512], raw[512:], "each block uses its own IV")

	k, _ := hex.DecodeString(testKey)
	u, err := blockcipher.New(blockcipher.AESCBC, k, nil)
	require.NoError(t, err)
	want := make([]byte, len(plain))
	require.NoError(t, blockcipher.Process(u, true, [][]byte{want}, [][]byte{plain}, 5, 512))
	assert.Equal(t, want, raw)

	got := make([]byte, len(plain))
	require.NoError(t, d.ReadBlocks(ctx, 5, got))
	assert.Equal(t, plain, got)

	// Ciphertext of block 5 does not decrypt as block 6.
	require.NoError(t, f.base.WriteBlocks(ctx, 6, raw[:512]))
	require.NoError(t, d.ReadBlocks(ctx, 6, got[:512]))
	assert.NotEqual(t, plain[:512], got[:512])
}

func TestInvalidRange(t *testing.T) {
	t.Parallel()

	f := setup(t)
	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", Key: testKey})
	require.NoError(t, err)

	assert.ErrorIs(t, d.WriteBlocks(context.Background(), 0, make([]byte, 100)), bdev.ErrInvalidRange)
	assert.ErrorIs(t, d.ReadBlocks(context.Background(), 64, make([]byte, 512)), bdev.ErrInvalidRange)
}

func TestConcurrentIO(t *testing.T) {
	t.Parallel()

	f := setup(t)
	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", Cipher: accel.CipherAESXTS,
		Key: testKey, Key2: testKey2, Channels: 2})
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			lba := uint64(g * 8)
			data := bytes.Repeat([]byte{byte(g + 1)}, 8*512)
			for i := 0; i < 20; i++ {
				if !assert.NoError(t, d.WriteBlocks(ctx, lba, data)) {
					return
				}
				got := make([]byte, len(data))
				if !assert.NoError(t, d.ReadBlocks(ctx, lba, got)) {
					return
				}
				assert.Equal(t, data, got)
			}
		}(g)
	}
	wg.Wait()

	d.mu.Lock()
	assert.LessOrEqual(t, len(d.created), 2)
	d.mu.Unlock()
}

// ============================================================================
// Keys
// ============================================================================

func TestLegacyKeyOwnedAndDestroyed(t *testing.T) {
	t.Parallel()

	f := setup(t)
	_, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", Key: testKey, Driver: "crypto_qat"})
	require.NoError(t, err)

	keyName := LegacyKeyName("crypt0", DefaultCipher, "crypto_qat")
	assert.Equal(t, "crypt0_AES_CBC_crypto_qat", keyName)
	key, err := f.fw.GetCryptoKey(keyName)
	require.NoError(t, err)
	assert.Equal(t, accel.CipherAESCBC, key.Cipher())

	require.NoError(t, deleteSync(t, f.mgr, "crypt0"))
	_, err = f.fw.GetCryptoKey(keyName)
	assert.ErrorIs(t, err, accel.ErrNotFound)

	_, err = f.mgr.Get("crypt0")
	assert.ErrorIs(t, err, bdev.ErrNotFound)
	assert.Empty(t, f.mgr.List()[0].ClaimedBy, "base claim released")
}

func TestLegacyKeyReused(t *testing.T) {
	t.Parallel()

	f := setup(t)
	name := LegacyKeyName("crypt0", accel.CipherAESCBC, "")
	existing, err := f.fw.CreateCryptoKey("", accel.CryptoKeyParams{Name: name, Cipher: accel.CipherAESCBC, Key: testKey})
	require.NoError(t, err)

	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0"})
	require.NoError(t, err)
	assert.Same(t, existing, d.Key())

	require.NoError(t, deleteSync(t, f.mgr, "crypt0"))
	_, err = f.fw.GetCryptoKey(name)
	assert.NoError(t, err, "a reused key is not owned by the bdev")
}

func TestNamedKey(t *testing.T) {
	t.Parallel()

	f := setup(t)
	key, err := f.fw.CreateCryptoKey("", accel.CryptoKeyParams{Name: "shared", Cipher: accel.CipherAESXTS, Key: testKey, Key2: testKey2})
	require.NoError(t, err)

	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", KeyName: "shared", Key: "ignored"})
	require.NoError(t, err)
	assert.Same(t, key, d.Key())

	require.NoError(t, deleteSync(t, f.mgr, "crypt0"))
	_, err = f.fw.GetCryptoKey("shared")
	assert.NoError(t, err)

	_, err = Create(f.mgr, f.fw, Options{Name: "crypt1", BaseBdev: "Malloc0", KeyName: "missing"})
	assert.ErrorIs(t, err, accel.ErrNotFound)
}

func TestCreateFailures(t *testing.T) {
	t.Parallel()

	f := setup(t)

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"NoName", Options{BaseBdev: "Malloc0", Key: testKey}, accel.ErrInvalidArgument},
		{"NoKey", Options{Name: "c", BaseBdev: "Malloc0"}, accel.ErrInvalidArgument},
		{"BadKey", Options{Name: "c", BaseBdev: "Malloc0", Key: "abcd"}, accel.ErrInvalidArgument},
		{"NoBase", Options{Name: "c", BaseBdev: "Nope", Key: testKey}, bdev.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(f.mgr, f.fw, tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Failed creates leave no keys behind and the base unclaimed.
	assert.Empty(t, f.fw.CryptoKeys())
	_, err := Create(f.mgr, f.fw, Options{Name: "c", BaseBdev: "Malloc0", Key: testKey})
	require.NoError(t, err)

	// The base is now claimed.
	_, err = Create(f.mgr, f.fw, Options{Name: "c2", BaseBdev: "Malloc0", Key: testKey})
	assert.ErrorIs(t, err, bdev.ErrClaimed)
	_, err = f.fw.GetCryptoKey(LegacyKeyName("c2", DefaultCipher, ""))
	assert.ErrorIs(t, err, accel.ErrNotFound, "owned key destroyed on failure")
}

func TestDeleteErrors(t *testing.T) {
	t.Parallel()

	f := setup(t)
	assert.ErrorIs(t, deleteSync(t, f.mgr, "nope"), bdev.ErrNotFound)
	assert.ErrorIs(t, deleteSync(t, f.mgr, "Malloc0"), bdev.ErrNotFound)
}

func TestIOAfterClose(t *testing.T) {
	t.Parallel()

	f := setup(t)
	d, err := Create(f.mgr, f.fw, Options{Name: "crypt0", BaseBdev: "Malloc0", Key: testKey})
	require.NoError(t, err)
	require.NoError(t, d.WriteBlocks(context.Background(), 0, make([]byte, 512)))

	require.NoError(t, deleteSync(t, f.mgr, "crypt0"))
	assert.ErrorIs(t, d.ReadBlocks(context.Background(), 0, make([]byte, 512)), bdev.ErrClosed)
	assert.NoError(t, d.Close(), "second close is a no-op")
	assert.Equal(t, 0, f.fw.LiveChannels())
}

func ExampleLegacyKeyName() {
	fmt.Println(LegacyKeyName("crypt0", "AES_XTS", "mlx5_pci"))
	// Output: crypt0_AES_XTS_mlx5_pci
}
