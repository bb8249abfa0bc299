package accel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey1 = "00112233445566778899aabbccddeeff"
	testKey2 = "ffeeddccbbaa99887766554433221100"
)

func keyParams(name string) CryptoKeyParams {
	return CryptoKeyParams{Name: name, Cipher: CipherAESXTS, Key: testKey1, Key2: testKey2}
}

// ============================================================================
// Create
// ============================================================================

func TestCreateCryptoKeyDefaultsToEncryptModule(t *testing.T) {
	t.Parallel()

	qat := newFake("qat", OpcodeEncrypt, OpcodeDecrypt)
	fw := startedFramework(t, nil, newSoftware(), qat)

	key, err := fw.CreateCryptoKey("", keyParams("k1"))
	require.NoError(t, err)
	assert.Equal(t, "qat", key.Module().Name())
	assert.Equal(t, "qat", key.Priv)
	assert.Equal(t, 1, qat.keysInit)
	assert.Equal(t, CipherAESXTS, key.Cipher())
	assert.Len(t, key.Key1(), 16)
	assert.Len(t, key.Key2(), 16)

	got, err := fw.GetCryptoKey("k1")
	require.NoError(t, err)
	assert.Same(t, key, got)
}

func TestCreateCryptoKeyExplicitModule(t *testing.T) {
	t.Parallel()

	sw := newSoftware()
	fw := startedFramework(t, nil, sw, newFake("qat", OpcodeEncrypt, OpcodeDecrypt))

	key, err := fw.CreateCryptoKey(SoftwareModuleName, keyParams("k1"))
	require.NoError(t, err)
	assert.Same(t, sw, key.Module())

	_, err = fw.CreateCryptoKey("missing", keyParams("k2"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCryptoKeyRejects(t *testing.T) {
	t.Parallel()

	tooLong := strings.Repeat("a", MaxCryptoKeyHexLength+2)

	tests := []struct {
		name    string
		params  CryptoKeyParams
		wantErr error
	}{
		{"MissingName", CryptoKeyParams{Cipher: CipherAESCBC, Key: testKey1}, ErrInvalidArgument},
		{"MissingCipher", CryptoKeyParams{Name: "k", Key: testKey1}, ErrInvalidArgument},
		{"MissingKey", CryptoKeyParams{Name: "k", Cipher: CipherAESCBC}, ErrInvalidArgument},
		{"BadHex", CryptoKeyParams{Name: "k", Cipher: CipherAESCBC, Key: "zz"}, ErrInvalidArgument},
		{"BadHexKey2", CryptoKeyParams{Name: "k", Cipher: CipherAESXTS, Key: testKey1, Key2: "0"}, ErrInvalidArgument},
		{"TooLong", CryptoKeyParams{Name: "k", Cipher: CipherAESCBC, Key: tooLong}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fw := startedFramework(t, nil, newSoftware())
			_, err := fw.CreateCryptoKey("", tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, fw.CryptoKeys())

			// A failed create must release the name.
			_, err = fw.CreateCryptoKey("", keyParams("k"))
			assert.NoError(t, err)
		})
	}
}

func TestCreateCryptoKeyModuleInitFailure(t *testing.T) {
	t.Parallel()

	sw := newSoftware()
	sw.keyErr = errBoom
	fw := startedFramework(t, nil, sw)

	_, err := fw.CreateCryptoKey("", keyParams("k1"))
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, fw.CryptoKeys())
}

func TestCreateCryptoKeyUnsupportedModule(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware(), nonKeyModule{newFake("plain", OpcodeEncrypt, OpcodeDecrypt)})

	_, err := fw.CreateCryptoKey("", keyParams("k1"))
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestCreateCryptoKeyDuplicate(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	_, err := fw.CreateCryptoKey("", keyParams("k1"))
	require.NoError(t, err)

	_, err = fw.CreateCryptoKey("", keyParams("k1"))
	assert.ErrorIs(t, err, ErrExists)
	assert.Len(t, fw.CryptoKeys(), 1)
}

func TestCreateCryptoKeyConcurrentSameName(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())

	const workers = 32
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		exists  atomic.Int32
		release = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			_, err := fw.CreateCryptoKey("", keyParams("same"))
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrExists):
				exists.Add(1)
			}
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(workers-1), exists.Load())
	assert.Len(t, fw.CryptoKeys(), 1)
}

func TestCreateCryptoKeyAfterFinish(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	require.NoError(t, fw.Shutdown(context.Background()))

	_, err := fw.CreateCryptoKey("", keyParams("k1"))
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestCreateCryptoKeyRacingFinish(t *testing.T) {
	t.Parallel()

	sw := newSoftware()
	sw.keyEntered = make(chan struct{})
	sw.keyGate = make(chan struct{})
	fw := startedFramework(t, nil, sw)

	type result struct {
		key *CryptoKey
		err error
	}
	created := make(chan result, 1)
	go func() {
		k, err := fw.CreateCryptoKey("", keyParams("late"))
		created <- result{k, err}
	}()
	<-sw.keyEntered

	finished := make(chan struct{})
	require.NoError(t, fw.Finish(func() { close(finished) }))
	require.Eventually(t, func() bool {
		fw.keyMu.Lock()
		defer fw.keyMu.Unlock()
		return fw.keysClosed
	}, time.Second, time.Millisecond)

	select {
	case <-finished:
		t.Fatal("finish completed while a key create was still in flight")
	default:
	}
	close(sw.keyGate)

	res := <-created
	assert.ErrorIs(t, res.err, ErrShutdown)
	assert.Nil(t, res.key)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("finish did not complete")
	}
	assert.Empty(t, fw.CryptoKeys())
	assert.Equal(t, 1, sw.keysFreed)
	assert.Equal(t, make([]byte, 16), sw.material, "key material must be wiped")

	_, err := fw.CreateCryptoKey("", keyParams("after"))
	assert.ErrorIs(t, err, ErrShutdown)
}

// ============================================================================
// Destroy
// ============================================================================

func TestDestroyCryptoKey(t *testing.T) {
	t.Parallel()

	sw := newSoftware()
	fw := startedFramework(t, nil, sw)

	key, err := fw.CreateCryptoKey("", keyParams("k1"))
	require.NoError(t, err)
	material := key.Key1()

	require.NoError(t, fw.DestroyCryptoKey(key))
	assert.Equal(t, 1, sw.keysFreed)
	assert.Nil(t, key.Key1())
	assert.Nil(t, key.Priv)
	assert.Equal(t, make([]byte, len(material)), material, "key material must be wiped")

	_, err = fw.GetCryptoKey("k1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, fw.DestroyCryptoKey(key), ErrNotFound)
	assert.ErrorIs(t, fw.DestroyCryptoKey(nil), ErrInvalidArgument)

	// The name is free again.
	_, err = fw.CreateCryptoKey("", keyParams("k1"))
	assert.NoError(t, err)
}

func TestListWhileDestroying(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	const n = 64
	for i := 0; i < n; i++ {
		_, err := fw.CreateCryptoKey("", keyParams(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, k := range fw.CryptoKeys() {
			assert.NoError(t, fw.DestroyCryptoKey(k))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			for _, k := range fw.CryptoKeys() {
				assert.True(t, k.HasKey2())
				if d, ok := k.Dump(); ok {
					assert.Equal(t, k.Name(), d.Name)
					assert.Equal(t, testKey1, d.Key)
					assert.Equal(t, testKey2, d.Key2)
				}
			}
			for _, e := range fw.ConfigEntries() {
				if d, ok := e.Params.(CryptoKeyDump); ok {
					assert.Equal(t, testKey1, d.Key)
				}
			}
		}
	}()
	wg.Wait()

	assert.Empty(t, fw.CryptoKeys())
	assert.Empty(t, fw.ConfigEntries())
}

func TestDumpAfterDestroy(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	key, err := fw.CreateCryptoKey("", keyParams("k1"))
	require.NoError(t, err)

	d, ok := key.Dump()
	require.True(t, ok)
	assert.Equal(t, testKey2, d.Key2)

	require.NoError(t, fw.DestroyCryptoKey(key))
	_, ok = key.Dump()
	assert.False(t, ok)
	assert.True(t, key.HasKey2(), "the flag survives the wipe")
}

func TestCryptoKeysCreationOrder(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	for _, name := range []string{"c", "a", "b"} {
		_, err := fw.CreateCryptoKey("", keyParams(name))
		require.NoError(t, err)
	}

	var names []string
	for _, k := range fw.CryptoKeys() {
		names = append(names, k.Name())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

// ============================================================================
// Submission with keys
// ============================================================================

func TestSubmitEncryptChecksKey(t *testing.T) {
	t.Parallel()

	qat := newFake("qat", OpcodeEncrypt, OpcodeDecrypt)
	fw, ch := newChannel(t, nil, newSoftware(), qat)
	defer ch.Put()

	src := [][]byte{make([]byte, 512), make([]byte, 512)}
	dst := [][]byte{make([]byte, 1024)}

	good, err := fw.CreateCryptoKey("", keyParams("good"))
	require.NoError(t, err)
	require.NoError(t, ch.SubmitEncrypt(good, dst, src, 10, 512, 0, nil))
	op := qat.lastTask.Op.(*EncryptOp)
	assert.Equal(t, uint64(10), op.IV)
	assert.Equal(t, uint64(1024), qat.lastTask.Nbytes)

	t.Run("SizeMismatch", func(t *testing.T) {
		err := ch.SubmitEncrypt(good, [][]byte{make([]byte, 10)}, src, 0, 512, 0, nil)
		assert.ErrorIs(t, err, ErrRange)
	})

	t.Run("ZeroLength", func(t *testing.T) {
		err := ch.SubmitDecrypt(good, [][]byte{{}}, [][]byte{{}}, 0, 512, 0, nil)
		assert.ErrorIs(t, err, ErrRange)
	})

	t.Run("DecryptZeroBlockSize", func(t *testing.T) {
		err := ch.SubmitDecrypt(good, dst, src, 0, 0, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("WrongModule", func(t *testing.T) {
		other, err := fw.CreateCryptoKey(SoftwareModuleName, keyParams("other"))
		require.NoError(t, err)
		err = ch.SubmitEncrypt(other, dst, src, 0, 512, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Destroyed", func(t *testing.T) {
		gone, err := fw.CreateCryptoKey("", keyParams("gone"))
		require.NoError(t, err)
		require.NoError(t, fw.DestroyCryptoKey(gone))
		err = ch.SubmitDecrypt(gone, dst, src, 0, 512, 0, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}
