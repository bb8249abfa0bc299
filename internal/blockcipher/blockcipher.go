// Package blockcipher implements the data-unit ciphers shared by the
// software and cryptodev modules. A payload is split into data units of a
// fixed size; unit i is processed with tweak (XTS) or IV (CBC) iv+i.
package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/xts"

	"github.com/marmos91/dittoaccel/pkg/bufpool"
)

// Cipher names. They match accel.CipherAESCBC and accel.CipherAESXTS.
const (
	AESCBC = "AES_CBC"
	AESXTS = "AES_XTS"
)

var (
	// ErrKeySize indicates key material of the wrong length for the cipher.
	ErrKeySize = errors.New("invalid key size")

	// ErrUnknownCipher indicates an unsupported cipher name.
	ErrUnknownCipher = errors.New("unknown cipher")

	// ErrDataUnit indicates a payload that does not split into whole
	// AES blocks and data units.
	ErrDataUnit = errors.New("payload is not a whole number of data units")
)

// Unit encrypts and decrypts single data units in place or between
// buffers of equal length. len(src) must be a multiple of aes.BlockSize.
type Unit interface {
	EncryptUnit(dst, src []byte, iv uint64)
	DecryptUnit(dst, src []byte, iv uint64)
}

// New builds a Unit for cipher. AES_CBC takes a 16, 24 or 32 byte key and
// no key2. AES_XTS takes key and key2 of equal length, 16 or 32 bytes.
func New(name string, key, key2 []byte) (Unit, error) {
	switch name {
	case AESCBC:
		if len(key2) != 0 {
			return nil, fmt.Errorf("%w: %s takes no second key", ErrKeySize, name)
		}
		b, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s key of %d bytes", ErrKeySize, name, len(key))
		}
		return cbcUnit{b: b}, nil

	case AESXTS:
		if len(key) != len(key2) || (len(key) != 16 && len(key) != 32) {
			return nil, fmt.Errorf("%w: %s needs key and key2 of 16 or 32 bytes each, got %d and %d",
				ErrKeySize, name, len(key), len(key2))
		}
		both := make([]byte, 0, 2*len(key))
		both = append(both, key...)
		both = append(both, key2...)
		defer clear(both)

		c, err := xts.NewCipher(aes.NewCipher, both)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeySize, err)
		}
		return xtsUnit{c: c}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
}

type cbcUnit struct {
	b cipher.Block
}

func cbcIV(iv uint64) []byte {
	out := make([]byte, aes.BlockSize)
	binary.LittleEndian.PutUint64(out, iv)
	return out
}

func (u cbcUnit) EncryptUnit(dst, src []byte, iv uint64) {
	cipher.NewCBCEncrypter(u.b, cbcIV(iv)).CryptBlocks(dst, src)
}

func (u cbcUnit) DecryptUnit(dst, src []byte, iv uint64) {
	cipher.NewCBCDecrypter(u.b, cbcIV(iv)).CryptBlocks(dst, src)
}

type xtsUnit struct {
	c *xts.Cipher
}

func (u xtsUnit) EncryptUnit(dst, src []byte, iv uint64) { u.c.Encrypt(dst, src, iv) }
func (u xtsUnit) DecryptUnit(dst, src []byte, iv uint64) { u.c.Decrypt(dst, src, iv) }

// Process runs u over the scatter/gather payload src into dst. The totals
// of src and dst must match. blockSize 0 treats the whole payload as one
// data unit. Non-contiguous payloads are staged through pooled buffers
// that are cleared before reuse.
func Process(u Unit, encrypt bool, dst, src [][]byte, iv uint64, blockSize uint32) error {
	total := vecLen(src)
	if vecLen(dst) != total {
		return fmt.Errorf("%w: source %d bytes, destination %d bytes", ErrDataUnit, total, vecLen(dst))
	}
	unit := uint64(blockSize)
	if unit == 0 {
		unit = total
	}
	if total == 0 || unit%aes.BlockSize != 0 || total%unit != 0 {
		return fmt.Errorf("%w: %d bytes in units of %d", ErrDataUnit, total, unit)
	}

	in, releaseIn := gather(src, total)
	defer releaseIn()

	var out []byte
	releaseOut := func() {}
	if len(dst) == 1 {
		out = dst[0]
	} else {
		out = bufpool.Get(int(total))
		releaseOut = func() { bufpool.PutZeroed(out) }
	}
	defer releaseOut()

	for off, i := uint64(0), uint64(0); off < total; off, i = off+unit, i+1 {
		d, s := out[off:off+unit], in[off:off+unit]
		if encrypt {
			u.EncryptUnit(d, s, iv+i)
		} else {
			u.DecryptUnit(d, s, iv+i)
		}
	}

	if len(dst) != 1 {
		scatter(dst, out)
	}
	return nil
}

func gather(v [][]byte, total uint64) ([]byte, func()) {
	if len(v) == 1 {
		return v[0], func() {}
	}
	buf := bufpool.Get(int(total))
	off := 0
	for _, b := range v {
		off += copy(buf[off:], b)
	}
	return buf, func() { bufpool.PutZeroed(buf) }
}

func scatter(v [][]byte, src []byte) {
	off := 0
	for _, b := range v {
		off += copy(b, src[off:])
	}
}

func vecLen(v [][]byte) uint64 {
	var n uint64
	for _, b := range v {
		n += uint64(len(b))
	}
	return n
}
