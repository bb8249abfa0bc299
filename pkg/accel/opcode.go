package accel

import (
	"fmt"
	"strings"
)

// Opcode identifies an operation kind. The zero value is OpcodeCopy.
type Opcode uint8

const (
	OpcodeCopy Opcode = iota
	OpcodeFill
	OpcodeDualcast
	OpcodeCompare
	OpcodeCRC32C
	OpcodeCopyCRC32C
	OpcodeCompress
	OpcodeDecompress
	OpcodeEncrypt
	OpcodeDecrypt

	// OpcodeCount is the number of operation kinds and the size of the
	// assignment table.
	OpcodeCount
)

var opcodeNames = [OpcodeCount]string{
	"copy", "fill", "dualcast", "compare", "crc32c", "copy_crc32c",
	"compress", "decompress", "encrypt", "decrypt",
}

// String returns the configuration name of the opcode.
func (o Opcode) String() string {
	if o < OpcodeCount {
		return opcodeNames[o]
	}
	return fmt.Sprintf("opcode(%d)", uint8(o))
}

// Valid reports whether o names a known operation kind.
func (o Opcode) Valid() bool {
	return o < OpcodeCount
}

// ParseOpcode resolves a configuration name ("copy", "crc32c", ...).
func ParseOpcode(name string) (Opcode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range opcodeNames {
		if s == n {
			return Opcode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown opcode %q", ErrInvalidArgument, name)
}

// Opcodes returns every operation kind in table order.
func Opcodes() []Opcode {
	out := make([]Opcode, OpcodeCount)
	for i := range out {
		out[i] = Opcode(i)
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (o Opcode) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: opcode %d", ErrInvalidArgument, uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Opcode) UnmarshalText(b []byte) error {
	v, err := ParseOpcode(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
