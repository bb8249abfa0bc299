package accel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpcode(t *testing.T) {
	t.Parallel()

	for _, op := range Opcodes() {
		got, err := ParseOpcode(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	got, err := ParseOpcode("  COPY_CRC32C ")
	require.NoError(t, err)
	assert.Equal(t, OpcodeCopyCRC32C, got)

	_, err = ParseOpcode("xor")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpcodeJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal([]Opcode{OpcodeFill, OpcodeDecrypt})
	require.NoError(t, err)
	assert.JSONEq(t, `["fill","decrypt"]`, string(b))

	_, err = json.Marshal(OpcodeCount)
	assert.Error(t, err)
	assert.Equal(t, "opcode(10)", OpcodeCount.String())
}

func TestFillPattern(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(0xABABABABABABABAB), FillPattern(0xAB))
	assert.Equal(t, uint64(6), IOVecLen([][]byte{make([]byte, 2), nil, make([]byte, 4)}))
}
