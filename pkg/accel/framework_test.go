package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Registration
// ============================================================================

func TestRegisterSoftwareGoesFirst(t *testing.T) {
	t.Parallel()

	fw := New()
	require.NoError(t, fw.Register(newFake("dma", OpcodeCopy)))
	require.NoError(t, fw.Register(newFake("qat", OpcodeEncrypt)))
	require.NoError(t, fw.Register(newSoftware()))

	names := []string{}
	for _, info := range fw.Modules() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{SoftwareModuleName, "dma", "qat"}, names)
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()

	fw := New()
	require.NoError(t, fw.Register(newFake("dma", OpcodeCopy)))
	err := fw.Register(newFake("dma", OpcodeFill))
	require.ErrorIs(t, err, ErrExists)

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "dma", aerr.Module)
	assert.Len(t, fw.Modules(), 1)
}

func TestRegisterAfterStart(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil, newSoftware())
	assert.ErrorIs(t, fw.Register(newFake("late", OpcodeCopy)), ErrStarted)
	assert.ErrorIs(t, fw.AssignOpcode(OpcodeCopy, SoftwareModuleName), ErrStarted)
}

func TestFindModule(t *testing.T) {
	t.Parallel()

	fw := New()
	sw := newSoftware()
	require.NoError(t, fw.Register(sw))

	m, err := fw.FindModule(SoftwareModuleName)
	require.NoError(t, err)
	assert.Same(t, sw, m)

	_, err = fw.FindModule("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModulesListsSupportedOpcodes(t *testing.T) {
	t.Parallel()

	fw := New()
	require.NoError(t, fw.Register(newFake("dma", OpcodeCopy, OpcodeCRC32C)))

	infos := fw.Modules()
	require.Len(t, infos, 1)
	assert.Equal(t, []Opcode{OpcodeCopy, OpcodeCRC32C}, infos[0].Opcodes)
}

// ============================================================================
// Start and opcode assignment
// ============================================================================

func TestStartLaterModulesWin(t *testing.T) {
	t.Parallel()

	fw := startedFramework(t, nil,
		newSoftware(),
		newFake("dma", OpcodeCopy, OpcodeFill),
		newFake("qat", OpcodeEncrypt, OpcodeDecrypt, OpcodeFill),
	)

	a := fw.Assignments()
	assert.Equal(t, "dma", a["copy"])
	assert.Equal(t, "qat", a["fill"])
	assert.Equal(t, "qat", a["encrypt"])
	assert.Equal(t, SoftwareModuleName, a["crc32c"])
	assert.Len(t, a, int(OpcodeCount))
}

func TestStartInitOrder(t *testing.T) {
	t.Parallel()

	var events []string
	sw, dma := newSoftware(), newFake("dma", OpcodeCopy)
	sw.events, dma.events = &events, &events

	fw := New()
	require.NoError(t, fw.Register(dma))
	require.NoError(t, fw.Register(sw))
	require.NoError(t, fw.Start())

	assert.Equal(t, []string{"init:software", "init:dma"}, events)
	assert.True(t, fw.Started())
	assert.ErrorIs(t, fw.Start(), ErrStarted)
}

func TestStartOverride(t *testing.T) {
	t.Parallel()

	fw := New()
	require.NoError(t, fw.Register(newSoftware()))
	require.NoError(t, fw.Register(newFake("dma", OpcodeCopy)))
	require.NoError(t, fw.AssignOpcode(OpcodeCopy, SoftwareModuleName))
	require.NoError(t, fw.Start())

	name, err := fw.OpcodeModuleName(OpcodeCopy)
	require.NoError(t, err)
	assert.Equal(t, SoftwareModuleName, name)
	assert.Equal(t, map[Opcode]string{OpcodeCopy: SoftwareModuleName}, fw.Overrides())
}

func TestStartOverrideFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		module  string
		opcode  Opcode
		wantErr error
	}{
		{"UnknownModule", "nope", OpcodeCopy, ErrNotFound},
		{"UnsupportedOpcode", "dma", OpcodeEncrypt, ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var events []string
			sw, dma := newSoftware(), newFake("dma", OpcodeCopy)
			sw.events, dma.events = &events, &events

			fw := New()
			require.NoError(t, fw.Register(sw))
			require.NoError(t, fw.Register(dma))
			require.NoError(t, fw.AssignOpcode(tt.opcode, tt.module))

			err := fw.Start()
			require.ErrorIs(t, err, tt.wantErr)

			var aerr *Error
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.opcode.String(), aerr.Opcode)
			assert.Equal(t, tt.module, aerr.Module)

			assert.False(t, fw.Started())
			assert.Contains(t, events, "fini:software")
			assert.Contains(t, events, "fini:dma")

			_, err = fw.GetIOChannel()
			assert.ErrorIs(t, err, ErrNotStarted)
		})
	}
}

func TestStartInitFailureFinalizesEarlierModules(t *testing.T) {
	t.Parallel()

	var events []string
	sw, bad, after := newSoftware(), newFake("bad", OpcodeCopy), newFake("after", OpcodeFill)
	sw.events, bad.events, after.events = &events, &events, &events
	bad.initErr = errBoom

	fw := New()
	require.NoError(t, fw.Register(sw))
	require.NoError(t, fw.Register(bad))
	require.NoError(t, fw.Register(after))

	err := fw.Start()
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"init:software", "init:bad", "fini:software"}, events)
	assert.ErrorIs(t, fw.Start(), ErrShutdown)
}

func TestStartUnassignedOpcode(t *testing.T) {
	t.Parallel()

	fw := New()
	require.NoError(t, fw.Register(newFake("partial", OpcodeCopy)))

	err := fw.Start()
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, fw.Started())
}

func TestAssignOpcodeInvalid(t *testing.T) {
	t.Parallel()

	fw := New()
	assert.ErrorIs(t, fw.AssignOpcode(OpcodeCount, "x"), ErrInvalidArgument)

	_, err := fw.OpcodeModuleName(OpcodeCount)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = fw.OpcodeModuleName(OpcodeCopy)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestContextSizeIsMaximum(t *testing.T) {
	t.Parallel()

	sw := newSoftware()
	sw.ctxSize = 16
	dma := newFake("dma", OpcodeCopy)
	dma.ctxSize = 64

	fw := startedFramework(t, []Option{WithMaxTasksPerChannel(4)}, sw, dma)
	ch, err := fw.GetIOChannel()
	require.NoError(t, err)
	defer ch.Put()

	for i := range ch.tasks {
		assert.Len(t, ch.tasks[i].ModuleCtx, 64)
		assert.Equal(t, 64, cap(ch.tasks[i].ModuleCtx))
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := &Error{Op: "submit", Module: "dma", Opcode: "copy", Key: "k1", Err: ErrNoTask}
	assert.Equal(t, "accel submit opcode=copy module=dma key=k1: task pool exhausted", err.Error())
	assert.True(t, errors.Is(err, ErrNoTask))
	assert.True(t, errors.Is(ErrRange, ErrInvalidArgument))
}
