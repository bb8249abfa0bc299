package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects the logger to a buffer and returns a restore func.
// Tests using it mutate package state and must not run in parallel.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	mu.RLock()
	prevOut, prevColor, prevFormat := output, useColor, format
	mu.RUnlock()
	prevLevel := level.Level()

	buf := new(bytes.Buffer)
	InitWithWriter(buf, "INFO", "text", false)

	t.Cleanup(func() {
		mu.Lock()
		output, useColor, format = prevOut, prevColor, prevFormat
		mu.Unlock()
		level.Set(prevLevel)
		rebuild()
	})
	return buf
}

func decodeJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry), buf.String())
	return entry
}

// ============================================================================
// Levels
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"dbg", "inf", "wrn", "err"}, nil},
		{"INFO", []string{"inf", "wrn", "err"}, []string{"dbg"}},
		{"WARN", []string{"wrn", "err"}, []string{"dbg", "inf"}},
		{"ERROR", []string{"err"}, []string{"dbg", "inf", "wrn"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			require.NoError(t, SetLevel(tt.level))

			Debug("dbg")
			Info("inf")
			Warn("wrn")
			Error("err")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, "] "+s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, "] "+s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	_ = captureOutput(t)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "DEBUG", GetLevel())

	require.NoError(t, SetLevel("Warning"))
	assert.Equal(t, "WARN", GetLevel())

	err := SetLevel("verbose")
	require.Error(t, err)
	assert.Equal(t, "WARN", GetLevel(), "invalid level must not change the current one")

	require.NoError(t, SetLevel(""))
	assert.Equal(t, "WARN", GetLevel())
}

// ============================================================================
// Formats
// ============================================================================

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)

	Info("channel created", KeyChannel, "ch-1", KeyTasks, 2048, "note", "two words")

	out := buf.String()
	assert.Contains(t, out, "[INFO] channel created")
	assert.Contains(t, out, "channel=ch-1")
	assert.Contains(t, out, "tasks=2048")
	assert.Contains(t, out, `note="two words"`)
}

func TestTextFormatGroups(t *testing.T) {
	buf := captureOutput(t)

	With(slog.Group("accel", KeyModule, "software")).Info("started")

	assert.Contains(t, buf.String(), "accel.module=software")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, SetFormat("json"))

	Info("key created", KeyKeyName, "k1", KeyNbytes, 16)

	entry := decodeJSONLine(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "key created", entry["msg"])
	assert.Equal(t, "k1", entry[KeyKeyName])
	assert.Equal(t, float64(16), entry[KeyNbytes])
	assert.Contains(t, entry, "time")
}

func TestInvalidFormatRejected(t *testing.T) {
	buf := captureOutput(t)

	require.Error(t, SetFormat("xml"))
	Info("still text")

	assert.Contains(t, buf.String(), "[INFO] still text")
}

// ============================================================================
// Context
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("InjectsFields", func(t *testing.T) {
		buf := captureOutput(t)
		require.NoError(t, SetFormat("json"))

		lc := NewLogContext().WithTrace("abc", "def").WithModule("dma").WithBdev("crypto0")
		lc.RequestID = "req-1"
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "submitted", "extra", "v")

		entry := decodeJSONLine(t, buf)
		assert.Equal(t, "abc", entry[KeyTraceID])
		assert.Equal(t, "def", entry[KeySpanID])
		assert.Equal(t, "req-1", entry[KeyRequestID])
		assert.Equal(t, "dma", entry[KeyModule])
		assert.Equal(t, "crypto0", entry[KeyBdev])
		assert.Equal(t, "v", entry["extra"])
	})

	t.Run("WithoutLogContext", func(t *testing.T) {
		buf := captureOutput(t)
		InfoCtx(context.Background(), "plain")
		assert.Contains(t, buf.String(), "plain")
	})
}

func TestLogContextCloneIsIndependent(t *testing.T) {
	orig := NewLogContext().WithModule("software")
	clone := orig.WithModule("cryptodev")

	assert.Equal(t, "software", orig.Module)
	assert.Equal(t, "cryptodev", clone.Module)
	assert.Equal(t, orig.StartTime, clone.StartTime)

	var nilCtx *LogContext
	assert.Nil(t, nilCtx.Clone())
	assert.Zero(t, nilCtx.DurationMs())
}

// ============================================================================
// Fields
// ============================================================================

func TestErrAttr(t *testing.T) {
	assert.True(t, Err(nil).Equal(slog.Attr{}))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())

	buf := captureOutput(t)
	Info("no error", Err(nil))
	assert.NotContains(t, buf.String(), KeyError+"=")
}

// ============================================================================
// Concurrency
// ============================================================================

func TestConcurrentLogging(t *testing.T) {
	buf := captureOutput(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("line", "g", n, "i", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 16*50)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "["), "interleaved line: %q", l)
	}
}
