package logger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsTraceAndUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "u1")

	FromContext(ctx, zap.New(core)).Info("turn done")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "trace-1", GetTraceID(ctx))
}

func TestFromContextWithoutValues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	FromContext(context.Background(), zap.New(core)).Info("plain")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(Options{Level: "warn", Format: "json", OutputPath: path})
	require.NoError(t, err)

	l.Info("dropped")
	l.Warn("kept", zap.String("tool", "image_generation"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "image_generation", entry["tool"])
}

func TestInitReplacesGlobal(t *testing.T) {
	prev := Get()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = prev
		mu.Unlock()
	})

	require.NoError(t, Init(Options{Level: "debug", Format: "console", OutputPath: "stderr"}))
	assert.NotSame(t, prev, Get())
	assert.Same(t, Get(), OrNop(nil))
}
