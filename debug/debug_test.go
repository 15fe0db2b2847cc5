package debug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func withLogger(t *testing.T, l *zap.Logger) {
	t.Helper()

	prev := Logger()
	wasEnabled := Enabled()
	SetLogger(l)
	t.Cleanup(func() {
		SetLogger(prev)
		enabled.Store(wasEnabled)
	})
}

func TestPrintfOnlyWhenEnabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	withLogger(t, zap.New(core))

	Disable()
	Printf("hidden %d", 1)
	assert.Zero(t, logs.Len())

	Enable()
	Printf("shown %d", 2)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "shown 2", entry.Message)
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
}

func TestSetLoggerNil(t *testing.T) {
	withLogger(t, nil)
	Enable()

	assert.NotNil(t, Logger())
	assert.NotPanics(t, func() { Printf("dropped") })
}

func TestSetOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "websock.log")
	withLogger(t, Logger())

	SetOutputFile(path)
	Enable()
	Printf("to file")
	require.NoError(t, Logger().Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, string(data), "websock")
}
