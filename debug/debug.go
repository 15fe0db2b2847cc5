package debug

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	enabled atomic.Bool

	mu     sync.RWMutex
	logger = newLogger(zapcore.Lock(os.Stderr))
)

func init() {
	debugEnv, exists := os.LookupEnv("WEBSOCK_DEBUG")
	if exists {
		if val, err := strconv.ParseBool(debugEnv); err == nil {
			enabled.Store(val)
		}
	}
}

func newLogger(out zapcore.WriteSyncer) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), out, zapcore.DebugLevel)
	return zap.New(core).Named("websock")
}

// Printf logs a formatted debug line when debugging is enabled.
func Printf(format string, v ...interface{}) {
	if enabled.Load() {
		Logger().Sugar().Debugf(format, v...)
	}
}

// Logger returns the structured logger behind Printf. Callers that log with
// fields should check Enabled first.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the backing logger, e.g. with the host application's.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetOutputFile sends debug output to a size-rotated file.
func SetOutputFile(path string) {
	out := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	})
	SetLogger(newLogger(out))
}

func Enabled() bool {
	return enabled.Load()
}

func Enable() {
	enabled.Store(true)
}

func Disable() {
	enabled.Store(false)
}
