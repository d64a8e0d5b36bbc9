// Package logx is the process-wide logger. It keeps a small printf-style API
// on top of a zap SugaredLogger so call sites stay short.
package logx

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the minimum level that gets written
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields are structured key/values attached to an entry
type Fields map[string]any

// Options configures the logger outputs
type Options struct {
	// JSON switches the console encoder to JSON (production)
	JSON bool
	// File, when set, also writes JSON lines to a rotated file
	File string
}

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  = newLogger(Options{}).Sugar()
	closer func() error
)

func newLogger(opts Options) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var consoleEncoder zapcore.Encoder
	if opts.JSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// Configure replaces the outputs of the global logger
func Configure(opts Options) {
	l := newLogger(opts)

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer()
	}
	sugar = l.Sugar()
	closer = l.Sync
}

// SetLevel changes the minimum level at runtime
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelWarn:
		level.SetLevel(zapcore.WarnLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// ParseLevel maps "debug", "warn", "error" to a Level, anything else to LevelInfo
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Sync flushes buffered entries
func Sync() error {
	return get().Sync()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debug(args ...any)                 { get().Debug(args...) }
func Debugf(format string, args ...any) { get().Debugf(format, args...) }
func Info(args ...any)                  { get().Info(args...) }
func Infof(format string, args ...any)  { get().Infof(format, args...) }
func Warn(args ...any)                  { get().Warn(args...) }
func Warnf(format string, args ...any)  { get().Warnf(format, args...) }
func Error(args ...any)                 { get().Error(args...) }
func Errorf(format string, args ...any) { get().Errorf(format, args...) }
func Fatalf(format string, args ...any) { get().Fatalf(format, args...) }

// Entry is a logger bound to a set of fields
type Entry struct {
	s *zap.SugaredLogger
}

// WithFields returns an entry that writes fields with every message
func WithFields(fields Fields) *Entry {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Entry{s: get().With(kv...)}
}

// WithField is WithFields for a single pair
func WithField(key string, value any) *Entry {
	return &Entry{s: get().With(key, value)}
}

// WithFields adds more fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return &Entry{s: e.s.With(kv...)}
}

func (e *Entry) Debug(args ...any)                 { e.s.Debug(args...) }
func (e *Entry) Debugf(format string, args ...any) { e.s.Debugf(format, args...) }
func (e *Entry) Info(args ...any)                  { e.s.Info(args...) }
func (e *Entry) Infof(format string, args ...any)  { e.s.Infof(format, args...) }
func (e *Entry) Warn(args ...any)                  { e.s.Warn(args...) }
func (e *Entry) Warnf(format string, args ...any)  { e.s.Warnf(format, args...) }
func (e *Entry) Error(args ...any)                 { e.s.Error(args...) }
func (e *Entry) Errorf(format string, args ...any) { e.s.Errorf(format, args...) }
