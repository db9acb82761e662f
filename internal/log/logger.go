// SPDX-License-Identifier: MIT
// Package log is the process-wide levelled logger. Messages are formatted
// printf style and written through a zap console core; the level is held in a
// zap.AtomicLevel so it can change at runtime from any goroutine.
//
// Callers prefix messages with their component ("Acquire: ...").
package log

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message.
type LogLevel int8

const (
	LevelDebug LogLevel = LogLevel(zapcore.DebugLevel)
	LevelInfo  LogLevel = LogLevel(zapcore.InfoLevel)
	LevelWarn  LogLevel = LogLevel(zapcore.WarnLevel)
	LevelError LogLevel = LogLevel(zapcore.ErrorLevel)
	LevelFatal LogLevel = LogLevel(zapcore.FatalLevel)
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return zapcore.Level(l).CapitalString()
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar  *zap.SugaredLogger
	logger *zap.Logger
)

func init() {
	SetOutput(os.Stderr)
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = ""
	return cfg
}

// SetOutput redirects log output to w. It is meant for startup and tests and
// must not race with logging calls.
func SetOutput(w io.Writer) {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	logger = zap.New(core)
	sugar = logger.Sugar()
}

// SetLevel sets the global logging level atomically.
func SetLevel(l LogLevel) {
	level.SetLevel(zapcore.Level(l))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(level.Level())
}

// Enabled reports whether messages at l are currently written.
func Enabled(l LogLevel) bool {
	return level.Enabled(zapcore.Level(l))
}

// Sync flushes buffered output. Call it before exit.
func Sync() {
	_ = logger.Sync()
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	sugar.Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	sugar.Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	sugar.Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	sugar.Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) {
	sugar.Fatalf(format, v...)
}

// Info logs an info message if the level is appropriate.
func Info(v ...any) {
	sugar.Info(v...)
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	sugar.Fatal(v...)
}
