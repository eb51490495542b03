// Package logger provides leveled structured logging.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var defaultLogger *zap.SugaredLogger

// Init initializes the default logger with the specified level and format.
// Format "text" selects a human-readable console encoder with caller info;
// anything else selects JSON.
func Init(level string, format string) {
	defaultLogger = New(ParseLevel(level), format, zapcore.Lock(os.Stderr))
}

// New builds a sugared logger writing to w. Exposed so tests can capture output.
func New(level Level, format string, w zapcore.WriteSyncer) *zap.SugaredLogger {
	var encoder zapcore.Encoder
	opts := []zap.Option{zap.AddCallerSkip(1)}

	if strings.ToLower(format) == "text" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
		encoder = zapcore.NewConsoleEncoder(cfg)
		opts = append(opts, zap.AddCaller())
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(level.zapLevel()))
	return zap.New(core, opts...).Sugar()
}

// SetDefault replaces the package logger.
func SetDefault(l *zap.SugaredLogger) {
	defaultLogger = l
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debugf(format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Infof(format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warnf(format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Errorf(format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.Errorf("[FATAL] "+format, args...)
		_ = defaultLogger.Sync()
	}
	os.Exit(1)
}

// Sync flushes buffered log entries.
func Sync() {
	if defaultLogger != nil {
		_ = defaultLogger.Sync()
	}
}
