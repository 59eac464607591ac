// Package logging wraps zap the way taskTracker's internal/logger package
// does: a package-level logger plus small helpers instead of the raw zap
// API at call sites, with an optional rotating file sink for daemons.
package logging

import (
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *zap.Logger

// Options configures Init. LogFile, when set, adds a rotating lumberjack
// sink next to stdout; it receives the same encoder output (console in
// development, JSON otherwise).
type Options struct {
	Development bool
	LogFile     string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
}

func Init(opts Options) error {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z0700")

	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	if opts.Development {
		encoder = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}

	level := zap.NewAtomicLevelAt(cfg.Level.Level())

	writers := []zapcore.WriteSyncer{zapcore.AddSync(defaultStdout())}
	if opts.LogFile != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    nonZero(opts.MaxSizeMB, 50),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)
	log = zap.New(core, zap.AddCaller())
	return nil
}

func defaultStdout() *os.File {
	return os.Stdout
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func L() *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return log
}

func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

func Error(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	L().Error(msg, fields...)
}

// HTTPRequestInfo logs an inbound request with the standard field set.
func HTTPRequestInfo(r *http.Request, msg string, fields ...zap.Field) {
	all := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.String("client_ip", r.RemoteAddr),
	}
	all = append(all, fields...)
	L().Info(msg, all...)
}
