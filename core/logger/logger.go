// Package logger provides structured logging for srmgate.
//
// This package wraps Uber's zap logger. It initializes a global logger
// instance used by the service binaries; library packages take a *zap.Logger
// option and fall back to Get when none is given.
//
// # Configuration
//
// The log level comes from the LOG_LEVEL environment variable or directly
// from InitLogger:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
// # Usage
//
//	logger.Log.Info("identity restored",
//	    zap.Int64("id", id),
//	    zap.String("principal", name),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// Get returns the global logger, or a no-op logger before InitLogger runs.
func Get() *zap.Logger {
	if Log == nil {
		return zap.NewNop()
	}
	return Log
}
