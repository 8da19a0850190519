// Package logger provides structured logging for Pathkeep.
//
// It wraps Uber's zap logger with a production configuration and a
// configurable level. The server initializes the global instance once
// at startup:
//
//	logger.InitLogger("debug") // Options: debug, info, warn, error
//
// and the rest of the process logs through it:
//
//	logger.Log.Info("allow",
//	    zap.String("principal", principal),
//	    zap.String("path", path),
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
