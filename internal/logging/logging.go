// Package logging builds the zap logger shared by both binaries.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/config"
)

const (
	maxSizeMB  = 100
	maxAgeDays = 14
	maxBackups = 5
)

// New returns a production JSON logger at cfg.Level. When cfg.File is set
// every entry is also written to a rotating file.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSizeMB,
			MaxAge:     maxAgeDays,
			MaxBackups: maxBackups,
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotate), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
