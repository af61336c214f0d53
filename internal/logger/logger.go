// Package logger builds the process-wide zap logger and the gin request
// logging middleware.
package logger

import (
	"fmt"
	"strings"

	"delivery-tracker/backend/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger in production and a console logger elsewhere,
// unless cfg.Format picks one explicitly.
func New(cfg config.LogConfig, environment string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	format := cfg.Format
	if format == "" {
		format = "console"
		if environment == "production" {
			format = "json"
		}
	}

	var zcfg zap.Config
	switch format {
	case "json":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zcfg.Build(zap.Fields(zap.String("env", environment)))
}

// Must is New for command entrypoints.
func Must(cfg config.LogConfig, environment string) *zap.Logger {
	log, err := New(cfg, environment)
	if err != nil {
		panic(err)
	}
	return log
}
