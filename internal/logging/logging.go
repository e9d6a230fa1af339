package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. format is "json" or "console"; level is any
// zap level name.
func New(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var logConfig zap.Config
	switch format {
	case "json", "":
		logConfig = zap.NewProductionConfig()
		logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		logConfig = zap.NewDevelopmentConfig()
		logConfig.Development = false
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	logConfig.DisableStacktrace = true
	logConfig.Sampling = nil
	logConfig.Level.SetLevel(lvl)
	return logConfig.Build()
}
