// Package logging builds the process-wide zap logger from configuration.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"docrag/config"
)

// New builds a logger. Unknown formats fall back to JSON.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc, err := buildConfig(cfg)
	if err != nil {
		return nil, err
	}
	return zc.Build()
}

func buildConfig(cfg config.LoggingConfig) (zap.Config, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, err
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	switch strings.ToLower(cfg.Format) {
	case "console", "text":
		zc.Encoding = "console"
	default:
		zc.Encoding = "json"
	}

	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = normalizeOutputPaths(cfg.OutputPaths)
		zc.ErrorOutputPaths = normalizeOutputPaths(cfg.OutputPaths)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	if zc.Encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.EncoderConfig = enc
	return zc, nil
}

// ParseLevel accepts debug, info, warn, error or an empty string (info).
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func normalizeOutputPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		switch strings.ToLower(p) {
		case "", "stdout":
			out = append(out, "stdout")
		case "stderr":
			out = append(out, "stderr")
		default:
			out = append(out, p)
		}
	}
	return out
}
