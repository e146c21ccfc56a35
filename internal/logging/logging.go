// Package logging builds the zap loggers of the CLI and the engine.
package logging

import (
	"io"
	"os"

	"github.com/san-kum/dtwa/internal/comm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Verbose lowers the level to debug.
	Verbose bool
	// Format is "console" or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// New builds a logger writing to cfg.Output.
func New(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return zap.New(core, zap.AddStacktrace(zapcore.FatalLevel))
}

// ForRank returns log on the coordinator and a no-op logger on every other
// rank, so a group prints each message once.
func ForRank(log *zap.Logger, rank int) *zap.Logger {
	if log == nil || rank != comm.Root {
		return zap.NewNop()
	}
	return log
}
