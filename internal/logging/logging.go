// Package logging builds the zap logger shared by every xpdk CLI
// driver, colorized on an interactive terminal and plain otherwise.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config selects the minimum logged level.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
}

// DefaultConfig logs at info level.
func DefaultConfig() *Config {
	return &Config{Level: zapcore.InfoLevel}
}

// Init builds a console-encoded logger writing to stderr. The returned
// AtomicLevel lets a caller raise or lower verbosity at runtime, e.g.
// from a signal handler.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}

// WithQueue returns a child logger tagged with the RX/TX queue id it's
// logging on, so multi-queue output can be filtered per worker.
func WithQueue(log *zap.SugaredLogger, queueID uint16) *zap.SugaredLogger {
	return log.With("queue_id", queueID)
}
