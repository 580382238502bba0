// ABOUTME: Logger construction for the client and the loopback relay
// ABOUTME: Builds a console-encoded zap logger writing to a file and optionally stdout
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects where and how much to log
type Options struct {
	// File receives every log line; empty disables file output
	File string

	// Console also writes to stdout. Leave off while a TUI owns the terminal.
	Console bool

	Debug bool
}

// New builds a logger for opts
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	var outputs []string
	if opts.File != "" {
		outputs = append(outputs, opts.File)
	}
	if opts.Console {
		outputs = append(outputs, "stdout")
	}
	if len(outputs) == 0 {
		return zap.NewNop(), nil
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       opts.Debug,
		Encoding:          "console",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  outputs,
		DisableStacktrace: !opts.Debug,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
