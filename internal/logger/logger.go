package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where log output goes
type Options struct {
	// LogFile receives JSON lines; empty disables the file sink
	LogFile string
	// Level is one of debug, info, warn, error
	Level string
	// Console enables the human readable stderr sink
	Console bool
}

// New builds a logger writing to console and/or file. The returned close
// func syncs the logger and releases the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}

	var (
		cores []zapcore.Core
		file  *os.File
	)

	if opts.Console {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	if opts.LogFile != "" {
		if dir := filepath.Dir(opts.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, err
			}
		}
		var err error
		file, err = os.OpenFile(opts.LogFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.Lock(file),
			level,
		))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }, nil
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	log.Info("logger started", zap.String("file", opts.LogFile), zap.Time("at", time.Now()))

	closeFn := func() error {
		// Sync on a console sink fails with EINVAL on some terminals
		_ = log.Sync()
		if file == nil {
			return nil
		}
		return file.Close()
	}
	return log, closeFn, nil
}
