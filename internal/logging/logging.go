// Package logging sets up the debug log file. Operator output never goes through it.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultFileName is the debug log used when none is configured
func DefaultFileName(now time.Time) string {
	return fmt.Sprintf("dngc_debug_%s.log", now.Format("20060102_150405"))
}

// New returns a JSON debug logger writing to path, or a no-op logger when
// debug is off. The returned close func flushes and closes the file.
func New(debug bool, path string) (*zap.Logger, func(), error) {
	if !debug {
		return zap.NewNop(), func() {}, nil
	}

	if path == "" {
		path = DefaultFileName(time.Now())
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log file: %w", err)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			TimeKey:        "t",
			MessageKey:     "m",
			NameKey:        "n",
			LevelKey:       "l",
			EncodeName:     zapcore.FullNameEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		}),
		zapcore.AddSync(file),
		zap.DebugLevel,
	)

	log := zap.New(core).With(zap.Int("pid", os.Getpid()))
	log.Info("debug session started", zap.String("file", path))

	return log, func() {
		log.Info("debug session ended")
		_ = log.Sync()
		_ = file.Close()
	}, nil
}
