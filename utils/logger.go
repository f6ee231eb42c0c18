package utils

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/amirphl/Kiriban/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the application logger from the logging section. File output
// is rotated by lumberjack. The returned close func flushes and closes the file.
func NewLogger(cfg config.LoggingConfig) (*log.Logger, func() error, error) {
	var writers []io.Writer
	closeFn := func() error { return nil }

	output := strings.ToLower(cfg.Output)
	if output == "" || output == "stdout" || output == "both" {
		writers = append(writers, os.Stdout)
	}
	if output == "file" || output == "both" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writers = append(writers, rotator)
		closeFn = rotator.Close
	}

	logger := log.New(io.MultiWriter(writers...), "", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	return logger, closeFn, nil
}
