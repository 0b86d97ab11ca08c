// ABOUTME: Process-wide logrus setup
// ABOUTME: Applies level and format and routes output to a file, optionally teeing stdout
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/config"
)

// Setup configures logger from cfg. With a TUI running, output goes only to
// the log file so the terminal stays clean. The returned closer releases
// the file.
func Setup(logger *logrus.Logger, cfg config.LoggingConfig, useTUI bool) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			// file output has no terminal to detect
			DisableColors: cfg.File != "",
		})
	}

	if cfg.File == "" {
		if useTUI {
			logger.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stdout)
		}
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	if useTUI {
		logger.SetOutput(f)
	} else {
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return f, nil
}
