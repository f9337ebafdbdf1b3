// Package logging builds the process logger from configuration: a text or
// JSON slog handler over stdout, optionally fanned out to a rotating log
// file and a syslog daemon.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quipubase/quipubase/internal/config"
)

// defaultTag names the syslog program when the configuration leaves it empty.
const defaultTag = "quipubase"

// Setup constructs the configured logger and installs it as the slog
// default. The returned closer shuts down the file and syslog sinks; call it
// on process exit.
func Setup(cfg config.LoggingConfig) (*slog.Logger, func() error, error) {
	writers := []io.Writer{os.Stdout}
	var closers []io.Closer

	if cfg.File.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, rotator)
		closers = append(closers, rotator)
	}

	if cfg.Syslog.Enabled {
		tag := cfg.Syslog.Tag
		if tag == "" {
			tag = defaultTag
		}
		sys, err := srslog.Dial(cfg.Syslog.Network, cfg.Syslog.Address, srslog.LOG_INFO|srslog.LOG_DAEMON, tag)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("failed to connect syslog sink: %w", err)
		}
		writers = append(writers, sys)
		closers = append(closers, sys)
	}

	var out io.Writer = writers[0]
	if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	logger := slog.New(newHandler(cfg, out))
	slog.SetDefault(logger)

	closer := func() error {
		return closeAll(closers)
	}
	return logger, closer, nil
}

// newHandler builds the slog handler for the configured format and level.
func newHandler(cfg config.LoggingConfig, out io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// parseLevel maps a config level string to a slog level. Unknown levels
// fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
