// Package logging configures the process-wide zerolog logger used for the
// operator log of both the hub and the peer.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Tyrowin/relaychat/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs the global logger described by c. The returned Closer
// releases the log file, if any, and must be closed on exit.
func Setup(c config.LogConfig) (io.Closer, error) {
	return setup(c, os.Stderr)
}

func setup(c config.LogConfig, stderr io.Writer) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = stderr
	if !strings.EqualFold(c.Format, "json") {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    max(c.MaxSizeMB, 1),
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		writers = append(writers, file)
		closer = file
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	SetLevel(c.Level)
	return closer, nil
}

// SetLevel changes the global level. Unknown names select info.
func SetLevel(name string) {
	zerolog.SetGlobalLevel(ParseLevel(name))
}

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
