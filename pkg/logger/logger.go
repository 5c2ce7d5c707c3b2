// Package logger builds the slog loggers used across parley: colorized output
// for people at a terminal, JSON for log files and collectors.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type settings struct {
	level   slog.Level
	format  Format
	source  bool
	writers []io.Writer
	attrs   []any
}

func (s *settings) output() io.Writer {
	switch len(s.writers) {
	case 0:
		return os.Stdout
	case 1:
		return s.writers[0]
	default:
		return io.MultiWriter(s.writers...)
	}
}

func (s *settings) handler() slog.Handler {
	w := s.output()

	switch s.format {
	case FormatPretty:
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(s.level),
			ReportTimestamp: true,
			ReportCaller:    s.source,
			TimeFormat:      time.Kitchen,
		})
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: s.level, AddSource: s.source})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: s.level, AddSource: s.source})
	}
}

// New returns a logger configured by opts. Without options it writes Info and
// above as text to os.Stdout.
func New(opts ...Option) *slog.Logger {
	s := &settings{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(s)
	}

	l := slog.New(s.handler())
	if len(s.attrs) > 0 {
		l = l.With(s.attrs...)
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
