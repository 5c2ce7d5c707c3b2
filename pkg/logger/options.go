package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the handler a logger writes with.
type Format int

const (
	// FormatText is slog's logfmt-style text handler.
	FormatText Format = iota

	// FormatPretty is the colorized charmbracelet/log handler for terminals.
	FormatPretty

	// FormatJSON is slog's JSON handler, one object per line.
	FormatJSON
)

var formatNames = map[Format]string{
	FormatText:   "text",
	FormatPretty: "pretty",
	FormatJSON:   "json",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat maps "text", "pretty" or "json" to a Format.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return FormatText, fmt.Errorf("unknown log format %q (want text, pretty or json)", s)
}

// Option configures a logger created with New.
type Option func(*settings)

// WithLevel sets the minimum level. The default is Info.
func WithLevel(level slog.Level) Option {
	return func(s *settings) {
		s.level = level
	}
}

// WithDebug lowers the level to Debug when debug is set.
func WithDebug(debug bool) Option {
	if debug {
		return WithLevel(slog.LevelDebug)
	}
	return WithLevel(slog.LevelInfo)
}

// WithFormat picks the output handler. The default is FormatText.
func WithFormat(format Format) Option {
	return func(s *settings) {
		s.format = format
	}
}

// WithWriter adds an output. Several outputs receive the same bytes; with none
// the logger writes to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		s.writers = append(s.writers, w)
	}
}

// WithAttrs attaches key/value pairs to every record, e.g. "component", "proxy".
func WithAttrs(args ...any) Option {
	return func(s *settings) {
		s.attrs = append(s.attrs, args...)
	}
}

// WithSource adds the caller's file:line to every record.
func WithSource(source bool) Option {
	return func(s *settings) {
		s.source = source
	}
}
