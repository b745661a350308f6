// Package logging builds the zerolog loggers used by the CLI and the fake
// server.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the coarse verbosity knob exposed on flags, config and
// per-request overrides.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

// ParseLevel maps off|error|info|debug to a Level. Empty means off; unknown
// values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// Zerolog converts l to the matching zerolog level.
func (l Level) Zerolog() zerolog.Level {
	switch l {
	case LevelOff:
		return zerolog.Disabled
	case LevelError:
		return zerolog.ErrorLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configure New.
type Options struct {
	Level Level
	// File, when set, receives JSON lines through a rotating writer in
	// addition to the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// NoColor disables ANSI colors on the console writer.
	NoColor bool
}

// New returns a logger writing human-readable lines to console and, when
// configured, JSON lines to a rotating file. The returned closer releases
// the file.
func New(console io.Writer, o Options) (zerolog.Logger, io.Closer) {
	cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.TimeOnly, NoColor: o.NoColor}
	var w io.Writer = cw
	var closer io.Closer = nopCloser{}
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    orDefault(o.MaxSizeMB, 50),
			MaxBackups: orDefault(o.MaxBackups, 3),
		}
		w = zerolog.MultiLevelWriter(cw, lj)
		closer = lj
	}
	return zerolog.New(w).Level(o.Level.Zerolog()).With().Timestamp().Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}
