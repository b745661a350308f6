package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":       LevelOff,
		"off":    LevelOff,
		"error":  LevelError,
		"info":   LevelInfo,
		"DEBUG":  LevelDebug,
		" info ": LevelInfo,
		"weird":  LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelZerolog(t *testing.T) {
	if LevelOff.Zerolog() != zerolog.Disabled || LevelError.Zerolog() != zerolog.ErrorLevel ||
		LevelInfo.Zerolog() != zerolog.InfoLevel || LevelDebug.Zerolog() != zerolog.DebugLevel {
		t.Fatalf("unexpected zerolog mapping")
	}
	if LevelDebug.String() != "debug" || LevelOff.String() != "off" {
		t.Fatalf("unexpected String()")
	}
}

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lg, closer := New(&buf, Options{Level: LevelError, NoColor: true})
	defer closer.Close()
	lg.Info().Msg("hidden")
	lg.Error().Str("model", "m").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") || !strings.Contains(out, "model=m") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestNew_File(t *testing.T) {
	var buf bytes.Buffer
	p := filepath.Join(t.TempDir(), "inferctl.log")
	lg, closer := New(&buf, Options{Level: LevelDebug, File: p, NoColor: true})
	lg.Debug().Str("op", "infer").Msg("request")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), `"op":"infer"`) || !strings.Contains(string(b), `"message":"request"`) {
		t.Fatalf("unexpected file content: %q", string(b))
	}
}
