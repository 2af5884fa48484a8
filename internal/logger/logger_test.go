package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("search", LevelWarn, &buf)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn")
	log.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "WARN [search] visible warn") {
		t.Errorf("expected warn line, got %q", out)
	}
	if !strings.Contains(out, "ERROR [search] visible error") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("sync", LevelDebug, &buf)

	log.Info("vector upserted", F("id", 7), Count(3), Err(errors.New("boom")))

	out := buf.String()
	if !strings.Contains(out, "[id=7 count=3 error=boom]") {
		t.Errorf("expected formatted fields, got %q", out)
	}
}

func TestLogger_WithComponentSharesWriter(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter("", LevelInfo, &buf)
	child := root.WithComponent("api")

	root.Info("root line")
	child.Info("child line")

	out := buf.String()
	if !strings.Contains(out, "[main] root line") {
		t.Errorf("expected default component name, got %q", out)
	}
	if !strings.Contains(out, "[api] child line") {
		t.Errorf("expected child component, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
