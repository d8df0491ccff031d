package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		if got := parseLevel(lvl); got == nil || got.String() != lvl {
			t.Fatalf("parseLevel(%q) = %v", lvl, got)
		}
	}
	if got := parseLevel("verbose"); got != nil {
		t.Fatalf("expected nil for unknown level, got %v", got)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "setscript.log")
	l := New(Options{Level: "info", File: path})
	l.Info("bookmark saved", String("id", "abc"))
	_ = l.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "bookmark saved") || !strings.Contains(string(b), `"id":"abc"`) {
		t.Fatalf("unexpected log content: %s", b)
	}
}
