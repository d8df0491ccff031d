package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	var v []string
	found, err := Load(filepath.Join(dir, "missing.json"), &v)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}

	empty := filepath.Join(dir, "empty.json")
	_ = os.WriteFile(empty, []byte("  \n"), 0o644)
	found, err = Load(empty, &v)
	if err != nil || found {
		t.Fatalf("empty file: found=%v err=%v", found, err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(path, []byte("{not json"), 0o644)

	var v map[string]any
	_, err := Load(path, &v)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if errors.Is(err, ErrStorage) {
		t.Fatalf("parse error must not be classified as storage error")
	}
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	in := map[string]int{"a": 1, "b": 2}
	if err := Write(path, in); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "\n  \"a\": 1") {
		t.Fatalf("expected two-space indentation, got %q", b)
	}

	var out map[string]int
	found, err := Load(path, &out)
	if err != nil || !found {
		t.Fatalf("Load() found=%v err=%v", found, err)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Fatalf("round trip mismatch: %v", out)
	}
}

func TestWriteFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bookmarks.json")
	for i := 0; i < 3; i++ {
		if err := WriteFile(path, []byte("[]")); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "bookmarks.json" {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files left behind: %v", names)
	}
}

func TestWriteFileStorageError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	defer func() { _ = os.Chmod(dir, 0o755) }()

	err := WriteFile(filepath.Join(dir, "x.json"), []byte("[]"))
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "nope.png")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}
