// Package jsonfile is the thin file-system and JSON layer under the stores.
// Every failure is classified as either ErrStorage (the disk said no) or
// ErrCorrupt (the bytes are there but are not the JSON we expect).
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrStorage = errors.New("storage error")
	ErrCorrupt = errors.New("corrupt store")
)

// ReadFile returns the file content, or nil when the file does not exist.
func ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, path, err)
	}
	return b, nil
}

// IsBlank reports whether b holds no JSON value at all.
func IsBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

// Load decodes the file at path into v. It reports false, with v untouched,
// when the file is absent or empty.
func Load(path string, v any) (bool, error) {
	b, err := ReadFile(path)
	if err != nil {
		return false, err
	}
	if IsBlank(b) {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("%w: parse %s: %w", ErrCorrupt, path, err)
	}
	return true, nil
}

// Write encodes v with two-space indentation and replaces the file at path.
func Write(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteFile(path, b)
}

// WriteFile replaces path with data. The bytes go to a temp file in the same
// directory which is then renamed over the target, so readers see either the
// old content or the new one, never a prefix.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", ErrStorage, path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync %s: %w", ErrStorage, path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %w", ErrStorage, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod %s: %w", ErrStorage, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replace %s: %w", ErrStorage, path, err)
	}
	return nil
}

// Remove deletes path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", ErrStorage, path, err)
	}
	return nil
}
