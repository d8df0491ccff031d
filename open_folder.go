package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var errFolderMissing = errors.New("folder does not exist")

// checkFolder resolves path to an absolute directory. An empty path yields
// "" and no error.
func checkFolder(path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "\"")
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", errFolderMissing, abs)
		}
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("not a folder: %s", abs)
	}
	return abs, nil
}
