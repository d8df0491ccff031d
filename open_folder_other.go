//go:build !windows

package main

import (
	"os/exec"
	"runtime"
)

func openFolderInOS(path string) error {
	abs, err := checkFolder(path)
	if err != nil || abs == "" {
		return err
	}
	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	return exec.Command(opener, abs).Start()
}
