//go:build windows

package main

import (
	"os/exec"
)

func openFolderInOS(path string) error {
	abs, err := checkFolder(path)
	if err != nil || abs == "" {
		return err
	}
	return exec.Command("explorer.exe", abs).Start()
}
