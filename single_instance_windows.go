//go:build windows

package main

import (
	"errors"
	"net"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// tryAcquireSingleInstance takes a session-local named mutex for dataDir.
// Holding it makes this process the window for that data directory.
func tryAcquireSingleInstance(appID, dataDir string) (primary bool, release func(), err error) {
	name, err := windows.UTF16PtrFromString(`Local\` + instanceKey(appID, dataDir))
	if err != nil {
		return false, nil, err
	}
	h, err := windows.CreateMutex(nil, false, name)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		// The handle is valid; another process simply owns the name.
		_ = windows.CloseHandle(h)
		return false, func() {}, nil
	}
	if err != nil {
		return false, nil, err
	}

	var closed bool
	return true, func() {
		if !closed {
			closed = true
			_ = windows.CloseHandle(h)
		}
	}, nil
}

func startInstanceIPC(dataDir string) (net.Listener, func(), error) {
	return listenInstance(dataDir, os.Getpid())
}

func notifyExistingInstance(dataDir, target string) error {
	return dialInstance(dataDir, target, 2*time.Second)
}
