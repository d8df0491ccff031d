//go:build !windows

package main

import "net"

// Outside Windows the desktop environment already focuses the existing
// window, so every launch is primary.
func tryAcquireSingleInstance(appID, dataDir string) (primary bool, release func(), err error) {
	return true, func() {}, nil
}

func startInstanceIPC(dataDir string) (net.Listener, func(), error) {
	return nil, func() {}, nil
}

func notifyExistingInstance(dataDir, target string) error {
	return nil
}
