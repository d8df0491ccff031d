package main

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestInstanceHandoff(t *testing.T) {
	dir := t.TempDir()
	ln, cleanup, err := listenInstance(dir, 4242)
	if err != nil {
		t.Fatalf("listenInstance() error = %v", err)
	}

	got := make(chan handoff, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		msg, err := readHandoff(conn)
		if err != nil {
			t.Errorf("readHandoff() error = %v", err)
			return
		}
		got <- msg
	}()

	if err := dialInstance(dir, ` "https://go.dev" `, 2*time.Second); err != nil {
		t.Fatalf("dialInstance() error = %v", err)
	}
	select {
	case msg := <-got:
		if msg.Open != "https://go.dev" || msg.Version != Version {
			t.Fatalf("unexpected handoff %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("primary never received the handoff")
	}

	cleanup()
	if _, err := os.Stat(instancePath(dir)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("instance file left after cleanup: %v", err)
	}
}

func TestDialInstanceWithoutPrimary(t *testing.T) {
	err := dialInstance(t.TempDir(), "https://go.dev", 250*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "no running instance") {
		t.Fatalf("expected a missing-instance error, got %v", err)
	}
}

func TestReadHandoffRejectsGarbage(t *testing.T) {
	if _, err := readHandoff(strings.NewReader("https://go.dev")); err == nil {
		t.Fatalf("a bare URL is not a handoff message")
	}
	msg, err := readHandoff(strings.NewReader(`{"version":"v1"}`))
	if err != nil || msg.Open != "" {
		t.Fatalf("raise-only message = %+v, %v", msg, err)
	}
}

func TestInstanceKeyPerDataDir(t *testing.T) {
	a := instanceKey("SetScript", "/home/u/.config/SetScript")
	b := instanceKey("SetScript", "/home/u/other")
	if a == b {
		t.Fatalf("different data dirs share a lock name %q", a)
	}
	if a != instanceKey("SetScript", "/home/u/.config/SetScript/") {
		t.Fatalf("lock name should not depend on a trailing slash")
	}
	if !strings.HasPrefix(a, "SetScript_") {
		t.Fatalf("unexpected lock name %q", a)
	}
}
