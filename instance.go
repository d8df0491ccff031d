package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"path/filepath"
	"strings"
	"time"

	"SetScript/internal/jsonfile"
)

// A second launch hands its --open URL to the running window over a
// loopback connection. The running instance advertises its port in
// <data dir>/instance.json, so windows on different data directories never
// talk to each other.
const instanceFileName = "instance.json"

type instanceRecord struct {
	Port    int    `json:"port"`
	PID     int    `json:"pid"`
	Version string `json:"version"`
}

// handoff is the single JSON message a second launch sends.
type handoff struct {
	Open    string `json:"open,omitempty"`
	Version string `json:"version"`
}

const maxHandoffBytes = 16 * 1024

func instancePath(dataDir string) string {
	return filepath.Join(dataDir, instanceFileName)
}

// instanceKey names the lock for one data directory.
func instanceKey(appID, dataDir string) string {
	h := fnv.New32a()
	_, _ = io.WriteString(h, strings.ToLower(filepath.Clean(dataDir)))
	return fmt.Sprintf("%s_%08x", appID, h.Sum32())
}

// listenInstance opens the loopback listener and advertises it. The returned
// cleanup closes the listener and withdraws the advertisement.
func listenInstance(dataDir string, pid int) (net.Listener, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}
	rec := instanceRecord{Port: ln.Addr().(*net.TCPAddr).Port, PID: pid, Version: Version}
	path := instancePath(dataDir)
	if err := jsonfile.Write(path, rec); err != nil {
		_ = ln.Close()
		return nil, nil, err
	}
	return ln, func() {
		_ = ln.Close()
		_ = jsonfile.Remove(path)
	}, nil
}

// dialInstance delivers open to the instance advertised in dataDir. The
// primary may still be starting, so it retries until wait has passed.
func dialInstance(dataDir, open string, wait time.Duration) error {
	msg := handoff{Open: cleanOpenArg(open), Version: Version}

	var lastErr error
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		var rec instanceRecord
		ok, err := jsonfile.Load(instancePath(dataDir), &rec)
		switch {
		case err != nil:
			lastErr = err
		case !ok || rec.Port <= 0:
			lastErr = errors.New("no running instance advertised")
		default:
			lastErr = sendHandoff(rec.Port, msg)
			if lastErr == nil {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timed out")
	}
	return fmt.Errorf("reach running instance: %w", lastErr)
}

func sendHandoff(port int, msg handoff) error {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 300*time.Millisecond)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	return json.NewEncoder(conn).Encode(msg)
}

// readHandoff decodes what a second launch sent. An empty Open only asks the
// window to come to the front.
func readHandoff(r io.Reader) (handoff, error) {
	var msg handoff
	if err := json.NewDecoder(io.LimitReader(r, maxHandoffBytes)).Decode(&msg); err != nil {
		return handoff{}, fmt.Errorf("decode handoff: %w", err)
	}
	msg.Open = cleanOpenArg(msg.Open)
	return msg, nil
}

// cleanOpenArg strips the quotes a Windows shortcut leaves around %1.
func cleanOpenArg(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
