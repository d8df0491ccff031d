package bookmarks

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"SetScript/internal/jsonfile"
	"SetScript/internal/logger"
)

var iconExtByType = map[string]string{
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/svg+xml":            ".svg",
}

// decodeIconPayload turns a data URL or bare base64 string into image bytes
// and the extension to store them under.
func decodeIconPayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)

	declared := ""
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: icon must be a base64 data URL", ErrInvalidInput)
		}
		declared, _, _ = mime.ParseMediaType(payload[len("data:"):idx])
		payload = payload[idx+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: icon is not valid base64", ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: icon is empty", ErrInvalidInput)
	}

	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	if ext, ok := iconExtByType[sniffed]; ok {
		return data, ext, nil
	}
	// DetectContentType has no SVG signature; trust the declared type when
	// the body actually looks like SVG markup.
	if declared == "image/svg+xml" && bytes.Contains(data[:min(len(data), 1024)], []byte("<svg")) {
		return data, ".svg", nil
	}
	return nil, "", fmt.Errorf("%w: icon is %s, not an image", ErrInvalidInput, sniffed)
}

// iconName extracts the file name from an icons/<name> reference.
func iconName(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, IconDir+"/")
	if !ok || name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", false
	}
	return name, true
}

func (s *Store) iconCandidates(ref string) []string {
	name, ok := iconName(ref)
	if !ok {
		return nil
	}
	return []string{
		filepath.Join(s.dir, IconDir, name),
		filepath.Join(s.dir, legacyIconDir, name),
	}
}

// IconPath resolves an icons/<name> reference to the file on disk. Files
// written by the first release are found in the legacy Saves directory.
func (s *Store) IconPath(ref string) (string, bool) {
	for _, p := range s.iconCandidates(ref) {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (s *Store) writeIcon(id string, data []byte, ext string) (string, error) {
	name := "icon_" + id + ext
	if err := jsonfile.WriteFile(filepath.Join(s.dir, IconDir, name), data); err != nil {
		return "", err
	}
	return IconDir + "/" + name, nil
}

// removeIcon deletes a generated icon. Failures are logged, never returned:
// a stale icon file must not block deleting the record that owned it.
func (s *Store) removeIcon(ref string) {
	for _, p := range s.iconCandidates(ref) {
		if err := jsonfile.Remove(p); err != nil {
			s.log.Warn("icon cleanup failed",
				logger.String("icon", ref),
				logger.Error(err))
		}
	}
}
