// Package assets serves the files the shell's UI loads by URL: generated
// bookmark icons, the bundled default icon, offline snapshots and the
// bookmark event stream. It is mounted as the Wails asset handler, so every
// path not found in the embedded frontend lands here.
package assets

import (
	"bytes"
	"embed"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"SetScript/internal/bookmarks"
	"SetScript/internal/logger"
)

//go:embed static/save-icon.png
var static embed.FS

// IconResolver maps an icons/<name> reference to a file on disk.
type IconResolver interface {
	IconPath(ref string) (string, bool)
}

// SnapshotResolver maps a bookmark id to its offline HTML copy.
type SnapshotResolver interface {
	Path(id string) (string, bool)
}

type Deps struct {
	Icons     IconResolver
	Snapshots SnapshotResolver // optional
	Events    http.Handler     // optional
	Logger    logger.Logger
}

var mimeByExt = map[string]string{
	".ico":  "image/x-icon",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".html": "text/html; charset=utf-8",
}

// New builds the router.
func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(log))

	r.Get("/"+bookmarks.DefaultIcon, serveDefaultIcon)
	r.Get("/"+bookmarks.IconDir+"/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		p, ok := d.Icons.IconPath(bookmarks.IconDir + "/" + name)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "icon not found"})
			return
		}
		serveFile(w, req, p)
	})

	if d.Snapshots != nil {
		r.Get("/snapshots/{id}", func(w http.ResponseWriter, req *http.Request) {
			p, ok := d.Snapshots.Path(chi.URLParam(req, "id"))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no offline copy for this bookmark"})
				return
			}
			serveFile(w, req, p)
		})
	}

	if d.Events != nil {
		r.Method(http.MethodGet, "/api/events", d.Events)
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	return r
}

func serveDefaultIcon(w http.ResponseWriter, r *http.Request) {
	data, err := static.ReadFile("static/save-icon.png")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "default icon missing"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "save-icon.png", time.Time{}, bytes.NewReader(data))
}

func serveFile(w http.ResponseWriter, r *http.Request, p string) {
	ct := mimeByExt[strings.ToLower(filepath.Ext(p))]
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
