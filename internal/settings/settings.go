// Package settings persists the shell's display state in settings.json.
package settings

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"SetScript/internal/jsonfile"
	"SetScript/internal/logger"
)

const FileName = "settings.json"

// Record is the flat settings object. Width and Height are the last known
// window size. They are stored as given; only a size with both sides
// positive is ever applied to a window.
type Record struct {
	IsFullscreen  bool `json:"isFullscreen"`
	IsAlwaysOnTop bool `json:"isAlwaysOnTop"`
	Width         int  `json:"width,omitempty"`
	Height        int  `json:"height,omitempty"`
}

func Defaults() Record {
	return Record{}
}

// HasGeometry reports whether a window size was recorded.
func (r Record) HasGeometry() bool {
	return r.Width > 0 && r.Height > 0
}

// Surface is the live window the settings are applied to.
type Surface interface {
	SetFullscreen(on bool)
	SetAlwaysOnTop(on bool)
	SetSize(width, height int)
}

type Store struct {
	mu   sync.Mutex
	path string
	log  logger.Logger
}

func NewStore(dir string, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		path: filepath.Join(dir, FileName),
		log:  log,
	}
}

func (s *Store) Path() string { return s.path }

// Load never fails: a missing, empty or unreadable file yields the defaults,
// and keys absent from the file keep their default values.
func (s *Store) Load() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Record {
	rec := Defaults()

	b, err := jsonfile.ReadFile(s.path)
	if err != nil {
		s.log.Warn("settings unreadable, using defaults", logger.String("path", s.path), logger.Error(err))
		return Defaults()
	}
	if jsonfile.IsBlank(b) {
		return rec
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		// A corrupt file must not brick the app; the next Save overwrites it.
		s.log.Warn("settings corrupt, using defaults", logger.String("path", s.path), logger.Error(err))
		return Defaults()
	}
	return rec
}

// Save overwrites settings.json with rec.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(rec)
}

func (s *Store) saveLocked(rec Record) error {
	return jsonfile.Write(s.path, rec)
}

// Update loads the current record, lets fn modify it, and saves the result.
func (s *Store) Update(fn func(*Record)) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.loadLocked()
	fn(&rec)
	if err := s.saveLocked(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Apply pushes rec to the window and persists it, so what is on screen and
// what is on disk agree. Geometry is skipped while fullscreen or when it is
// not a usable size.
func (s *Store) Apply(surface Surface, rec Record) error {
	if surface != nil {
		surface.SetAlwaysOnTop(rec.IsAlwaysOnTop)
		if !rec.IsFullscreen && rec.HasGeometry() {
			surface.SetSize(rec.Width, rec.Height)
		}
		surface.SetFullscreen(rec.IsFullscreen)
	}
	return s.Save(rec)
}
