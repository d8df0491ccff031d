// Package bookmarks persists saved pages in a single bookmarks.json file.
//
// The file is the only source of truth: every call re-reads it, applies its
// change in memory and writes the whole collection back. Generated icons live
// next to it under icons/.
package bookmarks

import (
	"errors"
	"time"

	"SetScript/internal/jsonfile"
)

const (
	FileName = "bookmarks.json"
	IconDir  = "icons"

	// DefaultIcon is served from the embedded assets, not from disk.
	DefaultIcon = "images/save-icon.png"

	// legacyIconDir is where the first shell release wrote icon_<ts>.png files.
	legacyIconDir = "Saves"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("bookmark not found")
	ErrCorruptStore = jsonfile.ErrCorrupt
	ErrStorage      = jsonfile.ErrStorage
)

// Record is one saved page.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Icon        string    `json:"icon"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// CreateInput is what the UI sends when the user saves the current page.
type CreateInput struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	// IconPayload is a data URL (data:image/png;base64,...) or bare base64.
	// Empty means the default icon.
	IconPayload string `json:"icon"`
}

// UpdateInput carries the editable fields. Nil leaves a field unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"` // duplicate url or invalid record
}

// Notifier receives the full collection after every successful mutation.
//
// gen grows with each snapshot the store takes, in the order the writes
// committed. Calls are not ordered by gen: a receiver that sees a gen no
// newer than one it already handled must drop that list.
type Notifier interface {
	Notify(gen uint64, list []Record)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(gen uint64, list []Record)

func (f NotifierFunc) Notify(gen uint64, list []Record) { f(gen, list) }

// HasGeneratedIcon reports whether the record points at an icon file this
// store wrote (as opposed to the bundled default).
func (r Record) HasGeneratedIcon() bool {
	_, ok := iconName(r.Icon)
	return ok
}

func cloneList(list []Record) []Record {
	out := make([]Record, len(list))
	copy(out, list)
	return out
}
