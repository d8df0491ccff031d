package bookmarks

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"SetScript/internal/jsonfile"
)

// decodeRecords parses bookmarks.json. Besides the current shape it accepts
// files written by the first release of the shell, whose records look like
// {name, desc, url, iconPath, timestamp}; those are normalised in memory and
// rewritten in the current shape on the next mutation.
func decodeRecords(b []byte, source string) ([]Record, error) {
	if jsonfile.IsBlank(b) {
		return []Record{}, nil
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("%w: parse %s: invalid JSON", ErrCorruptStore, source)
	}
	root := gjson.ParseBytes(b)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: parse %s: expected a JSON array", ErrCorruptStore, source)
	}

	items := root.Array()
	out := make([]Record, 0, len(items))
	for i, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: record %d: %v", ErrCorruptStore, source, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeRecords is decodeRecords for callers outside the store (the import
// command reads exports with it).
func DecodeRecords(b []byte) ([]Record, error) {
	return decodeRecords(b, "input")
}

func decodeRecord(item gjson.Result) (Record, error) {
	if !item.IsObject() {
		return Record{}, fmt.Errorf("expected an object, got %s", item.Type)
	}

	legacyTS := item.Get("timestamp")

	rec := Record{
		ID:          firstString(item, "id"),
		Name:        item.Get("name").String(),
		Description: firstString(item, "description", "desc"),
		URL:         item.Get("url").String(),
		Icon:        normaliseIcon(firstString(item, "icon", "iconPath")),
	}
	if rec.ID == "" && legacyTS.Exists() {
		rec.ID = legacyTS.String()
	}
	if rec.ID == "" {
		return Record{}, fmt.Errorf("missing id")
	}

	var err error
	if rec.CreatedAt, err = decodeTime(item.Get("createdAt")); err != nil {
		return Record{}, fmt.Errorf("createdAt: %w", err)
	}
	if rec.CreatedAt.IsZero() && legacyTS.Type == gjson.Number {
		rec.CreatedAt = time.UnixMilli(legacyTS.Int()).UTC()
	}
	if rec.UpdatedAt, err = decodeTime(item.Get("updatedAt")); err != nil {
		return Record{}, fmt.Errorf("updatedAt: %w", err)
	}
	return rec, nil
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

func decodeTime(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Null:
		return time.Time{}, nil
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		if v.Str == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, v.Str)
	default:
		return time.Time{}, fmt.Errorf("unexpected %s", v.Type)
	}
}

// normaliseIcon maps the first release's local-file://…/Saves/icon_x.png
// references onto icons/icon_x.png.
func normaliseIcon(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return DefaultIcon
	case strings.HasPrefix(ref, "local-file://"):
		p := strings.ReplaceAll(strings.TrimPrefix(ref, "local-file://"), `\`, "/")
		base := path.Base(p)
		if !strings.HasPrefix(base, "icon_") {
			return DefaultIcon
		}
		return IconDir + "/" + base
	default:
		return ref
	}
}
