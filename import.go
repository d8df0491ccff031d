package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tidwall/gjson"

	"SetScript/internal/bookmarks"
)

// parseExport reads either a bookmarks.json copied from another machine
// (a bare array, current or first-release shape) or a bookmark-cli export
// ({"bookmarks": [{title, url, description, created_at}]}).
// Icons are not imported: they refer to files that do not exist here.
func parseExport(data []byte, progress io.Writer) ([]bookmarks.Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: import file is not valid JSON", bookmarks.ErrInvalidInput)
	}
	root := gjson.ParseBytes(data)
	items := root.Get("bookmarks")
	if !items.IsArray() {
		items = root
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of bookmarks", bookmarks.ErrInvalidInput)
	}

	list := items.Array()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: no bookmarks found in file", bookmarks.ErrInvalidInput)
	}

	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(list),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Reading"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	out := make([]bookmarks.Record, 0, len(list))
	for _, item := range list {
		_ = bar.Add(1)
		if !item.IsObject() {
			continue
		}
		out = append(out, exportRecord(item))
	}
	_ = bar.Finish()
	return out, nil
}

func exportRecord(item gjson.Result) bookmarks.Record {
	rec := bookmarks.Record{
		ID:          item.Get("id").String(),
		Name:        strings.TrimSpace(firstOf(item, "name", "title")),
		Description: firstOf(item, "description", "desc"),
		URL:         strings.TrimSpace(item.Get("url").String()),
	}
	if rec.Name == "" {
		rec.Name = rec.URL
	}

	switch created := item.Get("createdAt"); created.Type {
	case gjson.String:
		if t, err := time.Parse(time.RFC3339Nano, created.Str); err == nil {
			rec.CreatedAt = t
		}
	case gjson.Number:
		rec.CreatedAt = time.UnixMilli(created.Int()).UTC()
	default:
		if ts := item.Get("created_at"); ts.Type == gjson.Number && ts.Int() > 0 {
			rec.CreatedAt = time.Unix(ts.Int(), 0).UTC()
		} else if ts := item.Get("timestamp"); ts.Type == gjson.Number {
			rec.CreatedAt = time.UnixMilli(ts.Int()).UTC()
		}
	}
	return rec
}

func firstOf(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
