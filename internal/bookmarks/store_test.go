package bookmarks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// pngBytes is enough of a PNG for content sniffing.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type recorder struct {
	gens  []uint64
	calls [][]Record
}

func (r *recorder) Notify(gen uint64, list []Record) {
	r.gens = append(r.gens, gen)
	r.calls = append(r.calls, list)
}

func newTestStore(t *testing.T, dir string, n Notifier) *Store {
	t.Helper()
	seq := 0
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return New(Options{
		Dir:      dir,
		Notifier: n,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	})
}

func mustCreate(t *testing.T, s *Store, in CreateInput) Record {
	t.Helper()
	rec, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%+v) error = %v", in, err)
	}
	return rec
}

func TestCreateThenList(t *testing.T) {
	dir := t.TempDir()
	n := &recorder{}
	s := newTestStore(t, dir, n)

	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and createdAt, got %+v", rec)
	}
	if rec.Icon != DefaultIcon {
		t.Fatalf("expected default icon, got %q", rec.Icon)
	}
	if !rec.UpdatedAt.IsZero() {
		t.Fatalf("updatedAt must be unset on create")
	}

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "Docs" || list[0].URL != "https://example.com" {
		t.Fatalf("unexpected list: %+v", list)
	}
	if len(n.calls) != 1 || len(n.calls[0]) != 1 {
		t.Fatalf("expected one notification with one record, got %v", n.calls)
	}

	b, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(b), "updatedAt") {
		t.Fatalf("updatedAt should be omitted before the first edit: %s", b)
	}
}

func TestCreatePrependsAndIDsAreUnique(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		rec := mustCreate(t, s, CreateInput{Name: fmt.Sprintf("n%d", i), URL: fmt.Sprintf("https://example.com/%d", i)})
		if seen[rec.ID] {
			t.Fatalf("duplicate id %q", rec.ID)
		}
		seen[rec.ID] = true

		list, _ := s.List(context.Background())
		if len(list) != i+1 {
			t.Fatalf("expected %d records, got %d", i+1, len(list))
		}
		if list[0].ID != rec.ID {
			t.Fatalf("newest record should be first, got %q", list[0].ID)
		}
	}
}

func TestCreateRetriesCollidingID(t *testing.T) {
	ids := []string{"same", "same", "other"}
	s := New(Options{Dir: t.TempDir(), NewID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}})

	a := mustCreate(t, s, CreateInput{Name: "a", URL: "https://a.example"})
	b := mustCreate(t, s, CreateInput{Name: "b", URL: "https://b.example"})
	if a.ID != "same" || b.ID != "other" {
		t.Fatalf("ids = %q, %q", a.ID, b.ID)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"ftp scheme", CreateInput{Name: "x", URL: "ftp://x"}},
		{"missing url", CreateInput{Name: "x"}},
		{"relative url", CreateInput{Name: "x", URL: "/docs"}},
		{"no host", CreateInput{Name: "x", URL: "https://"}},
		{"javascript", CreateInput{Name: "x", URL: "javascript:alert(1)"}},
		{"blank name", CreateInput{Name: "  ", URL: "https://example.com"}},
		{"bad base64 icon", CreateInput{Name: "x", URL: "https://example.com", IconPayload: "data:image/png;base64,@@@"}},
		{"non image icon", CreateInput{Name: "x", URL: "https://example.com", IconPayload: base64.StdEncoding.EncodeToString([]byte("hello world"))}},
		{"data url without base64", CreateInput{Name: "x", URL: "https://example.com", IconPayload: "data:image/png,abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), tt.in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("rejected creates must not persist, got %d records", len(list))
	}
}

func TestCreateStoresIcon(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil)

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com", IconPayload: payload})

	if rec.Icon != "icons/icon_"+rec.ID+".png" {
		t.Fatalf("unexpected icon ref %q", rec.Icon)
	}
	p, ok := s.IconPath(rec.Icon)
	if !ok {
		t.Fatalf("icon file not found for %q", rec.Icon)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != string(pngBytes) {
		t.Fatalf("icon content mismatch, err=%v", err)
	}
}

func TestGetByID(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})

	got, err := s.Get(context.Background(), rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateOnlyTouchesEditableFields(t *testing.T) {
	n := &recorder{}
	s := newTestStore(t, t.TempDir(), n)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com", Description: "d1"})

	name := "Docs2"
	got, err := s.Update(context.Background(), rec.ID, UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != "Docs2" || got.Description != "d1" {
		t.Fatalf("unexpected merge result %+v", got)
	}
	if got.ID != rec.ID || got.URL != rec.URL || !got.CreatedAt.Equal(rec.CreatedAt) || got.Icon != rec.Icon {
		t.Fatalf("immutable fields changed: before=%+v after=%+v", rec, got)
	}
	if got.UpdatedAt.IsZero() || !got.UpdatedAt.After(rec.CreatedAt) {
		t.Fatalf("updatedAt not stamped: %+v", got)
	}
	if len(n.calls) != 2 {
		t.Fatalf("expected notifications for create and update, got %d", len(n.calls))
	}

	desc := ""
	got, err = s.Update(context.Background(), rec.ID, UpdateInput{Description: &desc})
	if err != nil || got.Description != "" || got.Name != "Docs2" {
		t.Fatalf("clearing description: %+v, %v", got, err)
	}
}

func TestUpdateErrors(t *testing.T) {
	s := newTestStore(t, t.TempDir(), nil)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})

	name := "Docs2"
	if _, err := s.Update(context.Background(), "missing", UpdateInput{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	blank := " "
	if _, err := s.Update(context.Background(), rec.ID, UpdateInput{Name: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	n := &recorder{}
	s := newTestStore(t, dir, n)

	payload := base64.StdEncoding.EncodeToString(pngBytes)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com", IconPayload: payload})
	iconFile, ok := s.IconPath(rec.Icon)
	if !ok {
		t.Fatalf("icon not written")
	}

	if err := s.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", list)
	}
	if _, err := os.Stat(iconFile); !os.IsNotExist(err) {
		t.Fatalf("icon file should be removed, stat err=%v", err)
	}
	last := n.calls[len(n.calls)-1]
	if len(last) != 0 {
		t.Fatalf("delete should notify with the refreshed (empty) list, got %v", last)
	}
}

func TestDeleteMissingLeavesCollectionUnchanged(t *testing.T) {
	n := &recorder{}
	s := newTestStore(t, t.TempDir(), n)
	mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})

	before, _ := os.ReadFile(s.Path())
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	after, _ := os.ReadFile(s.Path())
	if string(before) != string(after) {
		t.Fatalf("file changed after failed delete")
	}
	if len(n.calls) != 1 {
		t.Fatalf("failed delete must not notify, got %d calls", len(n.calls))
	}
}

func TestDeleteIgnoresIconCleanupFailure(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil)
	rec := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com", IconPayload: base64.StdEncoding.EncodeToString(pngBytes)})

	// Replace the icon file with a non-empty directory so removal fails.
	p, _ := s.IconPath(rec.Icon)
	_ = os.Remove(p)
	_ = os.MkdirAll(filepath.Join(p, "child"), 0o755)

	if err := s.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete() must succeed when icon cleanup fails, got %v", err)
	}
	list, _ := s.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("record not deleted")
	}
}

func TestRoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir, nil)
	ctx := context.Background()

	a := mustCreate(t, s, CreateInput{Name: "A", URL: "https://a.example"})
	b := mustCreate(t, s, CreateInput{Name: "B", URL: "https://b.example"})
	c := mustCreate(t, s, CreateInput{Name: "C", URL: "https://c.example"})
	name := "B2"
	if _, err := s.Update(ctx, b.ID, UpdateInput{Name: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	reopened := New(Options{Dir: dir})
	list, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != b.ID || list[1].Name != "B2" {
		t.Fatalf("unexpected state after restart: %+v", list)
	}
	if !list[1].CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("createdAt not preserved: %v vs %v", list[1].CreatedAt, b.CreatedAt)
	}
}

func TestListMissingEmptyAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{Dir: dir})

	list, err := s.List(context.Background())
	if err != nil || len(list) != 0 || list == nil {
		t.Fatalf("missing file: %v, %v", list, err)
	}

	_ = os.WriteFile(s.Path(), []byte(""), 0o644)
	list, err = s.List(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("empty file: %v, %v", list, err)
	}

	for _, body := range []string{"{oops", `{"a":1}`, `[1,2]`, `[{"name":"no id"}]`} {
		_ = os.WriteFile(s.Path(), []byte(body), 0o644)
		if _, err := s.List(context.Background()); !errors.Is(err, ErrCorruptStore) {
			t.Fatalf("body %q: expected ErrCorruptStore, got %v", body, err)
		}
	}

	// Mutations refuse to overwrite a corrupt file.
	_ = os.WriteFile(s.Path(), []byte("{oops"), 0o644)
	if _, err := s.Create(context.Background(), CreateInput{Name: "x", URL: "https://x.example"}); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore from Create, got %v", err)
	}
	b, _ := os.ReadFile(s.Path())
	if string(b) != "{oops" {
		t.Fatalf("corrupt file must be left untouched, got %q", b)
	}
}

func TestEnsureCreatesEmptyCollection(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "SetScript")
	s := New(Options{Dir: dir})
	if err := s.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil || strings.TrimSpace(string(b)) != "[]" {
		t.Fatalf("expected [] file, got %q, %v", b, err)
	}

	mustCreate(t, s, CreateInput{Name: "x", URL: "https://x.example"})
	if err := s.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	list, _ := s.List(context.Background())
	if len(list) != 1 {
		t.Fatalf("Ensure must not reset an existing collection")
	}
}

func TestCanceledContext(t *testing.T) {
	s := New(Options{Dir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, CreateInput{Name: "x", URL: "https://x.example"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestImport(t *testing.T) {
	n := &recorder{}
	s := newTestStore(t, t.TempDir(), n)
	existing := mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})

	res, err := s.Import(context.Background(), []Record{
		{Name: "Dup", URL: "https://example.com"},
		{Name: "Go", URL: "https://go.dev"},
		{Name: "Go again", URL: "https://go.dev"},
		{Name: "Bad", URL: "ftp://nope"},
		{ID: existing.ID, Name: "Clashing id", URL: "https://pkg.go.dev"},
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Added != 2 || res.Skipped != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	list, _ := s.List(context.Background())
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	ids := map[string]bool{}
	for _, r := range list {
		if ids[r.ID] {
			t.Fatalf("duplicate id after import: %q", r.ID)
		}
		ids[r.ID] = true
		if r.Icon == "" || r.CreatedAt.IsZero() {
			t.Fatalf("import did not fill defaults: %+v", r)
		}
	}
	if len(n.calls) != 2 {
		t.Fatalf("import should notify once, got %d calls total", len(n.calls))
	}
}

func TestCreateWriteFailureRemovesIcon(t *testing.T) {
	dir := t.TempDir()
	n := &recorder{}
	s := newTestStore(t, dir, n)
	if err := s.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	s.write = func(string, any) error {
		return fmt.Errorf("%w: disk full", ErrStorage)
	}

	payload := base64.StdEncoding.EncodeToString(pngBytes)
	_, err := s.Create(context.Background(), CreateInput{Name: "Docs", URL: "https://example.com", IconPayload: payload})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, IconDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("read icons dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("icon left behind after failed write: %v", entries[0].Name())
	}
	if list, _ := s.List(context.Background()); len(list) != 0 {
		t.Fatalf("collection changed by failed create: %+v", list)
	}
	if len(n.calls) != 0 {
		t.Fatalf("failed create must not notify, got %d calls", len(n.calls))
	}
}

func TestGenerationsFollowCommitOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		gens    = map[int]uint64{}
		blocked = make(chan struct{})
		release = make(chan struct{})
		first   = true
	)
	s := newTestStore(t, t.TempDir(), NotifierFunc(func(gen uint64, list []Record) {
		mu.Lock()
		gens[len(list)] = gen
		hold := first
		first = false
		mu.Unlock()
		if hold {
			close(blocked)
			<-release
		}
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Create(context.Background(), CreateInput{Name: "A", URL: "https://a.example"}); err != nil {
			t.Errorf("Create(A) error = %v", err)
		}
	}()
	<-blocked
	mustCreate(t, s, CreateInput{Name: "B", URL: "https://b.example"})
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if gens[1] == 0 || gens[2] <= gens[1] {
		t.Fatalf("later commit must carry a newer generation, got %v", gens)
	}
}

func TestRefreshPublishesOnlyForeignChanges(t *testing.T) {
	dir := t.TempDir()
	n := &recorder{}
	s := newTestStore(t, dir, n)
	mustCreate(t, s, CreateInput{Name: "Docs", URL: "https://example.com"})

	published, err := s.Refresh(context.Background())
	if err != nil || published {
		t.Fatalf("Refresh() after own write = %v, %v; want false, nil", published, err)
	}

	other := New(Options{Dir: dir})
	if _, err := other.Create(context.Background(), CreateInput{Name: "CLI", URL: "https://cli.example"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	published, err = s.Refresh(context.Background())
	if err != nil || !published {
		t.Fatalf("Refresh() after foreign write = %v, %v; want true, nil", published, err)
	}
	if len(n.calls) != 2 || len(n.calls[1]) != 2 || n.gens[1] <= n.gens[0] {
		t.Fatalf("unexpected notifications gens=%v calls=%v", n.gens, n.calls)
	}

	if err := s.Republish(context.Background()); err != nil {
		t.Fatalf("Republish() error = %v", err)
	}
	if len(n.calls) != 3 {
		t.Fatalf("Republish should always notify, got %d calls", len(n.calls))
	}
}
