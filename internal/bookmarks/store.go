package bookmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"SetScript/internal/jsonfile"
	"SetScript/internal/logger"
)

// Store owns bookmarks.json and the icons directory under Dir.
//
// Operations are serialised by mu: Wails runs bound methods on their own
// goroutines, and every operation is a full read-modify-write of the file.
// The notifier is called after mu is released so views may call back in;
// gen, bumped under mu, lets it put snapshots from racing calls back in order.
type Store struct {
	mu sync.Mutex

	dir      string
	path     string
	log      logger.Logger
	notifier Notifier
	now      func() time.Time
	newID    func() string
	write    func(path string, v any) error

	gen       uint64
	published []byte // last snapshot handed to the notifier, encoded
}

type Options struct {
	Dir      string
	Logger   logger.Logger
	Notifier Notifier         // optional
	Now      func() time.Time // optional, defaults to time.Now
	NewID    func() string    // optional, defaults to UUIDv7
}

func New(opts Options) *Store {
	s := &Store{
		dir:      opts.Dir,
		path:     filepath.Join(opts.Dir, FileName),
		log:      opts.Logger,
		notifier: opts.Notifier,
		now:      opts.Now,
		newID:    opts.NewID,
		write:    jsonfile.Write,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newTimeOrderedID
	}
	return s
}

func newTimeOrderedID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Path is the location of bookmarks.json.
func (s *Store) Path() string { return s.path }

// Dir is the directory the store owns.
func (s *Store) Dir() string { return s.dir }

// Ensure creates the data directory and an empty collection file when none
// exists yet.
func (s *Store) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := jsonfile.ReadFile(s.path)
	if err != nil {
		return err
	}
	if b != nil {
		return nil
	}
	s.log.Info("creating bookmark store", logger.String("path", s.path))
	return jsonfile.Write(s.path, []Record{})
}

func (s *Store) readLocked() ([]Record, error) {
	b, err := jsonfile.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return decodeRecords(b, s.path)
}

func (s *Store) writeLocked(list []Record) error {
	if list == nil {
		list = []Record{}
	}
	return s.write(s.path, list)
}

// snapshotLocked copies list for the notifier and stamps it with the next
// generation.
func (s *Store) snapshotLocked(list []Record) (uint64, []Record) {
	s.gen++
	snapshot := cloneList(list)
	s.published = encodeSnapshot(snapshot)
	return s.gen, snapshot
}

func encodeSnapshot(list []Record) []byte {
	if list == nil {
		list = []Record{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return b
}

func (s *Store) notify(gen uint64, list []Record) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(gen, list)
}

// Refresh re-reads bookmarks.json and publishes it when it differs from the
// last snapshot this store published. It reports whether it published.
// The file watcher calls it after another process replaced the file.
func (s *Store) Refresh(ctx context.Context) (bool, error) {
	return s.publish(ctx, false)
}

// Republish sends the current collection to the notifier unconditionally,
// for views that attach after the last change.
func (s *Store) Republish(ctx context.Context) error {
	_, err := s.publish(ctx, true)
	return err
}

func (s *Store) publish(ctx context.Context, force bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	list, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if !force && s.published != nil && bytes.Equal(encodeSnapshot(list), s.published) {
		s.mu.Unlock()
		return false, nil
	}
	gen, snapshot := s.snapshotLocked(list)
	s.mu.Unlock()

	s.notify(gen, snapshot)
	return true, nil
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Create validates in, stores its icon, and prepends the new record.
func (s *Store) Create(ctx context.Context, in CreateInput) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rawURL, err := validateURL(in.URL)
	if err != nil {
		return Record{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Record{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	var (
		iconData []byte
		iconExt  string
	)
	if strings.TrimSpace(in.IconPayload) != "" {
		iconData, iconExt, err = decodeIconPayload(in.IconPayload)
		if err != nil {
			return Record{}, err
		}
	}

	s.mu.Lock()
	list, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}

	rec := Record{
		ID:          s.uniqueIDLocked(list),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		URL:         rawURL,
		Icon:        DefaultIcon,
		CreatedAt:   s.stamp(),
	}
	if iconData != nil {
		ref, err := s.writeIcon(rec.ID, iconData, iconExt)
		if err != nil {
			s.mu.Unlock()
			return Record{}, err
		}
		rec.Icon = ref
	}

	list = append([]Record{rec}, list...)
	if err := s.writeLocked(list); err != nil {
		if rec.HasGeneratedIcon() {
			s.removeIcon(rec.Icon)
		}
		s.mu.Unlock()
		return Record{}, err
	}
	gen, snapshot := s.snapshotLocked(list)
	s.mu.Unlock()

	s.log.Info("bookmark created",
		logger.String("id", rec.ID),
		logger.String("url", rec.URL),
		logger.Int("total", len(snapshot)))
	s.notify(gen, snapshot)
	return rec, nil
}

func (s *Store) uniqueIDLocked(list []Record) string {
	for {
		id := s.newID()
		if !containsID(list, id) {
			return id
		}
		s.log.Warn("generated bookmark id collided, retrying", logger.String("id", id))
	}
}

// List returns every record, newest first. A missing or empty file is an
// empty collection; unparsable content is ErrCorruptStore.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get finds one record by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	list, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return list[idx], nil
}

// Update changes name and/or description. URL, icon, id and createdAt are
// immutable.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var name string
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		if name == "" {
			return Record{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
	}

	s.mu.Lock()
	list, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := list[idx]
	if in.Name != nil {
		rec.Name = name
	}
	if in.Description != nil {
		rec.Description = strings.TrimSpace(*in.Description)
	}
	rec.UpdatedAt = s.stamp()
	list[idx] = rec

	if err := s.writeLocked(list); err != nil {
		s.mu.Unlock()
		return Record{}, err
	}
	gen, snapshot := s.snapshotLocked(list)
	s.mu.Unlock()

	s.log.Info("bookmark updated", logger.String("id", id))
	s.notify(gen, snapshot)
	return rec, nil
}

// Delete removes the record and, best-effort, its generated icon.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	list, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	idx := indexOf(list, id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := list[idx]
	list = append(list[:idx:idx], list[idx+1:]...)
	if err := s.writeLocked(list); err != nil {
		s.mu.Unlock()
		return err
	}
	if rec.HasGeneratedIcon() {
		s.removeIcon(rec.Icon)
	}
	gen, snapshot := s.snapshotLocked(list)
	s.mu.Unlock()

	s.log.Info("bookmark deleted",
		logger.String("id", id),
		logger.Int("total", len(snapshot)))
	s.notify(gen, snapshot)
	return nil
}

// Import adds records in one write. Records whose URL is already stored, or
// that fail validation, are skipped. Missing ids, timestamps and icons are
// filled in.
func (s *Store) Import(ctx context.Context, recs []Record) (ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return ImportResult{}, err
	}

	s.mu.Lock()
	list, err := s.readLocked()
	if err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}

	seen := make(map[string]struct{}, len(list)+len(recs))
	for _, r := range list {
		seen[r.URL] = struct{}{}
	}

	var res ImportResult
	added := make([]Record, 0, len(recs))
	for _, r := range recs {
		u, err := validateURL(r.URL)
		r.Name = strings.TrimSpace(r.Name)
		if err != nil || r.Name == "" {
			res.Skipped++
			continue
		}
		if _, dup := seen[u]; dup {
			res.Skipped++
			continue
		}
		seen[u] = struct{}{}

		r.URL = u
		if r.ID == "" || containsID(list, r.ID) || containsID(added, r.ID) {
			r.ID = s.uniqueIDLocked(append(list, added...))
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = s.stamp()
		}
		if r.Icon == "" {
			r.Icon = DefaultIcon
		}
		added = append(added, r)
	}

	if len(added) == 0 {
		s.mu.Unlock()
		return res, nil
	}

	list = append(added, list...)
	if err := s.writeLocked(list); err != nil {
		s.mu.Unlock()
		return ImportResult{}, err
	}
	res.Added = len(added)
	gen, snapshot := s.snapshotLocked(list)
	s.mu.Unlock()

	s.log.Info("bookmarks imported",
		logger.Int("added", res.Added),
		logger.Int("skipped", res.Skipped))
	s.notify(gen, snapshot)
	return res, nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed url %q", ErrInvalidInput, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url must use http or https, got %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url %q has no host", ErrInvalidInput, raw)
	}
	return raw, nil
}

func indexOf(list []Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func containsID(list []Record, id string) bool {
	return indexOf(list, id) >= 0
}
