// Package snapshot keeps an offline HTML copy of every bookmarked page when
// "always available offline" is enabled.
//
// The archive is a notify view: each published list is reconciled against
// the snapshots directory on a background worker, fetching pages that have no
// copy yet and deleting copies whose bookmark is gone.
package snapshot

import (
	"context"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"SetScript/internal/bookmarks"
	"SetScript/internal/jsonfile"
	"SetScript/internal/logger"
)

const (
	DirName = "snapshots"

	maxPageBytes = 10 << 20
	retryAfter   = 10 * time.Minute
)

type Options struct {
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client // optional, built from Timeout when nil
	Logger    logger.Logger
}

type Archive struct {
	dir       string
	client    *http.Client
	userAgent string
	log       logger.Logger

	queue  chan []bookmarks.Record
	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	failedAt map[string]time.Time
}

// New creates an archive rooted at <dataDir>/snapshots.
func New(dataDir string, opts Options) *Archive {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Archive{
		dir:       filepath.Join(dataDir, DirName),
		client:    client,
		userAgent: opts.UserAgent,
		log:       log,
		queue:     make(chan []bookmarks.Record, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		failedAt:  make(map[string]time.Time),
	}
}

// Path returns the snapshot file for a bookmark id, if one exists.
func (a *Archive) Path(id string) (string, bool) {
	p, ok := a.file(id)
	if !ok {
		return "", false
	}
	if st, err := os.Stat(p); err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

func (a *Archive) file(id string) (string, bool) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", false
	}
	return filepath.Join(a.dir, id+".html"), true
}

// Deliver queues the list for reconciliation without blocking the caller.
// Only the latest list matters, so an unprocessed older one is replaced.
func (a *Archive) Deliver(list []bookmarks.Record) error {
	for {
		select {
		case a.queue <- list:
			return nil
		default:
		}
		select {
		case <-a.queue:
		default:
		}
	}
}

func (a *Archive) Start() {
	go a.loop()
}

func (a *Archive) Stop() {
	select {
	case <-a.stopCh:
		return
	default:
		close(a.stopCh)
	}
	<-a.doneCh
}

func (a *Archive) loop() {
	defer close(a.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-a.stopCh:
			return
		case list := <-a.queue:
			if err := a.Sync(ctx, list); err != nil && ctx.Err() == nil {
				a.log.Warn("offline snapshot sync failed", logger.Error(err))
			}
		}
	}
}

// Sync captures every bookmark missing a snapshot and removes snapshots of
// deleted bookmarks. A page that fails to download is retried on a later
// sync, not immediately.
func (a *Archive) Sync(ctx context.Context, list []bookmarks.Record) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", jsonfile.ErrStorage, a.dir, err)
	}

	keep := make(map[string]struct{}, len(list))
	for _, rec := range list {
		keep[rec.ID] = struct{}{}
		if _, ok := a.Path(rec.ID); ok || !a.due(rec.ID) {
			continue
		}
		if err := a.Capture(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.markFailed(rec.ID)
			a.log.Warn("offline snapshot failed",
				logger.String("id", rec.ID),
				logger.String("url", rec.URL),
				logger.Error(err))
		}
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return fmt.Errorf("%w: list %s: %w", jsonfile.ErrStorage, a.dir, err)
	}
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".html")
		if !ok || e.IsDir() {
			continue
		}
		if _, live := keep[id]; live {
			continue
		}
		if err := jsonfile.Remove(filepath.Join(a.dir, e.Name())); err != nil {
			a.log.Warn("stale snapshot cleanup failed", logger.String("id", id), logger.Error(err))
		}
	}
	return nil
}

func (a *Archive) due(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, failed := a.failedAt[id]
	return !failed || time.Since(t) >= retryAfter
}

func (a *Archive) markFailed(id string) {
	a.mu.Lock()
	a.failedAt[id] = time.Now()
	a.mu.Unlock()
}

// Capture downloads rec.URL and stores a script-free copy of it.
func (a *Archive) Capture(ctx context.Context, rec bookmarks.Record) error {
	p, ok := a.file(rec.ID)
	if !ok {
		return fmt.Errorf("invalid bookmark id %q", rec.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		return err
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); ct != "" && ct != "text/html" && ct != "application/xhtml+xml" {
		return fmt.Errorf("not an HTML page (%s)", ct)
	}

	page, err := rewrite(io.LimitReader(resp.Body, maxPageBytes), resp.Request.URL.String(), rec)
	if err != nil {
		return err
	}

	if err := jsonfile.WriteFile(p, []byte(page)); err != nil {
		return err
	}
	a.log.Info("offline snapshot saved", logger.String("id", rec.ID), logger.Int("bytes", len(page)))
	return nil
}

// rewrite strips active content and pins relative links to the original
// location so the copy renders without the network for text and markup.
func rewrite(r io.Reader, finalURL string, rec bookmarks.Record) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, noscript, iframe, object, embed").Remove()
	doc.Find("base").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		var handlers []string
		for _, attr := range s.Nodes[0].Attr {
			if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
				handlers = append(handlers, attr.Key)
			}
		}
		for _, key := range handlers {
			s.RemoveAttr(key)
		}
	})

	head := doc.Find("head")
	if head.Length() == 0 {
		doc.Find("html").PrependHtml("<head></head>")
		head = doc.Find("head")
	}
	head.PrependHtml(fmt.Sprintf(
		`<base href="%s"><meta name="setscript-snapshot" content="%s">`,
		html.EscapeString(finalURL),
		html.EscapeString(time.Now().UTC().Format(time.RFC3339)),
	))
	if doc.Find("title").Length() == 0 {
		head.AppendHtml("<title>" + html.EscapeString(rec.Name) + "</title>")
	}

	return doc.Html()
}
