// Package watch notices when bookmarks.json is replaced by another process
// (the command line, a sync tool) and republishes the list so open windows
// catch up.
package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"SetScript/internal/logger"
)

const defaultDebounce = 250 * time.Millisecond

// Refresher re-reads the collection and publishes it when it changed since
// the store last published. *bookmarks.Store implements it; publishing
// through the store keeps reloads in the same generation order as its own
// writes.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type Watcher struct {
	watcher  *fsnotify.Watcher
	file     string
	store    Refresher
	log      logger.Logger
	debounce time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New watches the directory holding file. Watching the directory rather than
// the file survives the temp-file-and-rename writes the store performs.
func New(file string, store Refresher, log logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		watcher:  w,
		file:     filepath.Clean(file),
		store:    store,
		log:      log,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.file)); err != nil {
		_ = w.watcher.Close()
		return err
	}
	go w.loop()
	return nil
}

func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	_ = w.watcher.Close()
	<-w.doneCh
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	pending := false
	resetTimer := func() {
		pending = true
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				_ = timer.Stop()
			}
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("bookmark watcher error", logger.Error(err))
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			resetTimer()
		case <-func() <-chan time.Time {
			if timer == nil {
				return nil
			}
			return timer.C
		}():
			if pending {
				pending = false
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed, err := w.store.Refresh(ctx)
	if err != nil {
		// A half-written file from a foreign writer; the next event retries.
		w.log.Warn("reload after external change failed", logger.Error(err))
		return
	}
	if changed {
		w.log.Info("bookmarks changed on disk")
	}
}
