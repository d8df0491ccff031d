// Package notify fans the refreshed bookmark list out to every open view.
package notify

import (
	"errors"
	"sync"

	"SetScript/internal/bookmarks"
	"SetScript/internal/logger"
)

// ErrViewClosed tells the hub to detach a view that is gone for good.
var ErrViewClosed = errors.New("view closed")

// View receives list snapshots. Deliver must not block for long: it runs on
// the goroutine that completed the store mutation.
type View interface {
	Deliver(list []bookmarks.Record) error
}

// ViewFunc adapts a plain function to View.
type ViewFunc func(list []bookmarks.Record) error

func (f ViewFunc) Deliver(list []bookmarks.Record) error { return f(list) }

type subscription struct {
	name string
	view View
}

type snapshot struct {
	gen  uint64
	list []bookmarks.Record
}

// Hub implements bookmarks.Notifier.
//
// One caller at a time drains: it hands views the newest pending snapshot,
// then loops while another caller left a newer one behind. Views never see a
// generation older than one they already got. Deliver runs without the lock
// held, so a view may mutate the store from it.
type Hub struct {
	mu    sync.Mutex
	next  uint64
	views map[uint64]subscription
	log   logger.Logger

	delivered uint64
	pending   *snapshot
	draining  bool
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		views: make(map[uint64]subscription),
		log:   log,
	}
}

// Subscribe attaches v until the returned func is called.
func (h *Hub) Subscribe(name string, v View) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.views[id] = subscription{name: name, view: v}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.views, id)
			h.mu.Unlock()
		})
	}
}

// Len is the number of attached views.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Notify hands the same snapshot to every view. Snapshots older than the
// newest one seen are dropped. A view failing never fails the mutation that
// triggered it.
func (h *Hub) Notify(gen uint64, list []bookmarks.Record) {
	h.mu.Lock()
	if gen <= h.delivered || (h.pending != nil && gen <= h.pending.gen) {
		h.mu.Unlock()
		h.log.Debug("stale snapshot dropped", logger.Uint64("gen", gen))
		return
	}
	h.pending = &snapshot{gen: gen, list: list}
	if h.draining {
		h.mu.Unlock()
		return
	}

	h.draining = true
	for h.pending != nil {
		snap := h.pending
		h.pending = nil
		h.delivered = snap.gen
		subs := make(map[uint64]subscription, len(h.views))
		for id, s := range h.views {
			subs[id] = s
		}
		h.mu.Unlock()

		h.deliver(subs, snap.list)

		h.mu.Lock()
	}
	h.draining = false
	h.mu.Unlock()
}

func (h *Hub) deliver(subs map[uint64]subscription, list []bookmarks.Record) {
	for id, s := range subs {
		err := s.view.Deliver(list)
		switch {
		case err == nil:
		case errors.Is(err, ErrViewClosed):
			h.mu.Lock()
			delete(h.views, id)
			h.mu.Unlock()
			h.log.Debug("view detached", logger.String("view", s.name))
		default:
			h.log.Warn("view delivery failed",
				logger.String("view", s.name),
				logger.Error(err))
		}
	}
}

var _ bookmarks.Notifier = (*Hub)(nil)
