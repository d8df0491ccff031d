package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"SetScript/internal/bookmarks"
)

const EventSavedPages = "saved-pages"

// SSE is a View that streams the collection to browser clients as
// server-sent events. Every frame is a whole snapshot, so a stream only ever
// holds the newest one: a slow reader skips straight to the current list.
//
// Frames are numbered. A reconnecting EventSource sends Last-Event-ID; when
// it already has the current frame it is not sent again.
type SSE struct {
	mu      sync.Mutex
	streams map[*stream]struct{}
	seq     uint64
	current []byte

	// Initial, when set, supplies the list for the first client to connect
	// before any snapshot has been delivered.
	Initial func() ([]bookmarks.Record, error)

	keepAlive time.Duration
}

// stream is one connected client's mailbox.
type stream struct {
	mu     sync.Mutex
	frame  []byte
	closed bool
	wake   chan struct{}
}

func newStream() *stream {
	return &stream{wake: make(chan struct{}, 1)}
}

// offer replaces whatever frame the client has not written yet.
func (s *stream) offer(frame []byte) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
	s.signal()
}

func (s *stream) take() (frame []byte, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame, s.frame = s.frame, nil
	return frame, s.closed
}

func (s *stream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func NewSSE() *SSE {
	return &SSE{
		streams:   make(map[*stream]struct{}),
		keepAlive: 20 * time.Second,
	}
}

func (h *SSE) Deliver(list []bookmarks.Record) error {
	return h.publish(list, false)
}

// publish numbers list as the next frame and hands it to every stream. With
// ifEmpty it does nothing once any frame exists, so a list read for a new
// client never replaces one the hub delivered meanwhile.
func (h *SSE) publish(list []bookmarks.Record, ifEmpty bool) error {
	if list == nil {
		list = []bookmarks.Record{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if ifEmpty && h.current != nil {
		return nil
	}
	msg, err := frame(h.seq+1, EventSavedPages, list)
	if err != nil {
		return err
	}
	h.seq++
	h.current = msg
	for s := range h.streams {
		s.offer(msg)
	}
	return nil
}

func (h *SSE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if h.Initial != nil && !h.hasFrame() {
		if list, err := h.Initial(); err == nil {
			_ = h.publish(list, true)
		}
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")

	s := h.attach(r.Header.Get("Last-Event-ID"))
	defer h.detach(s)

	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case <-s.wake:
			msg, closed := s.take()
			if msg != nil {
				_, _ = w.Write(msg)
				flusher.Flush()
			}
			if closed {
				return
			}
		}
	}
}

// Clients is the number of connected streams.
func (h *SSE) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (h *SSE) hasFrame() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// attach registers a stream and queues the current frame unless the client
// reported it as its last seen event.
func (h *SSE) attach(lastEventID string) *stream {
	s := newStream()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[s] = struct{}{}
	if h.current != nil && lastEventID != strconv.FormatUint(h.seq, 10) {
		s.offer(h.current)
	}
	return s
}

func (h *SSE) detach(s *stream) {
	h.mu.Lock()
	delete(h.streams, s)
	h.mu.Unlock()
	s.close()
}

// CloseAll ends every stream; used on shutdown.
func (h *SSE) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.streams {
		s.close()
		delete(h.streams, s)
	}
}

func frame(id uint64, event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, event, data)), nil
}
