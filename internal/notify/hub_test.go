package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"SetScript/internal/bookmarks"
)

func TestHubDeliversSameSnapshotToAllViews(t *testing.T) {
	h := NewHub(nil)

	var got [][]bookmarks.Record
	for i := 0; i < 3; i++ {
		h.Subscribe("view", ViewFunc(func(list []bookmarks.Record) error {
			got = append(got, list)
			return nil
		}))
	}

	list := []bookmarks.Record{{ID: "a", Name: "A", URL: "https://a.example"}}
	h.Notify(1, list)

	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	for _, l := range got {
		if len(l) != 1 || l[0].ID != "a" {
			t.Fatalf("unexpected snapshot %v", l)
		}
	}
}

func TestHubDetachesClosedViews(t *testing.T) {
	h := NewHub(nil)

	closedCalls, okCalls := 0, 0
	h.Subscribe("closed", ViewFunc(func([]bookmarks.Record) error {
		closedCalls++
		return ErrViewClosed
	}))
	h.Subscribe("failing", ViewFunc(func([]bookmarks.Record) error {
		return errors.New("boom")
	}))
	h.Subscribe("ok", ViewFunc(func([]bookmarks.Record) error {
		okCalls++
		return nil
	}))

	h.Notify(1, nil)
	h.Notify(2, nil)

	if closedCalls != 1 {
		t.Fatalf("closed view should be skipped after detaching, got %d calls", closedCalls)
	}
	if okCalls != 2 {
		t.Fatalf("healthy view should receive every snapshot, got %d", okCalls)
	}
	if h.Len() != 2 {
		t.Fatalf("expected failing view to stay attached, Len=%d", h.Len())
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	calls := 0
	unsub := h.Subscribe("v", ViewFunc(func([]bookmarks.Record) error {
		calls++
		return nil
	}))
	unsub()
	unsub()
	h.Notify(1, nil)
	if calls != 0 || h.Len() != 0 {
		t.Fatalf("unsubscribed view still attached: calls=%d len=%d", calls, h.Len())
	}
}

func TestHubAsStoreNotifier(t *testing.T) {
	h := NewHub(nil)
	var last []bookmarks.Record
	h.Subscribe("v", ViewFunc(func(list []bookmarks.Record) error {
		last = list
		return nil
	}))

	s := bookmarks.New(bookmarks.Options{Dir: t.TempDir(), Notifier: h})
	rec, err := s.Create(context.Background(), bookmarks.CreateInput{Name: "Docs", URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(last) != 1 || last[0].ID != rec.ID {
		t.Fatalf("view did not receive the refreshed list: %v", last)
	}
}

func TestHubDropsStaleGenerations(t *testing.T) {
	h := NewHub(nil)
	var got []string
	h.Subscribe("v", ViewFunc(func(list []bookmarks.Record) error {
		got = append(got, list[0].ID)
		return nil
	}))

	h.Notify(2, []bookmarks.Record{{ID: "new"}})
	h.Notify(1, []bookmarks.Record{{ID: "old"}})
	h.Notify(2, []bookmarks.Record{{ID: "again"}})
	h.Notify(3, []bookmarks.Record{{ID: "newer"}})

	if strings.Join(got, ",") != "new,newer" {
		t.Fatalf("deliveries = %v, want [new newer]", got)
	}
}

func TestHubCoalescesWhileViewIsBusy(t *testing.T) {
	h := NewHub(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var (
		mu  sync.Mutex
		got []string
	)
	h.Subscribe("slow", ViewFunc(func(list []bookmarks.Record) error {
		mu.Lock()
		got = append(got, list[0].ID)
		first := len(got) == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		return nil
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Notify(1, []bookmarks.Record{{ID: "one"}})
	}()
	<-entered

	// Both return at once: the busy drainer picks up the newest.
	h.Notify(2, []bookmarks.Record{{ID: "two"}})
	h.Notify(3, []bookmarks.Record{{ID: "three"}})
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(got, ",") != "one,three" {
		t.Fatalf("deliveries = %v, want [one three]", got)
	}
}

func TestHubViewMayMutateStore(t *testing.T) {
	h := NewHub(nil)
	s := bookmarks.New(bookmarks.Options{Dir: t.TempDir(), Notifier: h})

	var sizes []int
	h.Subscribe("v", ViewFunc(func(list []bookmarks.Record) error {
		sizes = append(sizes, len(list))
		if len(list) == 1 {
			_, err := s.Create(context.Background(), bookmarks.CreateInput{Name: "Second", URL: "https://two.example"})
			return err
		}
		return nil
	}))

	if _, err := s.Create(context.Background(), bookmarks.CreateInput{Name: "First", URL: "https://one.example"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(sizes) != 2 || sizes[1] != 2 {
		t.Fatalf("nested mutation not delivered after the outer one: %v", sizes)
	}
}

// Two mutations race: A's fan-out stalls until B has committed and been
// delivered. The views must end on B's list, not A's older one.
func TestConcurrentMutationsEndOnNewestList(t *testing.T) {
	h := NewHub(nil)
	var (
		mu   sync.Mutex
		last []bookmarks.Record
	)
	h.Subscribe("window", ViewFunc(func(list []bookmarks.Record) error {
		mu.Lock()
		last = list
		mu.Unlock()
		return nil
	}))

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	stall := bookmarks.NotifierFunc(func(gen uint64, list []bookmarks.Record) {
		hold := false
		once.Do(func() { hold = true })
		if hold {
			close(blocked)
			<-release
		}
		h.Notify(gen, list)
	})
	s := bookmarks.New(bookmarks.Options{Dir: t.TempDir(), Notifier: stall})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Create(context.Background(), bookmarks.CreateInput{Name: "A", URL: "https://a.example"}); err != nil {
			t.Errorf("Create(A) error = %v", err)
		}
	}()
	<-blocked
	if _, err := s.Create(context.Background(), bookmarks.CreateInput{Name: "B", URL: "https://b.example"}); err != nil {
		t.Fatalf("Create(B) error = %v", err)
	}
	close(release)
	<-done

	stored, _ := s.List(context.Background())
	mu.Lock()
	defer mu.Unlock()
	if len(stored) != 2 || len(last) != len(stored) {
		t.Fatalf("store has %d records; last snapshot delivered to views has %d", len(stored), len(last))
	}
}
