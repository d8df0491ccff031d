// Package mirror copies the bookmark list into Redis so other tools on the
// network (launchers, dashboards) can read it without touching the data
// directory.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"SetScript/internal/bookmarks"
	"SetScript/internal/logger"
)

const syncTimeout = 5 * time.Second

// Mirror is a notify view. Deliver never blocks; a background worker
// writes the most recent list and drops anything older still queued.
type Mirror struct {
	client *redis.Client
	prefix string
	log    logger.Logger

	queue  chan []bookmarks.Record
	stopCh chan struct{}
	doneCh chan struct{}
}

func New(client *redis.Client, prefix string, log logger.Logger) *Mirror {
	if prefix == "" {
		prefix = "setscript"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Mirror{
		client: client,
		prefix: prefix,
		log:    log,
		queue:  make(chan []bookmarks.Record, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// RecordKey is where a single bookmark's JSON lives.
func (m *Mirror) RecordKey(id string) string { return m.prefix + ":bookmark:" + id }

// ListKey holds bookmark ids in display order.
func (m *Mirror) ListKey() string { return m.prefix + ":bookmarks" }

func (m *Mirror) Deliver(list []bookmarks.Record) error {
	for {
		select {
		case m.queue <- list:
			return nil
		default:
		}
		select {
		case <-m.queue:
		default:
		}
	}
}

func (m *Mirror) Start() {
	go m.loop()
}

// Stop waits for an in-flight write and closes the client.
func (m *Mirror) Stop() {
	select {
	case <-m.stopCh:
		return
	default:
		close(m.stopCh)
	}
	<-m.doneCh
	if err := m.client.Close(); err != nil {
		m.log.Warn("closing redis client failed", logger.Error(err))
	}
}

func (m *Mirror) loop() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		case list := <-m.queue:
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			if err := m.Sync(ctx, list); err != nil {
				m.log.Warn("redis mirror sync failed", logger.Error(err))
			} else {
				m.log.Debug("redis mirror synced", logger.Int("count", len(list)))
			}
			cancel()
		}
	}
}

// Sync replaces the mirrored state with list in one transaction.
func (m *Mirror) Sync(ctx context.Context, list []bookmarks.Record) error {
	previous, err := m.client.LRange(ctx, m.ListKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read mirrored ids: %w", err)
	}

	live := make(map[string]struct{}, len(list))
	ids := make([]any, 0, len(list))
	pipe := m.client.TxPipeline()
	for _, rec := range list {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal bookmark %s: %w", rec.ID, err)
		}
		pipe.Set(ctx, m.RecordKey(rec.ID), data, 0)
		live[rec.ID] = struct{}{}
		ids = append(ids, rec.ID)
	}
	for _, id := range previous {
		if _, ok := live[id]; !ok {
			pipe.Del(ctx, m.RecordKey(id))
		}
	}
	pipe.Del(ctx, m.ListKey())
	if len(ids) > 0 {
		pipe.RPush(ctx, m.ListKey(), ids...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}
	return nil
}
