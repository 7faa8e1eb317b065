package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	DefaultPersistInterval = 30 * time.Second
	DefaultPublishTimeout  = 20 * time.Second
)

// Persister mirrors the cache to the remote store in the background.
// Request handlers never wait on it: each cycle drains the dirty flag,
// writes the snapshot to a temporary artifact and replaces the remote
// document. Any failure re-arms the dirty flag so the next tick retries
// with the then-current state. publishMu is distinct from the cache
// lock so a slow upload never blocks credit checks, and so a scheduled
// cycle and a manual Flush never write the document concurrently.
type Persister struct {
	cache      *Cache
	store      RemoteStore
	interval   time.Duration
	timeout    time.Duration
	scratchDir string
	publishMu  sync.Mutex
}

type PersisterConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	ScratchDir string
}

func NewPersister(cache *Cache, store RemoteStore, cfg PersisterConfig) *Persister {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPersistInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPublishTimeout
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	return &Persister{
		cache:      cache,
		store:      store,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		scratchDir: cfg.ScratchDir,
	}
}

// Run ticks until ctx is cancelled. Failures are logged and retried on
// the next tick; the loop itself never stops on error.
func (p *Persister) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				slog.Error("publish cycle failed, will retry next tick", "error", err)
			}
		}
	}
}

// Flush runs one publish cycle now. It is a no-op when the cache is
// clean and returns nil.
func (p *Persister) Flush(ctx context.Context) error {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	snapshot, ok := p.cache.DrainDirty()
	if !ok {
		return nil
	}

	if err := p.publish(ctx, snapshot); err != nil {
		// Re-arm so the next cycle retries with the latest state; the
		// remote document is always overwritten whole, so retrying a
		// fresher snapshot is safe.
		p.cache.MarkDirty()
		return err
	}
	slog.Info("persisted usage snapshot", "records", len(snapshot))
	return nil
}

func (p *Persister) publish(ctx context.Context, snapshot []UsageRecord) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	document, err := EncodeDocument(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(p.scratchDir, "usage-*.json")
	if err != nil {
		return fmt.Errorf("create scratch artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return fmt.Errorf("write scratch artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close scratch artifact: %w", err)
	}

	return p.store.Publish(ctx, tmp.Name())
}
