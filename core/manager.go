package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Manager is the façade request handlers talk to. Credit operations are
// synchronous, in-memory and never touch the network; durability is the
// persister's job.
type Manager struct {
	cache     *Cache
	store     RemoteStore
	persister *Persister
	limit     int
	now       func() time.Time
}

type Config struct {
	Store RemoteStore
	// Limit is the number of credits per window; DefaultLimit when zero.
	Limit int
	// Now is injectable for tests.
	Now             func() time.Time
	PersistInterval time.Duration
	PublishTimeout  time.Duration
	ScratchDir      string
}

func newManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must be non-negative")
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	cache := NewCache(nowFn)
	persister := NewPersister(cache, cfg.Store, PersisterConfig{
		Interval:   cfg.PersistInterval,
		Timeout:    cfg.PublishTimeout,
		ScratchDir: cfg.ScratchDir,
	})
	return &Manager{
		cache:     cache,
		store:     cfg.Store,
		persister: persister,
		limit:     cfg.Limit,
		now:       nowFn,
	}, nil
}

// LoadInitial populates the cache from the remote store. Every failure
// mode degrades to an empty cache: a missing document is a first run,
// a corrupt one is logged loudly since prior records may be lost, and a
// transport failure must not hold up startup.
func (m *Manager) LoadInitial(ctx context.Context) {
	records, err := m.store.Load(ctx)
	switch {
	case err == nil:
		m.cache.Populate(records)
		slog.Info("loaded usage records", "records", len(records))
	case errors.Is(err, ErrDocumentNotFound):
		slog.Info("usage document not found, starting with an empty cache")
	default:
		slog.Error("failed to load usage document, starting with an empty cache", "error", err)
	}
}

// Run drives the background persistence loop until ctx is cancelled.
// Call it in its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	m.persister.Run(ctx)
}

// Flush forces one publish cycle, mainly for tests and tooling.
func (m *Manager) Flush(ctx context.Context) error {
	return m.persister.Flush(ctx)
}

// CheckCredit reports the remaining credits for id without consuming
// one. It can still mutate state: an expired window is reset on touch.
func (m *Manager) CheckCredit(id string) (CreditStatus, error) {
	if id == "" {
		return CreditStatus{}, ErrEmptyIdentifier
	}

	rec, ok := m.cache.Get(id)
	if !ok {
		// Unknown clients have full credits and a window that would
		// start now; nothing is stored until they consume one.
		return CreditStatus{
			CreditsRemaining: m.limit,
			ResetTimestamp:   m.now().Add(Window).Unix(),
		}, nil
	}

	remaining := m.limit - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return CreditStatus{
		CreditsRemaining: remaining,
		LimitReached:     remaining == 0,
		ResetTimestamp:   rec.ResetAt(),
	}, nil
}

// UseCredit consumes one credit for id. The check-then-increment runs
// inside the cache lock, so concurrent calls for the same id can never
// push the count past the limit. A denied attempt mutates nothing and
// does not dirty the cache.
func (m *Manager) UseCredit(id string) (UseResult, error) {
	if id == "" {
		return UseResult{}, ErrEmptyIdentifier
	}

	denied := false
	rec := m.cache.Upsert(id, func(r *UsageRecord) {
		if r.Count >= m.limit {
			denied = true
			return
		}
		r.Count++
	})

	if denied {
		slog.Debug("credit use denied, limit reached", "id", id)
		return UseResult{
			Status:         StatusLimitReached,
			ResetTimestamp: rec.ResetAt(),
		}, nil
	}
	return UseResult{
		Status:           StatusSuccess,
		CreditsRemaining: m.limit - rec.Count,
	}, nil
}

// Snapshot exposes a copy of the current records, for the admin surface.
func (m *Manager) Snapshot() []UsageRecord {
	return m.cache.Snapshot()
}

// Limit returns the configured per-window credit limit.
func (m *Manager) Limit() int {
	return m.limit
}
