package core

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type ManagerOptions struct {
	// Hugging Face dataset backend; used when Token and Repo are set.
	HubRepo  string
	HubFile  string
	HubToken string

	// Redis backend; used when RedisAddr is set and no Hub token is.
	RedisAddr string
	RedisKey  string

	Limit           int
	PersistInterval time.Duration
	PublishTimeout  time.Duration
	ScratchDir      string
	Now             func() time.Time
}

// NewManager builds a manager with an in-memory store, suitable for
// local development and tests.
func NewManager() (*Manager, error) {
	return NewManagerWithStore(NewMemoryStore(), ManagerOptions{})
}

// NewManagerWithOptions selects a store backend from the options and
// builds the manager. When no backend is configured the service still
// comes up, on an in-memory store that loses state on restart; that
// tradeoff is deliberate and logged as critical rather than refusing
// to start.
func NewManagerWithOptions(opts ManagerOptions) (*Manager, error) {
	var store RemoteStore

	switch {
	case opts.HubToken != "" && opts.HubRepo != "":
		hubFile := opts.HubFile
		if hubFile == "" {
			hubFile = "video_usage_data.json"
		}
		hub, err := NewHubStore(HubConfig{
			Repo:     opts.HubRepo,
			Filename: hubFile,
			Token:    opts.HubToken,
		})
		if err != nil {
			return nil, err
		}
		store = hub
	case opts.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
		store = NewRedisStore(client, opts.RedisKey)
	default:
		slog.Error("CRITICAL: no remote store configured, usage data will not survive restarts")
		store = NewMemoryStore()
	}

	return newManager(Config{
		Store:           store,
		Limit:           opts.Limit,
		Now:             opts.Now,
		PersistInterval: opts.PersistInterval,
		PublishTimeout:  opts.PublishTimeout,
		ScratchDir:      opts.ScratchDir,
	})
}

// NewManagerWithStore wires an explicit store, for callers that build
// their own backend.
func NewManagerWithStore(store RemoteStore, opts ManagerOptions) (*Manager, error) {
	return newManager(Config{
		Store:           store,
		Limit:           opts.Limit,
		Now:             opts.Now,
		PersistInterval: opts.PersistInterval,
		PublishTimeout:  opts.PublishTimeout,
		ScratchDir:      opts.ScratchDir,
	})
}
