// Package client assembles the services a view layer needs: the session
// store, the authenticated API client, the job-status pipeline, and the
// notification manager. Everything is constructed once at startup and handed
// to views as dependencies; nothing here is a package-level singleton.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"foodscan/cmd/internal/httpclient"
	"foodscan/cmd/internal/ids"
	"foodscan/cmd/internal/jobstatus"
	"foodscan/cmd/internal/notify"
	"foodscan/cmd/internal/observer"
	"foodscan/cmd/internal/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ViewHooks are the callbacks the view layer plugs into the core.
type ViewHooks struct {
	Renderer notify.Renderer
	Navigate func(resultID string)
	Retry    func(key string)
	// Suppress decides whether a completed job should skip notification,
	// e.g. because its result view is already on screen.
	Suppress func(rec jobstatus.Record) bool
}

// Core is the assembled client runtime.
type Core struct {
	Log      *slog.Logger
	Session  *session.Store
	API      *httpclient.Client
	Store    jobstatus.StateStore
	Bus      jobstatus.Bus
	Jobs     *jobstatus.Publisher
	Notices  *notify.Manager
	Observer *observer.Observer

	watcher *jobstatus.PollWatcher
	pool    *pgxpool.Pool
	rdb     *redis.Client
	sender  string
}

// NewCore wires the full client from config. The returned Core owns every
// resource it opened; Close releases them in reverse order.
func NewCore(ctx context.Context, log *slog.Logger, cfg Config, hooks ViewHooks) (*Core, error) {
	if log == nil {
		log = slog.Default()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("client: invalid config: %s", errs[0])
	}

	c := &Core{
		Log:    log,
		sender: ids.MustULID(time.Now().UTC()),
	}

	sess, err := newSessionStore(log, cfg)
	if err != nil {
		return nil, err
	}
	c.Session = sess

	c.API = httpclient.New(log, httpclient.Config{
		BaseURL:     cfg.API.BaseURL,
		RefreshPath: cfg.API.RefreshPath,
		Timeout:     cfg.API.Timeout,
	}, sess, nil)

	if err := c.openJobStatus(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}

	c.Jobs = jobstatus.NewPublisher(log, c.Store, c.Bus)
	c.Notices = notify.NewManager(log, hooks.Renderer)
	c.Observer = observer.New(log, c.Store, c.watcherOrNative(), c.Bus, c.Notices, observer.Config{
		Navigate: hooks.Navigate,
		Retry:    hooks.Retry,
		Suppress: hooks.Suppress,
	})

	log.Info("client.core.ready",
		"storage", cfg.JobStatus.Storage,
		"broadcast", cfg.JobStatus.Broadcast,
		"sender", c.sender,
	)
	return c, nil
}

// Sender is this context's broadcast identity.
func (c *Core) Sender() string { return c.sender }

// Close releases every resource the core opened. Safe on a partially
// constructed core.
func (c *Core) Close() {
	if c.Observer != nil {
		c.Observer.Unmount()
	}
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
}

func newSessionStore(log *slog.Logger, cfg Config) (*session.Store, error) {
	if cfg.Session.SnapshotPath == "" {
		return session.NewStore(log, nil), nil
	}

	key, err := cfg.SessionKey()
	if err != nil {
		return nil, fmt.Errorf("client: session key: %w", err)
	}
	persist, err := session.NewFilePersister(cfg.Session.SnapshotPath, key)
	if err != nil {
		return nil, fmt.Errorf("client: session persister: %w", err)
	}

	st := session.NewStore(log, persist)
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("client: session load: %w", err)
	}
	return st, nil
}

// openJobStatus builds the durable store and the broadcast transport. The
// two are chosen independently: any storage can pair with any broadcast.
func (c *Core) openJobStatus(ctx context.Context, cfg Config) error {
	needPG := cfg.JobStatus.Storage == StoragePostgres || cfg.JobStatus.Broadcast == BroadcastPostgres
	if needPG {
		pool, err := pgxpool.New(ctx, cfg.JobStatus.DatabaseURL)
		if err != nil {
			return fmt.Errorf("client: postgres pool: %w", err)
		}
		c.pool = pool
	}

	needRedis := cfg.JobStatus.Storage == StorageRedis || cfg.JobStatus.Broadcast == BroadcastRedis
	if needRedis {
		c.rdb = redis.NewClient(&redis.Options{Addr: cfg.JobStatus.RedisAddr})
	}

	switch cfg.JobStatus.Storage {
	case StorageMemory:
		c.Store = jobstatus.NewMemoryStore()
	case StorageSQLite:
		st, err := jobstatus.OpenSQLite(cfg.JobStatus.SQLitePath)
		if err != nil {
			return fmt.Errorf("client: sqlite store: %w", err)
		}
		c.Store = st
	case StoragePostgres:
		st, err := jobstatus.NewPostgresStore(ctx, c.pool)
		if err != nil {
			return fmt.Errorf("client: postgres store: %w", err)
		}
		c.Store = st
	case StorageRedis:
		st, err := jobstatus.NewRedisStore(c.rdb)
		if err != nil {
			return fmt.Errorf("client: redis store: %w", err)
		}
		c.Store = st
	}

	// Memory storage emits change events natively; everything else is
	// observed by polling.
	if cfg.JobStatus.Storage != StorageMemory {
		c.watcher = jobstatus.NewPollWatcher(c.Log, c.Store, cfg.JobStatus.PollInterval)
	}

	switch cfg.JobStatus.Broadcast {
	case BroadcastNone:
	case BroadcastPostgres:
		bus, err := jobstatus.NewPGBus(c.Log, c.pool, c.sender)
		if err != nil {
			return fmt.Errorf("client: postgres bus: %w", err)
		}
		c.Bus = bus
	case BroadcastRedis:
		bus, err := jobstatus.NewRedisBus(c.Log, c.rdb, c.sender)
		if err != nil {
			return fmt.Errorf("client: redis bus: %w", err)
		}
		c.Bus = bus
	case BroadcastRelay:
		c.Bus = jobstatus.NewRelayBus(c.Log, cfg.JobStatus.RelayURL, c.sender)
	}

	return nil
}

func (c *Core) watcherOrNative() jobstatus.Watcher {
	if c.watcher != nil {
		return c.watcher
	}
	if w, ok := c.Store.(jobstatus.Watcher); ok {
		return w
	}
	return nil
}
