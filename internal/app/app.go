// Package app wires configuration, the primary database, the DAO registries,
// and the migration engine into one application handle.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/arkilian/entitydb/internal/config"
	"github.com/arkilian/entitydb/internal/dao"
	"github.com/arkilian/entitydb/internal/marshal"
	"github.com/arkilian/entitydb/internal/migration"
	"github.com/arkilian/entitydb/internal/model"
	"github.com/arkilian/entitydb/internal/observability"
	"github.com/arkilian/entitydb/internal/schema"
	"github.com/arkilian/entitydb/internal/storage"
	"github.com/arkilian/entitydb/internal/store"
)

// statsWindow bounds how long predicate usage is remembered.
const statsWindow = time.Hour

// App owns the primary database and the registries built on it.
type App struct {
	cfg   *config.Config
	stats *observability.Stats

	// Primary database, opened on first use
	once     sync.Once
	initErr  error
	db       *store.DB
	registry *dao.Registry
	shards   *dao.ShardRegistry

	mu     sync.Mutex
	closed bool
}

// New creates an App with the given configuration. No database is opened
// until a DAO is requested.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:   cfg,
		stats: observability.NewStats(statsWindow),
	}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Stats returns the statement and predicate counters shared by every handle.
func (a *App) Stats() *observability.Stats {
	return a.stats
}

func (a *App) storeOptions() store.Options {
	return store.Options{Stats: a.stats, MaxOpenConns: a.cfg.MaxOpenConns}
}

func (a *App) registryOptions() dao.RegistryOptions {
	return dao.RegistryOptions{
		StrictBinding: a.cfg.Registry.StrictBinding,
		DAO: dao.Options{
			Marshal: marshal.Options{IncludeEmptyValues: a.cfg.Marshal.IncludeEmptyValues},
			Bind: schema.BindOptions{
				AutoAddColumns: a.cfg.Schema.AutoAddColumns,
				TrackVersions:  a.cfg.Schema.TrackVersions,
			},
		},
	}
}

// open lazily opens the primary database and builds both registries.
func (a *App) open() error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return fmt.Errorf("app: closed")
	}

	a.once.Do(func() {
		db, err := store.Open(a.cfg.PrimaryPath(), a.storeOptions())
		if err != nil {
			a.initErr = fmt.Errorf("app: failed to open primary database: %w", err)
			return
		}
		a.db = db
		a.registry = dao.NewRegistry(db, a.registryOptions())
		a.shards = dao.NewShardRegistry(
			model.ActiveUserShard(a.registry, a.cfg.Sharding.Dir, a.cfg.Sharding.Pattern),
			a.registryOptions(),
			a.storeOptions(),
		)
		log.Printf("app: primary database %s opened", db.Path())
	})
	return a.initErr
}

// Users returns the user DAO bound to the primary database.
func (a *App) Users(ctx context.Context) (*model.UserDao, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	return dao.Get(ctx, a.registry, model.UserDaoType, model.NewUserDao, model.UserMapping)
}

// Photos returns the photo DAO bound to the logged-in user's shard.
func (a *App) Photos(ctx context.Context) (*model.PhotoDao, error) {
	if err := a.open(); err != nil {
		return nil, err
	}
	return dao.GetShard(ctx, a.shards, model.PhotoDaoType, model.NewPhotoDao, model.PhotoMapping)
}

// Login stores u as the only active user. When configured, cached shard
// handles are dropped so the next photo lookup opens the new user's shard.
func (a *App) Login(ctx context.Context, u *model.User) (int64, error) {
	users, err := a.Users(ctx)
	if err != nil {
		return -1, err
	}
	id, err := users.Insert(ctx, u)
	if err != nil {
		return -1, err
	}
	if a.cfg.Sharding.InvalidateOnLogin {
		if err := a.shards.Reset(); err != nil {
			log.Printf("app: [WARN] failed to release shard handles: %v", err)
		}
	}
	return id, nil
}

// ShardIDs returns the id of every user that owns a shard.
func (a *App) ShardIDs(ctx context.Context) ([]string, error) {
	users, err := a.Users(ctx)
	if err != nil {
		return nil, err
	}
	all, err := users.QueryWith(ctx, nil, dao.QueryOptions{OrderBy: `"u_id" ASC`})
	if err != nil {
		return nil, err
	}
	// A user that logged in more than once has several rows.
	seen := make(map[int32]bool, len(all))
	ids := make([]string, 0, len(all))
	for _, u := range all {
		if u.ID == nil || seen[*u.ID] {
			continue
		}
		seen[*u.ID] = true
		ids = append(ids, strconv.FormatInt(int64(*u.ID), 10))
	}
	return ids, nil
}

// Locate maps a user id to its shard file.
func (a *App) Locate(id string) string {
	n, err := strconv.ParseInt(id, 10, 32)
	if err != nil {
		return filepath.Join(a.cfg.Sharding.Dir, id)
	}
	return model.ShardPath(a.cfg.Sharding.Dir, a.cfg.Sharding.Pattern, int32(n))
}

// MigrateRequest overrides the migration settings of the configuration.
// Empty fields fall back to the configured values.
type MigrateRequest struct {
	Descriptor string
	From       string
	To         string
}

// Migrate upgrades every user shard using the configured step descriptor.
// Shard handles cached by the app are released first so the engine has the
// files to itself.
func (a *App) Migrate(ctx context.Context, req MigrateRequest) (*migration.Report, error) {
	descriptor := firstNonEmpty(req.Descriptor, a.cfg.Migration.Descriptor)
	from := firstNonEmpty(req.From, a.cfg.Migration.CurrentVersion)
	to := firstNonEmpty(req.To, a.cfg.Migration.TargetVersion)
	if descriptor == "" || from == "" || to == "" {
		return nil, fmt.Errorf("app: migration needs a descriptor, a current version, and a target version")
	}

	steps, err := migration.LoadFile(descriptor)
	if err != nil {
		return nil, err
	}
	ids, err := a.ShardIDs(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.shards.Reset(); err != nil {
		return nil, fmt.Errorf("app: failed to release shard handles: %w", err)
	}

	opts := migration.Options{Backup: a.cfg.Migration.Backup.Enabled, Store: a.storeOptions()}
	if opts.Backup {
		st, err := a.newStorage(ctx)
		if err != nil {
			return nil, err
		}
		opts.Storage = st
	}
	return migration.NewEngine(a.Locate, opts).Run(ctx, ids, from, to, steps)
}

func (a *App) newStorage(ctx context.Context) (storage.ObjectStorage, error) {
	switch a.cfg.Storage.Type {
	case "local":
		return storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		return storage.NewS3Storage(ctx, a.cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
}

// Close releases every shard handle and the primary database.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	var firstErr error
	if a.shards != nil {
		if err := a.shards.Close(); err != nil {
			firstErr = err
		}
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
