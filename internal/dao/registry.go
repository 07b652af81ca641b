package dao

import (
	"context"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/schema"
	"github.com/arkilian/entitydb/internal/store"
)

// RegistryOptions configures a Registry or ShardRegistry.
type RegistryOptions struct {
	// StrictBinding rejects a lookup whose mapping names a different table
	// than the cached instance was bound to. By default the first binding
	// wins and later mappings are ignored.
	StrictBinding bool

	// DAO is applied to every DAO before Init.
	DAO Options
}

// Registry hands out one initialized DAO per DAO type over a single database.
type Registry struct {
	db   *store.DB
	opts RegistryOptions

	mu     sync.Mutex
	cache  daoCache
	closed bool
}

// NewRegistry creates a registry over db. The registry does not own db.
func NewRegistry(db *store.DB, opts RegistryOptions) *Registry {
	return &Registry{db: db, opts: opts, cache: make(daoCache)}
}

// DB returns the database the registry binds DAOs to.
func (r *Registry) DB() *store.DB {
	return r.db
}

// Len returns the number of cached DAOs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Close drops every cached DAO. Later lookups fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cache = make(daoCache)
}

// Get returns the DAO registered under daoType, constructing it with newDao
// and initializing it against the registry's database on first use.
func Get[D Initializer[T], T any](ctx context.Context, r *Registry, daoType string, newDao func() D, m schema.Mapping[T]) (D, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		var zero D
		return zero, apperrors.NewInitError(apperrors.CodeHandleClosed, "dao: registry is closed", nil)
	}
	return lookupOrInit(ctx, r.cache, r.db, r.opts, daoType, newDao, m)
}

type cacheEntry struct {
	dao   any
	table string
}

type daoCache map[string]cacheEntry

// lookupOrInit is the check-create-init-store sequence. Callers hold the lock
// guarding cache for its whole duration.
func lookupOrInit[D Initializer[T], T any](ctx context.Context, cache daoCache, db *store.DB, opts RegistryOptions, daoType string, newDao func() D, m schema.Mapping[T]) (D, error) {
	var zero D

	if e, ok := cache[daoType]; ok {
		d, ok := e.dao.(D)
		if !ok {
			return zero, apperrors.NewInitError(apperrors.CodeBindingConflict,
				fmt.Sprintf("dao: %s is registered as %T, requested %T", daoType, e.dao, zero), nil).
				WithDetails(map[string]interface{}{"dao_type": daoType})
		}
		if opts.StrictBinding {
			if want := schema.TableName(m); want != e.table {
				return zero, apperrors.NewInitError(apperrors.CodeBindingConflict,
					fmt.Sprintf("dao: %s is bound to table %s, requested %s", daoType, e.table, want), nil).
					WithDetails(map[string]interface{}{"dao_type": daoType})
			}
		}
		return d, nil
	}

	d := newDao()
	d.Configure(opts.DAO)
	if _, err := d.Init(ctx, db, m); err != nil {
		log.Printf("dao: failed to initialize %s: %v", daoType, err)
		return zero, err
	}
	cache[daoType] = cacheEntry{dao: d, table: d.Table()}
	return d, nil
}
