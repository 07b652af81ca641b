package dao

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	apperrors "github.com/arkilian/entitydb/internal/errors"
	"github.com/arkilian/entitydb/internal/schema"
	"github.com/arkilian/entitydb/internal/store"
)

// Resolver returns the file path of the shard the current caller should use.
// An empty path means no shard applies.
type Resolver func(ctx context.Context) (string, error)

// ShardRegistry hands out DAOs bound to per-key private database files. The
// key is re-resolved on every lookup; DAOs and handles are cached per path.
type ShardRegistry struct {
	resolve   Resolver
	opts      RegistryOptions
	storeOpts store.Options

	mu     sync.Mutex
	shards map[string]*shard
}

type shard struct {
	db    *store.DB
	cache daoCache
}

// NewShardRegistry creates a shard registry that opens shard files with
// storeOpts.
func NewShardRegistry(resolve Resolver, opts RegistryOptions, storeOpts store.Options) *ShardRegistry {
	return &ShardRegistry{
		resolve:   resolve,
		opts:      opts,
		storeOpts: storeOpts,
		shards:    make(map[string]*shard),
	}
}

// Resolve runs the resolver and rejects an empty key.
func (s *ShardRegistry) Resolve(ctx context.Context) (string, error) {
	path, err := s.resolve(ctx)
	if err != nil {
		return "", apperrors.NewInitError(apperrors.CodeNoShardKey, "dao: failed to resolve shard key", err)
	}
	if path == "" {
		return "", apperrors.NewInitError(apperrors.CodeNoShardKey, "dao: no shard key for the current caller", nil)
	}
	return path, nil
}

// GetShard returns the DAO of daoType bound to the shard the resolver
// currently names, opening the shard file on first use.
func GetShard[D Initializer[T], T any](ctx context.Context, s *ShardRegistry, daoType string, newDao func() D, m schema.Mapping[T]) (D, error) {
	var zero D
	path, err := s.Resolve(ctx)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shards[path]
	if !ok {
		db, err := store.Open(path, s.storeOpts)
		if err != nil {
			return zero, apperrors.NewInitError(apperrors.CodeHandleClosed,
				fmt.Sprintf("dao: failed to open shard %s", path), err)
		}
		sh = &shard{db: db, cache: make(daoCache)}
		s.shards[path] = sh
		log.Printf("dao: opened shard %s", path)
	}
	return lookupOrInit(ctx, sh.cache, sh.db, s.opts, daoType, newDao, m)
}

// Paths returns the cached shard paths, sorted.
func (s *ShardRegistry) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.shards))
	for p := range s.shards {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Invalidate closes and forgets the shard at path. The next lookup that
// resolves to path reopens it.
func (s *ShardRegistry) Invalidate(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shards[path]
	if !ok {
		return nil
	}
	delete(s.shards, path)
	return sh.db.Close()
}

// Reset closes and forgets every cached shard.
func (s *ShardRegistry) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, sh := range s.shards {
		if err := sh.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.shards, path)
	}
	return firstErr
}

// Close is Reset.
func (s *ShardRegistry) Close() error {
	return s.Reset()
}
