// Package cache puts a Redis read-through cache in front of a storage.Store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mikepea/fieldgroup/pkg/fieldgroup/logx"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/models"
	"github.com/mikepea/fieldgroup/pkg/fieldgroup/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultPrefix = "fieldgroup:"

// Options tune the cache.
type Options struct {
	TTL    time.Duration
	Prefix string
}

// Store caches Load and ListByScope results. Writes go to the wrapped store
// and then drop the affected keys; a Redis failure never fails a call.
//
// Every cached key is guarded by two generation counters, its own and its
// bundle's. Invalidation bumps them before deleting keys, and a read-through
// only writes back if the counters it saw before loading are unchanged, so a
// load that raced with a write cannot put the old value back.
type Store struct {
	next   storage.Store
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *logx.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps next with a cache backed by rdb.
func New(next storage.Store, rdb *redis.Client, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Store{
		next:   next,
		rdb:    rdb,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		log:    logx.GetScope("cache"),
	}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (s *Store) groupKey(scope models.Scope, id string) string {
	return s.prefix + "group:" + models.ConfigName(scope, id)
}

func (s *Store) scopeKey(scope models.Scope) string {
	return s.prefix + "scope:" + scope.String()
}

func (s *Store) bundlePatterns(entityType, bundle string) []string {
	return []string{
		s.prefix + "group:" + models.ConfigPrefix + "." + entityType + "." + bundle + ".*",
		s.prefix + "scope:" + entityType + "." + bundle + ".*",
	}
}

func (s *Store) genKeys(key string, scope models.Scope) []string {
	return []string{s.prefix + "gen:" + key, s.bundleGenKey(scope.EntityType, scope.Bundle)}
}

func (s *Store) bundleGenKey(entityType, bundle string) string {
	return s.prefix + "gen:bundle:" + entityType + "." + bundle
}

type bundleRef struct {
	entityType, bundle string
}

func (s *Store) keysFor(groups ...*models.FieldGroup) []string {
	keys := make([]string, 0, 2*len(groups))
	for _, g := range groups {
		keys = append(keys, s.groupKey(g.Scope(), g.ID), s.scopeKey(g.Scope()))
	}
	return keys
}

func (s *Store) get(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// generation reads the counters in gens. ok is false when Redis cannot be
// read, and the caller then skips the write back.
func (s *Store) generation(ctx context.Context, gens []string) (token string, ok bool) {
	vals, err := s.rdb.MGet(ctx, gens...).Result()
	if err != nil {
		s.log.Warn("cache generation read failed", zap.Strings("keys", gens), zap.Error(err))
		return "", false
	}
	return genToken(vals), true
}

func genToken(vals []any) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			parts[i] = str
		} else {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ",")
}

// set writes v under key unless one of gens moved past token.
func (s *Store) set(ctx context.Context, key string, gens []string, token string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, gens...).Result()
		if err != nil {
			return err
		}
		if genToken(vals) != token {
			s.log.Debug("cache write skipped after invalidation", zap.String("key", key))
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, gens...)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) invalidate(ctx context.Context, keys []string, bundles []bundleRef) {
	var gens []string
	for _, key := range keys {
		gens = append(gens, s.prefix+"gen:"+key)
	}
	for _, b := range bundles {
		gens = append(gens, s.bundleGenKey(b.entityType, b.bundle))
		for _, pattern := range s.bundlePatterns(b.entityType, b.bundle) {
			iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				keys = append(keys, iter.Val())
			}
			if err := iter.Err(); err != nil {
				s.log.Warn("cache scan failed", zap.String("pattern", pattern), zap.Error(err))
			}
		}
	}
	if len(gens) == 0 {
		return
	}
	// Counters go up before the keys are dropped.
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, gen := range gens {
			pipe.Incr(ctx, gen)
			pipe.Expire(ctx, gen, 2*s.ttl)
		}
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *Store) Load(ctx context.Context, scope models.Scope, id string) (*models.FieldGroup, error) {
	key := s.groupKey(scope, id)
	var cached models.FieldGroup
	if s.get(ctx, key, &cached) {
		return &cached, nil
	}
	gens := s.genKeys(key, scope)
	token, ok := s.generation(ctx, gens)
	g, err := s.next.Load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if ok {
		s.set(ctx, key, gens, token, g)
	}
	return g, nil
}

func (s *Store) ListByScope(ctx context.Context, scope models.Scope) ([]*models.FieldGroup, error) {
	key := s.scopeKey(scope)
	var cached []*models.FieldGroup
	if s.get(ctx, key, &cached) {
		return cached, nil
	}
	gens := s.genKeys(key, scope)
	token, ok := s.generation(ctx, gens)
	groups, err := s.next.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	if ok {
		s.set(ctx, key, gens, token, groups)
	}
	return groups, nil
}

func (s *Store) ListScopes(ctx context.Context) ([]models.Scope, error) {
	return s.next.ListScopes(ctx)
}

func (s *Store) Save(ctx context.Context, groups ...*models.FieldGroup) error {
	if err := s.next.Save(ctx, groups...); err != nil {
		return err
	}
	s.invalidate(ctx, s.keysFor(groups...), nil)
	return nil
}

func (s *Store) Delete(ctx context.Context, scope models.Scope, id string) error {
	if err := s.next.Delete(ctx, scope, id); err != nil {
		return err
	}
	s.invalidate(ctx, []string{s.groupKey(scope, id), s.scopeKey(scope)}, nil)
	return nil
}

func (s *Store) DeleteByBundle(ctx context.Context, entityType, bundle string) (int64, error) {
	n, err := s.next.DeleteByBundle(ctx, entityType, bundle)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, nil, []bundleRef{{entityType, bundle}})
	return n, nil
}

// Transaction runs fn against the uncached transactional store and drops
// every key it wrote once the transaction has finished.
func (s *Store) Transaction(ctx context.Context, fn func(tx storage.Store) error) error {
	rec := &written{}
	err := s.next.Transaction(ctx, func(tx storage.Store) error {
		return fn(&txStore{Store: tx, cache: s, rec: rec})
	})
	s.invalidate(ctx, rec.keys, rec.bundles)
	return err
}

type written struct {
	keys    []string
	bundles []bundleRef
}

type txStore struct {
	storage.Store
	cache *Store
	rec   *written
}

func (t *txStore) Save(ctx context.Context, groups ...*models.FieldGroup) error {
	t.rec.keys = append(t.rec.keys, t.cache.keysFor(groups...)...)
	return t.Store.Save(ctx, groups...)
}

func (t *txStore) Delete(ctx context.Context, scope models.Scope, id string) error {
	t.rec.keys = append(t.rec.keys, t.cache.groupKey(scope, id), t.cache.scopeKey(scope))
	return t.Store.Delete(ctx, scope, id)
}

func (t *txStore) DeleteByBundle(ctx context.Context, entityType, bundle string) (int64, error) {
	t.rec.bundles = append(t.rec.bundles, bundleRef{entityType, bundle})
	return t.Store.DeleteByBundle(ctx, entityType, bundle)
}

func (t *txStore) Transaction(ctx context.Context, fn func(tx storage.Store) error) error {
	return t.Store.Transaction(ctx, func(inner storage.Store) error {
		return fn(&txStore{Store: inner, cache: t.cache, rec: t.rec})
	})
}
