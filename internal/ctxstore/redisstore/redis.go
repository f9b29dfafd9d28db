// Package redisstore adapts a Redis-backed key/value store into the ctxstore.Store
// interface, grounded on the flat-namespace scan/prefix design of
// internal/storage/redis_context.go, updated from go-redis v8 to the v9 client already
// wired into the rest of the module.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgeflow/edgelink/internal/ctxstore"
	"github.com/edgeflow/edgelink/internal/edgelinkerr"
	"github.com/edgeflow/edgelink/internal/model"
)

var _ ctxstore.Store = (*RedisStore)(nil)

// RedisStore is a ctxstore.Store backed by a single Redis server. Keys are namespaced
// as "<prefix>:<scope>:<key>" so Clean can SCAN by scope prefix.
type RedisStore struct {
	client     *redis.Client
	name       string
	prefix     string
	defaultTTL time.Duration
}

// Config mirrors the connection options the teacher's RedisContextConfig exposed.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	KeyPrefix  string
	DefaultTTL time.Duration
}

func New(name string, cfg Config) *RedisStore {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "edgelink"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &RedisStore{client: client, name: name, prefix: cfg.KeyPrefix, defaultTTL: cfg.DefaultTTL}
}

func (r *RedisStore) Name() string { return r.name }

func (r *RedisStore) Open(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return edgelinkerr.Wrap(edgelinkerr.IO, err, "failed to connect to redis context store")
	}
	return nil
}

func (r *RedisStore) Close(ctx context.Context) error {
	return r.client.Close()
}

func (r *RedisStore) key(scope, k string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, k)
}

func (r *RedisStore) scopePattern(scope string) string {
	return fmt.Sprintf("%s:%s:*", r.prefix, scope)
}

func (r *RedisStore) GetOne(ctx context.Context, scope, key string) (model.Variant, error) {
	val, err := r.client.Get(ctx, r.key(scope, key)).Result()
	if err == redis.Nil {
		return model.Null(), nil
	}
	if err != nil {
		return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.IO, err, "redis get failed")
	}
	var v model.Variant
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		return model.NewString(val), nil
	}
	return v, nil
}

func (r *RedisStore) GetMany(ctx context.Context, scope string, keys []string) ([]model.Variant, error) {
	out := make([]model.Variant, len(keys))
	for i, k := range keys {
		v, err := r.GetOne(ctx, scope, k)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *RedisStore) GetKeys(ctx context.Context, scope string) ([]string, error) {
	redisKeys, err := r.scanKeys(ctx, scope)
	if err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("%s:%s:", r.prefix, scope)
	out := make([]string, 0, len(redisKeys))
	for _, rk := range redisKeys {
		out = append(out, strings.TrimPrefix(rk, prefix))
	}
	return out, nil
}

func (r *RedisStore) SetOne(ctx context.Context, scope, key string, value model.Variant) error {
	data, err := json.Marshal(value)
	if err != nil {
		return edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "failed to marshal context value")
	}
	if err := r.client.Set(ctx, r.key(scope, key), data, r.defaultTTL).Err(); err != nil {
		return edgelinkerr.Wrap(edgelinkerr.IO, err, "redis set failed")
	}
	return nil
}

func (r *RedisStore) SetMany(ctx context.Context, scope string, pairs map[string]model.Variant) error {
	pipe := r.client.Pipeline()
	for k, v := range pairs {
		data, err := json.Marshal(v)
		if err != nil {
			return edgelinkerr.Wrap(edgelinkerr.InvalidData, err, "failed to marshal context value")
		}
		pipe.Set(ctx, r.key(scope, k), data, r.defaultTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return edgelinkerr.Wrap(edgelinkerr.IO, err, "redis pipelined set failed")
	}
	return nil
}

func (r *RedisStore) RemoveOne(ctx context.Context, scope, key string) (model.Variant, error) {
	prev, err := r.GetOne(ctx, scope, key)
	if err != nil {
		return model.Variant{}, err
	}
	if err := r.client.Del(ctx, r.key(scope, key)).Err(); err != nil {
		return model.Variant{}, edgelinkerr.Wrap(edgelinkerr.IO, err, "redis del failed")
	}
	return prev, nil
}

func (r *RedisStore) Delete(ctx context.Context, scope string) error {
	return r.deleteMatching(ctx, r.scopePattern(scope))
}

// Clean drops every scope key except the reserved global scope and those whose scope
// segment names an id present in activeNodes.
func (r *RedisStore) Clean(ctx context.Context, activeNodes []model.ElementId) error {
	active := make(map[string]bool, len(activeNodes)+1)
	active["global"] = true
	for _, id := range activeNodes {
		active[id.String()] = true
	}

	keys, err := r.scanKeys(ctx, "*")
	if err != nil {
		return err
	}
	var stale []string
	scopePrefix := r.prefix + ":"
	for _, k := range keys {
		rest := strings.TrimPrefix(k, scopePrefix)
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if !active[parts[0]] {
			stale = append(stale, k)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, stale...).Err(); err != nil {
		return edgelinkerr.Wrap(edgelinkerr.IO, err, "redis clean del failed")
	}
	return nil
}

func (r *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string
	fullPattern := pattern
	if pattern != "*" {
		fullPattern = r.scopePattern(pattern)
	} else {
		fullPattern = r.prefix + ":*"
	}
	for {
		batch, next, err := r.client.Scan(ctx, cursor, fullPattern, 200).Result()
		if err != nil {
			return nil, edgelinkerr.Wrap(edgelinkerr.IO, err, "redis scan failed")
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (r *RedisStore) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return edgelinkerr.Wrap(edgelinkerr.IO, err, "redis scan failed")
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return edgelinkerr.Wrap(edgelinkerr.IO, err, "redis del failed")
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
