package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
)

// Redis backs the cache with a Redis server. Keys are namespaced so several
// deployments can share one instance, and every value gets the configured
// TTL so abandoned sessions eventually vanish.
type Redis struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedis connects to the configured server and verifies it with a
// write/read/delete cycle before handing the cache out.
func NewRedis(ctx context.Context, cfg config.CacheConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DialTimeout: time.Second,
		ReadTimeout: time.Second,
	})

	rc := &Redis{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.probe(probeCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return rc, nil
}

func (r *Redis) probe(ctx context.Context) error {
	const probeKey = "probe"
	if err := r.Set(ctx, probeKey, "probe value"); err != nil {
		return fmt.Errorf("redis probe set: %w", err)
	}
	var got string
	if err := r.Get(ctx, probeKey, &got); err != nil {
		return fmt.Errorf("redis probe get: %w", err)
	}
	return r.client.Del(ctx, r.key(probeKey)).Err()
}

func (r *Redis) key(key string) string {
	if r.namespace == "" {
		return key
	}
	return r.namespace + ":" + key
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) Get(ctx context.Context, key string, dest any) error {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (r *Redis) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), raw, r.ttl).Err()
}

func (r *Redis) MultiGet(ctx context.Context, keys []string) ([][]byte, error) {
	namespaced := make([]string, len(keys))
	for i, key := range keys {
		namespaced[i] = r.key(key)
	}

	values, err := r.client.MGet(ctx, namespaced...).Result()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, len(keys))
	for i, val := range values {
		if s, ok := val.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *Redis) MultiSet(ctx context.Context, pairs []KV) error {
	pipe := r.client.Pipeline()
	for _, pair := range pairs {
		raw, err := json.Marshal(pair.Value)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.key(pair.Key), raw, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
