// Package cache provides the shared key-value store that mediates between
// the background response producer and the polling WebGAL client. Values are
// JSON-serialized; the networked Redis backend degrades to an in-process
// memory store when unreachable at startup.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
)

// ErrMiss is returned by Get when the key has not been written.
var ErrMiss = errors.New("cache: key not found")

// KV pairs a key with its still-unserialized value for MultiSet.
type KV struct {
	Key   string
	Value any
}

// Cache is the store shared by producers (writers) and pollers (readers).
// The key scheme guarantees at most one writer per key, so implementations
// only need single-key atomicity.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get unmarshals the cached JSON document into dest, or returns ErrMiss.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	// MultiGet returns the raw JSON documents for keys, in order. Missing
	// keys yield nil entries.
	MultiGet(ctx context.Context, keys []string) ([][]byte, error)
	MultiSet(ctx context.Context, pairs []KV) error
}

// New builds the configured Redis cache, probing it with a write/read cycle,
// and falls back to the memory cache on any failure so the service can still
// run without a cache server.
func New(ctx context.Context, cfg config.CacheConfig, log *logging.Logger) Cache {
	rc, err := NewRedis(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, falling back to memory cache")
		return NewMemory()
	}
	log.Info().Str("addr", cfg.Addr()).Msg("redis cache ready")
	return rc
}

// SceneKey addresses the delivery unit for one message index of a session.
func SceneKey(sessID string, msgID int) string {
	return fmt.Sprintf("msgmood:%s:%d", sessID, msgID)
}

// SessionKey addresses the session metadata document.
func SessionKey(sessID string) string {
	return fmt.Sprintf("session:%s", sessID)
}

// HistoryKey addresses the n-th message of a session's transcript.
func HistoryKey(sessID string, n int) string {
	return fmt.Sprintf("history:%s:%d", sessID, n)
}

// VoiceKey addresses synthesized audio for one sentence of a session.
func VoiceKey(sessID, hash string) string {
	return fmt.Sprintf("voice:%s:%s", sessID, hash)
}
