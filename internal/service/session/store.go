// Package session persists conversations through the shared cache. A
// session is loaded by exactly one request or background task at a time,
// mutated, and saved back; nothing holds it across requests in process
// memory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"context"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrUnknownPreset = errors.New("unknown preset")
)

// DefaultMaxMemory bounds how many transcript messages travel with a
// session; older history stays in the store but is not sent to the model.
const DefaultMaxMemory = 30

// Store creates, loads and saves sessions against the cache. Metadata and
// transcript entries live under separate keys so saves only touch the
// messages appended since the last save.
type Store struct {
	cache   cache.Cache
	presets preset.Store
	log     *logging.Logger
}

// NewStore wires a session store.
func NewStore(c cache.Cache, presets preset.Store, log *logging.Logger) *Store {
	return &Store{cache: c, presets: presets, log: log}
}

// Overrides replaces selected preset fields for one session. Zero values
// leave the preset untouched.
type Overrides struct {
	SystemPrompt   string
	WelcomeMessage string
	MaxMemory      int
}

// Create builds a fresh session from the named preset. The caller decides
// when to Save it.
func (s *Store) Create(ctx context.Context, presetName string) (*chat.Session, error) {
	return s.CreateWith(ctx, presetName, Overrides{})
}

// CreateWith builds a fresh session with per-session preset overrides.
// Overrides apply before the welcome message is seeded, so the transcript
// never needs rewriting afterwards.
func (s *Store) CreateWith(_ context.Context, presetName string, ov Overrides) (*chat.Session, error) {
	p, ok := s.presets.Get(presetName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, presetName)
	}

	if ov.SystemPrompt != "" {
		p.SystemPrompt = ov.SystemPrompt
	}
	if ov.WelcomeMessage != "" {
		p.WelcomeMessage = ov.WelcomeMessage
	}
	maxMemory := DefaultMaxMemory
	if ov.MaxMemory > 0 {
		maxMemory = ov.MaxMemory
	}

	return chat.NewFromPreset(p, maxMemory), nil
}

// Load rebuilds a session from its cached meta document plus the most
// recent MaxMemory transcript entries.
func (s *Store) Load(ctx context.Context, sessID string) (*chat.Session, error) {
	var meta chat.SessionMeta
	err := s.cache.Get(ctx, cache.SessionKey(sessID), &meta)
	if errors.Is(err, cache.ErrMiss) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session meta %s: %w", sessID, err)
	}

	start := meta.MessageCount - meta.MaxMemory
	if start < 0 {
		start = 0
	}

	keys := make([]string, 0, meta.MessageCount-start)
	for n := start; n < meta.MessageCount; n++ {
		keys = append(keys, cache.HistoryKey(sessID, n))
	}

	var messages []chat.Message
	if len(keys) > 0 {
		raws, err := s.cache.MultiGet(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load session history %s: %w", sessID, err)
		}
		messages = make([]chat.Message, 0, len(raws))
		for i, raw := range raws {
			if raw == nil {
				s.log.Warn().Str("session", sessID).Str("key", keys[i]).Msg("transcript entry missing from store")
				continue
			}
			var msg chat.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				return nil, fmt.Errorf("decode transcript entry %s: %w", keys[i], err)
			}
			messages = append(messages, msg)
		}
	}

	return chat.Restore(meta, messages), nil
}

// Save writes the meta document and any messages appended since the last
// save. Transcript keys are position-addressed and written exactly once.
func (s *Store) Save(ctx context.Context, sess *chat.Session) error {
	pairs := []cache.KV{{Key: cache.SessionKey(sess.Meta.ID), Value: sess.Meta}}

	start, pending := sess.PendingMessages()
	for i, msg := range pending {
		pairs = append(pairs, cache.KV{Key: cache.HistoryKey(sess.Meta.ID, start+i), Value: msg})
	}

	if err := s.cache.MultiSet(ctx, pairs); err != nil {
		return fmt.Errorf("save session %s: %w", sess.Meta.ID, err)
	}

	sess.MarkPersisted()
	s.log.Debug().Str("session", sess.Meta.ID).Int("newMessages", len(pending)).Msg("session saved")
	return nil
}
