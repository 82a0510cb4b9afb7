// Package archive keeps a durable record of completed turns in a local
// BoltDB file. The cache holds the live conversation but expires; the
// archive is what the JSON API reads history from afterwards.
package archive

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
)

// Turn is one archived prompt/answer exchange, written once when the
// producer reaches the end of a stream.
type Turn struct {
	SessionID  string               `json:"sessionId"`
	PresetName string               `json:"presetName"`
	Prompt     string               `json:"prompt"`
	Answer     string               `json:"answer"`
	LastMood   string               `json:"lastMood"`
	Sentences  []scene.SentenceMood `json:"sentences"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Store wraps the BoltDB file. One bucket per session, sequence-keyed so
// turns read back in completion order.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the archive file, making parent directories as
// needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func sessionBucket(sessID string) []byte {
	return []byte("turns-" + sessID)
}

// AppendTurn stores one completed turn under the next sequence number of
// its session bucket.
func (s *Store) AppendTurn(_ context.Context, turn Turn) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket(turn.SessionID))
		if err != nil {
			return fmt.Errorf("failed to create session bucket: %w", err)
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		v, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		return b.Put(key, v)
	})
}

// Turns returns every archived turn of a session in completion order. A
// session with no archived turns yields an empty slice, not an error.
func (s *Store) Turns(_ context.Context, sessID string) ([]Turn, error) {
	var turns []Turn
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket(sessID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var turn Turn
			if err := json.Unmarshal(v, &turn); err != nil {
				return fmt.Errorf("failed to unmarshal turn: %w", err)
			}
			turns = append(turns, turn)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}
