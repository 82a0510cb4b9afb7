package archive_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/archive"
)

func openStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "nested", "turns.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndReadBackInOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i, answer := range []string{"第一回合。", "第二回合。", "第三回合。"} {
		turn := archive.Turn{
			SessionID: "sess-a",
			Prompt:    "继续",
			Answer:    answer,
			LastMood:  "平静",
			Sentences: []scene.SentenceMood{{Text: answer, Mood: "平静"}},
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn %d err: %v", i, err)
		}
	}

	turns, err := store.Turns(ctx, "sess-a")
	if err != nil {
		t.Fatalf("Turns err: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Answer != "第一回合。" || turns[2].Answer != "第三回合。" {
		t.Fatalf("turns out of order: %q ... %q", turns[0].Answer, turns[2].Answer)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.AppendTurn(ctx, archive.Turn{SessionID: "sess-a", Answer: "a"}); err != nil {
		t.Fatalf("AppendTurn err: %v", err)
	}

	turns, err := store.Turns(ctx, "sess-b")
	if err != nil {
		t.Fatalf("Turns err: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns for untouched session, got %d", len(turns))
	}
}
