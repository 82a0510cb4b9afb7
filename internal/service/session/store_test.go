package session_test

import (
	"context"
	"testing"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
)

func newStore() *session.Store {
	return session.NewStore(cache.NewMemory(), preset.NewMemoryStore(preset.Seed()), logging.Nop())
}

func TestCreateSeedsWelcomeMessage(t *testing.T) {
	store := newStore()
	sess, err := store.Create(context.Background(), "sakiko")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}

	if len(sess.Messages) != 1 {
		t.Fatalf("expected welcome message, got %d messages", len(sess.Messages))
	}
	if sess.Messages[0].Role != chat.RoleAssistant {
		t.Fatalf("welcome message role: %s", sess.Messages[0].Role)
	}
}

func TestCreateWithOverrides(t *testing.T) {
	store := newStore()
	sess, err := store.CreateWith(context.Background(), "sakiko", session.Overrides{
		SystemPrompt:   "自定义提示",
		WelcomeMessage: "自定义欢迎。",
		MaxMemory:      5,
	})
	if err != nil {
		t.Fatalf("CreateWith err: %v", err)
	}

	if sess.Meta.SystemPrompt != "自定义提示" {
		t.Fatalf("system prompt override lost: %q", sess.Meta.SystemPrompt)
	}
	if sess.Meta.MaxMemory != 5 {
		t.Fatalf("max memory override lost: %d", sess.Meta.MaxMemory)
	}
	// The override lands before the welcome message is seeded; the
	// transcript entry is born with the final text.
	if len(sess.Messages) != 1 || sess.Messages[0].Content != "自定义欢迎。" {
		t.Fatalf("welcome override lost: %+v", sess.Messages)
	}
}

func TestCreateWithZeroOverridesKeepsPreset(t *testing.T) {
	store := newStore()
	sess, err := store.CreateWith(context.Background(), "sakiko", session.Overrides{})
	if err != nil {
		t.Fatalf("CreateWith err: %v", err)
	}
	if sess.Meta.SystemPrompt == "" || sess.Meta.MaxMemory != session.DefaultMaxMemory {
		t.Fatalf("zero overrides must keep preset defaults: %+v", sess.Meta)
	}
}

func TestCreateUnknownPreset(t *testing.T) {
	store := newStore()
	if _, err := store.Create(context.Background(), "nobody"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	sess, err := store.Create(ctx, "sakiko")
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	sess.AddMessage(chat.RoleUser, "你好", "")
	sess.AddMessage(chat.RoleAssistant, "你好！今天天气不错。", "高兴")

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	got, err := store.Load(ctx, sess.Meta.ID)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if got.Meta.MessageCount != 3 {
		t.Fatalf("unexpected message count: %d", got.Meta.MessageCount)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("unexpected transcript length: %d", len(got.Messages))
	}
	if got.Messages[2].Mood != "高兴" {
		t.Fatalf("assistant mood lost: %q", got.Messages[2].Mood)
	}
}

func TestIncrementalSaveDoesNotRewriteHistory(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	sess, _ := store.Create(ctx, "sakiko")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save err: %v", err)
	}

	sess.AddMessage(chat.RoleUser, "第二条", "")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("second Save err: %v", err)
	}

	got, err := store.Load(ctx, sess.Meta.ID)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages after incremental save, got %d", len(got.Messages))
	}
	if got.Messages[1].Content != "第二条" {
		t.Fatalf("unexpected second message: %q", got.Messages[1].Content)
	}
}

func TestLoadMissingSession(t *testing.T) {
	store := newStore()
	if _, err := store.Load(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}
