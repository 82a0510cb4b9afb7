package cache

import (
	"context"
	"errors"
	"testing"
)

func TestMemorySetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := c.Set(ctx, "k", doc{Name: "祥子", Count: 3}); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	var got doc
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Name != "祥子" || got.Count != 3 {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	c := NewMemory()
	var dest string
	if err := c.Get(context.Background(), "absent", &dest); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryExists(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	ok, err := c.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("fresh key must not exist: ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "k", 1); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	ok, err = c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("written key must exist: ok=%v err=%v", ok, err)
	}
}

func TestMemoryMultiGetPreservesOrderAndMisses(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.MultiSet(ctx, []KV{{Key: "a", Value: "一"}, {Key: "c", Value: "三"}}); err != nil {
		t.Fatalf("MultiSet err: %v", err)
	}

	raws, err := c.MultiGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MultiGet err: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(raws))
	}
	if raws[0] == nil || raws[2] == nil {
		t.Fatal("present keys returned nil")
	}
	if raws[1] != nil {
		t.Fatalf("missing key must be nil, got %q", raws[1])
	}
}

func TestMemoryBinaryValueRoundTrip(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	audio := []byte{0xff, 0xfb, 0x00, 0x01}
	if err := c.Set(ctx, VoiceKey("s", "abc"), audio); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	var got []byte
	if err := c.Get(ctx, VoiceKey("s", "abc"), &got); err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if len(got) != len(audio) || got[0] != 0xff {
		t.Fatalf("audio mangled: %v", got)
	}
}

func TestKeyScheme(t *testing.T) {
	if got := SceneKey("s1", 7); got != "msgmood:s1:7" {
		t.Fatalf("scene key %q", got)
	}
	if got := SessionKey("s1"); got != "session:s1" {
		t.Fatalf("session key %q", got)
	}
	if got := HistoryKey("s1", 0); got != "history:s1:0" {
		t.Fatalf("history key %q", got)
	}
	if got := VoiceKey("s1", "abcdef"); got != "voice:s1:abcdef" {
		t.Fatalf("voice key %q", got)
	}
}
