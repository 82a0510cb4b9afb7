package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.TTSConfig{Timeout: 2 * time.Second}, logging.Nop())
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}

func TestSynthesizeDisabledTypes(t *testing.T) {
	svc := newService(t)

	for _, typ := range []string{"", "none", "unknown-vendor"} {
		audio, err := svc.Synthesize(context.Background(), "你好。", preset.VoicePreset{Type: typ})
		if err != nil {
			t.Fatalf("type %q must not error: %v", typ, err)
		}
		if audio != nil {
			t.Fatalf("type %q must yield no audio", typ)
		}
	}
}

func TestFishSpeechRequest(t *testing.T) {
	var gotPath string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	svc := newService(t)
	vp := preset.VoicePreset{Type: "fish", API: srv.URL, VoiceLine: "ref-123"}

	audio, err := svc.Synthesize(context.Background(), "你好。", vp)
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}

	if gotPath != "/v1/tts" {
		t.Fatalf("wrong endpoint: %q", gotPath)
	}
	if gotPayload["text"] != "你好。" {
		t.Fatalf("text not forwarded: %v", gotPayload["text"])
	}
	if gotPayload["reference_id"] != "ref-123" {
		t.Fatalf("voice line not forwarded: %v", gotPayload["reference_id"])
	}
	if gotPayload["format"] != "mp3" {
		t.Fatalf("format must be mp3: %v", gotPayload["format"])
	}
}

func TestFishSpeechNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := newService(t)
	vp := preset.VoicePreset{Type: "fish", API: srv.URL, VoiceLine: "ref"}

	if _, err := svc.Synthesize(context.Background(), "你好。", vp); err == nil {
		t.Fatal("non-200 response must surface as error")
	}
}

func TestNewServiceRejectsBadProxy(t *testing.T) {
	if _, err := NewService(config.TTSConfig{ProxyURL: "://bad"}, logging.Nop()); err == nil {
		t.Fatal("invalid proxy url must error")
	}
}
