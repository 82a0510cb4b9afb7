package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/handler/api"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/archive"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
)

type fakeAnswerer struct{ chunks []string }

func (f *fakeAnswerer) StreamAnswer(context.Context, *chat.Session, string) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type fakeTurns struct{ turns []archive.Turn }

func (f *fakeTurns) Turns(context.Context, string) ([]archive.Turn, error) {
	return f.turns, nil
}

type env struct {
	sessions *session.Store
	router   http.Handler
}

func newEnv(t *testing.T, ai api.Answerer, turns api.TurnReader) *env {
	t.Helper()

	c := cache.NewMemory()
	presets := preset.NewMemoryStore(preset.Seed())
	sessions := session.NewStore(c, presets, logging.Nop())

	h := api.New(presets, sessions, ai, turns, "sakiko", logging.Nop())
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return &env{sessions: sessions, router: r}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestListPresetsHidesAnalyzerAndPrompt(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodGet, "/api/presets", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var out []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	for _, p := range out {
		if p["name"] == preset.MoodAnalyzerName {
			t.Fatal("mood analyzer must not be listed")
		}
		if _, ok := p["systemPrompt"]; ok {
			t.Fatal("system prompt must not leave the server")
		}
	}
	if len(out) != 1 || out[0]["name"] != "sakiko" {
		t.Fatalf("unexpected preset list: %v", out)
	}
}

func TestNewChatAppliesOverrides(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodPost, "/api/newchat", `{"bot":"sakiko","systemPrompt":"自定义提示","welcomeMessage":"自定义欢迎。","maxMemory":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var meta chat.SessionMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	sess, err := e.sessions.Load(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if sess.Meta.SystemPrompt != "自定义提示" {
		t.Fatalf("system prompt override lost: %q", sess.Meta.SystemPrompt)
	}
	if sess.Meta.MaxMemory != 5 {
		t.Fatalf("max memory override lost: %d", sess.Meta.MaxMemory)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Content != "自定义欢迎。" {
		t.Fatalf("welcome override lost: %+v", sess.Messages)
	}
}

func TestNewChatUnknownBot(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodPost, "/api/newchat", `{"bot":"nobody"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestChatStreamsSSEAndPersistsTranscript(t *testing.T) {
	e := newEnv(t, &fakeAnswerer{chunks: []string{"你好", "！"}}, nil)

	rec := e.do(t, http.MethodPost, "/api/newchat", `{"bot":"sakiko"}`)
	var meta chat.SessionMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode err: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"`+meta.ID+`","message":"在吗"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"delta"`) || !strings.Contains(body, `"content":"你好"`) {
		t.Fatalf("no delta frames: %q", body)
	}
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("delta frames must be plain data frames: %q", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("no done event: %q", body)
	}

	sess, err := e.sessions.Load(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	last := sess.Messages[len(sess.Messages)-1]
	if last.Role != chat.RoleAssistant || last.Content != "你好！" {
		t.Fatalf("assistant transcript wrong: %+v", last)
	}
}

func TestChatWithoutModel(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodPost, "/api/chat", `{"sessionId":"x","message":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	turns := &fakeTurns{turns: []archive.Turn{{SessionID: "s", Answer: "第一回合。"}}}
	e := newEnv(t, nil, turns)

	rec := e.do(t, http.MethodGet, "/api/history/s", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var out []archive.Turn
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(out) != 1 || out[0].Answer != "第一回合。" {
		t.Fatalf("unexpected history: %+v", out)
	}
}

func TestHistoryWithoutArchive(t *testing.T) {
	e := newEnv(t, nil, nil)
	rec := e.do(t, http.MethodGet, "/api/history/s", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}
