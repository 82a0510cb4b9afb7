// Package webgal serves the plain-text scene endpoints the WebGAL client
// polls. Every response, including every failure, is a playable scene
// script; the client never sees a JSON error.
package webgal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
	"github.com/RibomBalt/webgal-llm-puppet/internal/segment"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/producer"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
)

// ByeCommand is the user input that ends a conversation politely.
const ByeCommand = "再见"

// exhaustedMessage is spoken when the client has polled past the pending
// threshold without the producer delivering anything.
const exhaustedMessage = "看来您那里信号很不好呢，我这边先挂了，祝您生活愉快。"

// Answerer starts the streaming completion for one turn.
type Answerer interface {
	StreamAnswer(ctx context.Context, sess *chat.Session, userPrompt string) (*schema.StreamReader[*schema.Message], error)
}

// Handler implements the numbered-scene poll protocol.
type Handler struct {
	poll       config.PollConfig
	defaultBot string
	cache      cache.Cache
	presets    preset.Store
	sessions   *session.Store
	ai         Answerer
	producer   *producer.Producer
	composer   *scene.Composer
	log        *logging.Logger
}

// New 创建 WebGAL 场景处理器。ai 为 nil 时对话端点返回错误场景。
func New(poll config.PollConfig, defaultBot string, c cache.Cache, presets preset.Store, sessions *session.Store, ai Answerer, prod *producer.Producer, composer *scene.Composer, log *logging.Logger) *Handler {
	return &Handler{
		poll:       poll,
		defaultBot: defaultBot,
		cache:      c,
		presets:    presets,
		sessions:   sessions,
		ai:         ai,
		producer:   prod,
		composer:   composer,
		log:        log,
	}
}

// RegisterRoutes 注册 WebGAL 相关的路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleHealth)
	r.Get("/newchat.txt", h.handleNewChat)
	r.Get("/chat.txt/{sessionID}/{msgID}", h.handleChat)
	r.Get("/next.txt/{sessionID}/{msgID}", h.handleNext)
	r.Get("/voice.mp3/{sessionID}/{hash}", h.handleVoice)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeScene(w, ";WebGAL LLM puppet backend is running.\nend;\n")
}

// handleNewChat creates a session, caches its welcome unit at index 0 and
// returns that unit so the client lands directly in the conversation.
func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	bot := r.URL.Query().Get("bot")
	if bot == "" {
		bot = h.defaultBot
	}

	p, ok := h.presets.Get(bot)
	if !ok {
		h.log.Warn().Str("bot", bot).Msg("newchat with unknown preset")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	sess, err := h.sessions.Create(r.Context(), bot)
	if err != nil {
		h.log.Error().Err(err).Msg("session create failed")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	var pairs []scene.SentenceMood
	for _, sentence := range segment.Split(p.WelcomeMessage) {
		pairs = append(pairs, scene.SentenceMood{Text: sentence, Mood: p.RandomMood()})
	}

	unit, err := h.composer.Compose(r.Context(), p, sess.Meta.ID, 0, pairs, true)
	if err != nil {
		h.log.Error().Err(err).Str("session", sess.Meta.ID).Msg("welcome unit compose failed")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	sess.Meta.NextDeliveryIndex = 1
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.log.Error().Err(err).Str("session", sess.Meta.ID).Msg("session save failed")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	h.log.Info().Str("session", sess.Meta.ID).Str("bot", bot).Msg("new conversation started")
	writeScene(w, unit.Script)
}

// handleChat starts one turn. The WebGAL client substitutes the p and
// pending query placeholders only after real user input; a prefetch
// arrives with them unsubstituted and must not consume the turn.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessID := chi.URLParam(r, "sessionID")
	msgID, err := strconv.Atoi(chi.URLParam(r, "msgID"))
	if err != nil {
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	query := r.URL.Query()
	prompt := query.Get("p")
	pending := query.Get("pending")

	sess, err := h.sessions.Load(r.Context(), sessID)
	if err != nil {
		h.log.Warn().Err(err).Str("session", sessID).Msg("chat on unknown session")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	p, ok := h.presets.Get(sess.Meta.PresetName)
	if !ok {
		h.log.Error().Str("preset", sess.Meta.PresetName).Msg("session preset disappeared")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	if prompt == "" || prompt == "{prompt}" || pending != "1" {
		// Prefetch of the dead branch: keep it idling without starting a
		// turn so the real submit still lands on a fresh index.
		script, err := h.composer.Pending(p, scene.ListeningMood, h.composer.Renderer().ChatPlainURL(sessID, msgID, p.Name))
		if err != nil {
			writeScene(w, h.composer.Renderer().ErrorScene())
			return
		}
		writeScene(w, script)
		return
	}

	if prompt == ByeCommand {
		script, err := h.composer.Bye(p, scene.ListeningMood, "")
		if err != nil {
			writeScene(w, h.composer.Renderer().ErrorScene())
			return
		}
		h.log.Info().Str("session", sessID).Msg("conversation ended by user")
		writeScene(w, script)
		return
	}

	if h.ai == nil {
		h.log.Warn().Str("session", sessID).Msg("chat requested but model is not configured")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	// The stream and the producer outlive this request.
	turnCtx := context.WithoutCancel(r.Context())

	stream, err := h.ai.StreamAnswer(turnCtx, sess, prompt)
	if err != nil {
		h.log.Error().Err(err).Str("session", sessID).Msg("model stream start failed")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	sess.AddMessage(chat.RoleUser, prompt, "")
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		stream.Close()
		h.log.Error().Err(err).Str("session", sessID).Msg("session save failed before turn")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	go h.producer.Run(turnCtx, sess, p, prompt, msgID, stream)

	// The first unit is fetched from the poller right away; no scene is
	// played in between.
	http.Redirect(w, r, h.composer.Renderer().NextURL(sessID, msgID, p.Name, 0, true), http.StatusFound)
}

// handleNext polls for the delivery unit at one index. Within the request
// it retries a few times; across requests the client carries the pending
// counter n until the exhaustion threshold closes the conversation.
func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sessID := chi.URLParam(r, "sessionID")
	msgID, err := strconv.Atoi(chi.URLParam(r, "msgID"))
	if err != nil {
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	query := r.URL.Query()
	n, _ := strconv.Atoi(query.Get("n"))
	firstAnswer := query.Get("first_answer") == "1"

	sess, err := h.sessions.Load(r.Context(), sessID)
	if err != nil {
		h.log.Warn().Err(err).Str("session", sessID).Msg("poll on unknown session")
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}
	p, ok := h.presets.Get(sess.Meta.PresetName)
	if !ok {
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}

	if unit, ok := h.waitForUnit(r.Context(), sessID, msgID); ok {
		writeScene(w, unit.Script)
		return
	}

	if n+1 > h.poll.MaxPending {
		h.log.Warn().Str("session", sessID).Int("msg", msgID).Int("n", n).Msg("poll budget exhausted, closing conversation")
		script, err := h.composer.Bye(p, h.idleMood(r.Context(), sessID, msgID, firstAnswer), exhaustedMessage)
		if err != nil {
			writeScene(w, h.composer.Renderer().ErrorScene())
			return
		}
		writeScene(w, script)
		return
	}

	nextURL := h.composer.Renderer().NextURL(sessID, msgID, p.Name, n+1, firstAnswer)
	script, err := h.composer.Pending(p, h.idleMood(r.Context(), sessID, msgID, firstAnswer), nextURL)
	if err != nil {
		writeScene(w, h.composer.Renderer().ErrorScene())
		return
	}
	writeScene(w, script)
}

// waitForUnit retries the cache lookup through the in-request poll budget.
func (h *Handler) waitForUnit(ctx context.Context, sessID string, msgID int) (scene.DeliveryUnit, bool) {
	attempts := h.poll.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var unit scene.DeliveryUnit
	for attempt := 0; ; attempt++ {
		err := h.cache.Get(ctx, cache.SceneKey(sessID, msgID), &unit)
		if err == nil {
			return unit, true
		}
		if !errors.Is(err, cache.ErrMiss) {
			h.log.Error().Err(err).Str("session", sessID).Int("msg", msgID).Msg("delivery unit lookup failed")
			return scene.DeliveryUnit{}, false
		}
		if attempt == attempts-1 {
			return scene.DeliveryUnit{}, false
		}

		select {
		case <-ctx.Done():
			return scene.DeliveryUnit{}, false
		case <-time.After(h.poll.Interval):
		}
	}
}

// idleMood picks the animation shown while the puppet is still thinking:
// the mood of the previous delivered unit, or listening right after a turn
// start.
func (h *Handler) idleMood(ctx context.Context, sessID string, msgID int, firstAnswer bool) string {
	if firstAnswer || msgID == 0 {
		return scene.ListeningMood
	}

	var prev scene.DeliveryUnit
	if err := h.cache.Get(ctx, cache.SceneKey(sessID, msgID-1), &prev); err != nil || prev.LastMood == "" {
		return scene.ListeningMood
	}
	return prev.LastMood
}

// handleVoice serves cached sentence audio.
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	sessID := chi.URLParam(r, "sessionID")
	hash := chi.URLParam(r, "hash")

	var audio []byte
	if err := h.cache.Get(r.Context(), cache.VoiceKey(sessID, hash), &audio); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

func writeScene(w http.ResponseWriter, script string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(script))
}
