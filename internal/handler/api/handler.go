// Package api exposes the JSON surface used by tooling and non-WebGAL
// consumers: preset discovery, session management, a direct SSE chat
// stream and archived turn history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/archive"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
	"github.com/RibomBalt/webgal-llm-puppet/pkg/utils"
)

// Answerer starts the streaming completion for one turn.
type Answerer interface {
	StreamAnswer(ctx context.Context, sess *chat.Session, userPrompt string) (*schema.StreamReader[*schema.Message], error)
}

// TurnReader reads archived turns for the history endpoint.
type TurnReader interface {
	Turns(ctx context.Context, sessID string) ([]archive.Turn, error)
}

// Handler API服务的HTTP处理器
type Handler struct {
	presets    preset.Store
	sessions   *session.Store
	ai         Answerer
	turns      TurnReader
	defaultBot string
	log        *logging.Logger
}

// New 创建API处理器。ai 和 turns 可以为 nil，相应端点会返回 503。
func New(presets preset.Store, sessions *session.Store, ai Answerer, turns TurnReader, defaultBot string, log *logging.Logger) *Handler {
	return &Handler{
		presets:    presets,
		sessions:   sessions,
		ai:         ai,
		turns:      turns,
		defaultBot: defaultBot,
		log:        log,
	}
}

// RegisterRoutes 注册API相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/presets", h.handleListPresets)
	r.Post("/newchat", h.handleNewChat)
	r.Post("/chat", h.handleChat)
	r.Get("/history/{sessionID}", h.handleHistory)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// presetSummary hides the system prompt from clients; only presentation
// fields leave the server.
type presetSummary struct {
	Name           string   `json:"name"`
	Speaker        string   `json:"speaker"`
	WelcomeMessage string   `json:"welcomeMessage"`
	Live2DModel    string   `json:"live2dModel"`
	Moods          []string `json:"moods"`
	HasVoice       bool     `json:"hasVoice"`
}

// handleListPresets 列出可用的木偶角色
func (h *Handler) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	var out []presetSummary
	for _, p := range h.presets.List() {
		if p.Name == preset.MoodAnalyzerName {
			continue
		}
		out = append(out, presetSummary{
			Name:           p.Name,
			Speaker:        p.Speaker,
			WelcomeMessage: p.WelcomeMessage,
			Live2DModel:    p.Live2DModelPath,
			Moods:          p.MoodLabels(),
			HasVoice:       p.Voice.Type != "" && p.Voice.Type != "none",
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// handleNewChat 创建会话，可覆盖预设的系统提示与欢迎语
func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Bot            string `json:"bot"`
		SystemPrompt   string `json:"systemPrompt"`
		WelcomeMessage string `json:"welcomeMessage"`
		MaxMemory      int    `json:"maxMemory"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bot := payload.Bot
	if bot == "" {
		bot = h.defaultBot
	}

	sess, err := h.sessions.CreateWith(r.Context(), bot, session.Overrides{
		SystemPrompt:   payload.SystemPrompt,
		WelcomeMessage: payload.WelcomeMessage,
		MaxMemory:      payload.MaxMemory,
	})
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.log.Error().Err(err).Msg("session save failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sess.Meta)
}

// handleChat streams one completion over SSE. This bypasses the scene
// pipeline entirely; the WebGAL client never calls it.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.ai == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "model is not configured")
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" || payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}

	sess, err := h.sessions.Load(r.Context(), payload.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.ai.StreamAnswer(r.Context(), sess, payload.Message)
	if err != nil {
		h.log.Error().Err(err).Str("session", payload.SessionID).Msg("model stream start failed")
		utils.RespondError(w, http.StatusBadGateway, "model stream failed")
		return
	}
	defer stream.Close()

	sess.AddMessage(chat.RoleUser, payload.Message, "")
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to persist session")
		return
	}

	utils.SetupSSEHeaders(w)

	var full strings.Builder
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.log.Error().Err(err).Str("session", payload.SessionID).Msg("model stream broke")
			utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": "stream interrupted"})
			return
		}
		if msg.Content == "" {
			continue
		}
		full.WriteString(msg.Content)
		utils.SendSSEChunk(w, flusher, map[string]string{"type": "delta", "content": msg.Content})
	}

	sess.AddMessage(chat.RoleAssistant, full.String(), "")
	if err := h.sessions.Save(r.Context(), sess); err != nil {
		h.log.Error().Err(err).Str("session", payload.SessionID).Msg("session save failed after stream")
	}

	utils.SendSSEEvent(w, flusher, "done", map[string]string{"content": full.String()})
}

// handleHistory 返回会话的归档回合
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "turn archive is not configured")
		return
	}

	sessID := chi.URLParam(r, "sessionID")
	turns, err := h.turns.Turns(r.Context(), sessID)
	if err != nil {
		h.log.Error().Err(err).Str("session", sessID).Msg("archive read failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if turns == nil {
		turns = []archive.Turn{}
	}
	utils.RespondJSON(w, http.StatusOK, turns)
}
