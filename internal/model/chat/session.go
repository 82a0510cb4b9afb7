package chat

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

// SessionMeta carries the non-growing part of a session, persisted as one
// cache document separate from the transcript.
type SessionMeta struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	PresetName   string           `json:"presetName"`
	SystemPrompt string           `json:"systemPrompt"`
	Params       preset.LLMParams `json:"llmParams"`
	MaxMemory    int              `json:"maxMemory"`
	MessageCount int              `json:"messageCount"`
	// NextDeliveryIndex is where the next turn's first delivery unit will be
	// cached. Indices are assigned strictly increasing and never reused.
	NextDeliveryIndex int       `json:"nextDeliveryIndex"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Session is one conversation with a puppet. It is owned by exactly one
// request or background task at a time and travels through the cache between
// operations, never through shared process memory.
type Session struct {
	Meta     SessionMeta `json:"meta"`
	Messages []Message   `json:"messages"`

	// nonPersisted counts trailing messages not yet written to the store.
	nonPersisted int
}

// NewFromPreset builds a fresh session seeded with the preset's prompts. The
// welcome message, when present, becomes the first assistant message.
func NewFromPreset(p preset.Preset, maxMemory int) *Session {
	if maxMemory <= 0 {
		maxMemory = 30
	}

	sess := &Session{
		Meta: SessionMeta{
			ID:           uuid.NewString(),
			Name:         fmt.Sprintf("%s.%s.%08x", p.Speaker, p.LLMName, rand.Uint32()),
			PresetName:   p.Name,
			SystemPrompt: p.SystemPrompt,
			Params:       p.Params,
			MaxMemory:    maxMemory,
			CreatedAt:    time.Now().UTC(),
		},
	}

	if p.WelcomeMessage != "" {
		sess.AddMessage(RoleAssistant, p.WelcomeMessage, "")
	}
	return sess
}

// Restore rebuilds a session from its persisted meta and transcript window.
func Restore(meta SessionMeta, messages []Message) *Session {
	return &Session{Meta: meta, Messages: messages}
}

// AddMessage appends an immutable message and advances the counters.
func (s *Session) AddMessage(role Role, content, mood string) {
	s.Messages = append(s.Messages, Message{
		ID:        uuid.NewString(),
		SessionID: s.Meta.ID,
		Role:      role,
		Content:   content,
		Mood:      mood,
		CreatedAt: time.Now().UTC(),
	})
	s.Meta.MessageCount++
	s.nonPersisted++
}

// PendingMessages returns the trailing messages added since the last
// MarkPersisted, paired with their absolute transcript positions.
func (s *Session) PendingMessages() (start int, messages []Message) {
	if s.nonPersisted == 0 {
		return s.Meta.MessageCount, nil
	}
	return s.Meta.MessageCount - s.nonPersisted, s.Messages[len(s.Messages)-s.nonPersisted:]
}

// MarkPersisted resets the dirty-message counter after a successful save.
func (s *Session) MarkPersisted() {
	s.nonPersisted = 0
}

// History returns the most recent messages bounded by MaxMemory, oldest
// first, for building the model prompt.
func (s *Session) History() []Message {
	limit := s.Meta.MaxMemory
	if limit <= 0 || limit > len(s.Messages) {
		limit = len(s.Messages)
	}
	return s.Messages[len(s.Messages)-limit:]
}
