// Package producer drains one model stream per turn, cutting the token
// flow into sentences and publishing each as a cached delivery unit the
// poll endpoint can pick up. It runs detached from the request that
// started it: the HTTP handler returns immediately and the client
// discovers progress by polling.
package producer

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/chat"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
	"github.com/RibomBalt/webgal-llm-puppet/internal/scene"
	"github.com/RibomBalt/webgal-llm-puppet/internal/segment"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/archive"
	"github.com/RibomBalt/webgal-llm-puppet/internal/service/session"
)

// Classifier labels one sentence with a mood from the preset's closed set.
// It never fails; implementations fall back to a random label.
type Classifier interface {
	Classify(ctx context.Context, sentence string, p preset.Preset) string
}

// Archiver records a completed turn durably. Archiving is best-effort and
// never blocks delivery.
type Archiver interface {
	AppendTurn(ctx context.Context, turn archive.Turn) error
}

// Producer owns the write side of a turn: it is the only goroutine that
// mutates the session or allocates delivery indices while it runs.
type Producer struct {
	moods    Classifier
	composer *scene.Composer
	sessions *session.Store
	archive  Archiver
	log      *logging.Logger
}

// New wires a producer. archiver may be nil to skip durable turn records.
func New(moods Classifier, composer *scene.Composer, sessions *session.Store, archiver Archiver, log *logging.Logger) *Producer {
	return &Producer{moods: moods, composer: composer, sessions: sessions, archive: archiver, log: log}
}

// Run consumes the stream for one turn. Delivery units are cached at
// startIndex, startIndex+1, ... as sentences complete; the closing unit
// always carries RequiresInput so the client returns control to the
// player even when the model produced nothing.
//
// The session passed in already contains the user prompt and is owned
// exclusively by this producer until Run returns.
func (p *Producer) Run(ctx context.Context, sess *chat.Session, pst preset.Preset, userPrompt string, startIndex int, stream *schema.StreamReader[*schema.Message]) {
	defer stream.Close()

	index := startIndex
	buffer := ""
	lastMood := scene.ListeningMood
	var full strings.Builder
	var delivered []scene.SentenceMood

	emit := func(sentence string) bool {
		mood := p.moods.Classify(ctx, sentence, pst)
		pair := scene.SentenceMood{Text: sentence, Mood: mood}
		if _, err := p.composer.Compose(ctx, pst, sess.Meta.ID, index, []scene.SentenceMood{pair}, false); err != nil {
			p.log.Error().Err(err).Str("session", sess.Meta.ID).Int("msg", index).Msg("delivery unit write failed, abandoning turn")
			return false
		}
		delivered = append(delivered, pair)
		lastMood = mood
		index++
		return true
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Ship whatever already arrived; the closing unit below still
			// hands control back to the player.
			p.log.Error().Err(err).Str("session", sess.Meta.ID).Msg("model stream broke mid turn")
			break
		}
		if msg.Content == "" {
			// Role-only or usage frames carry no text.
			continue
		}

		full.WriteString(msg.Content)
		buffer += msg.Content
		if !segment.ContainsTerminator(msg.Content) {
			continue
		}

		parts := segment.Split(buffer)
		buffer = ""
		if n := len(parts); n > 0 && !segment.IsComplete(parts[n-1]) {
			buffer = parts[n-1]
			parts = parts[:n-1]
		}
		for _, sentence := range parts {
			if !emit(sentence) {
				return
			}
		}
	}

	// Leftover fragment never saw its terminator; deliver it as-is.
	for _, sentence := range segment.Split(buffer) {
		if !emit(sentence) {
			return
		}
	}

	if _, err := p.composer.Compose(ctx, pst, sess.Meta.ID, index, nil, true); err != nil {
		p.log.Error().Err(err).Str("session", sess.Meta.ID).Int("msg", index).Msg("closing unit write failed")
		return
	}

	answer := full.String()
	sess.AddMessage(chat.RoleAssistant, answer, lastMood)
	sess.Meta.NextDeliveryIndex = index + 1
	if err := p.sessions.Save(ctx, sess); err != nil {
		p.log.Error().Err(err).Str("session", sess.Meta.ID).Msg("session save failed after turn")
		return
	}

	if p.archive != nil {
		turn := archive.Turn{
			SessionID:  sess.Meta.ID,
			PresetName: pst.Name,
			Prompt:     userPrompt,
			Answer:     answer,
			LastMood:   lastMood,
			Sentences:  delivered,
			CreatedAt:  time.Now().UTC(),
		}
		if err := p.archive.AppendTurn(ctx, turn); err != nil {
			p.log.Warn().Err(err).Str("session", sess.Meta.ID).Msg("turn archive write failed")
		}
	}

	p.log.Info().
		Str("session", sess.Meta.ID).
		Int("sentences", len(delivered)).
		Int("firstUnit", startIndex).
		Int("lastUnit", index).
		Msg("turn complete")
}
