package scene

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/RibomBalt/webgal-llm-puppet/internal/cache"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

// Voicer synthesizes speech for one sentence. Implementations are
// best-effort: an error only means the scene ships without audio.
type Voicer interface {
	Synthesize(ctx context.Context, text string, vp preset.VoicePreset) ([]byte, error)
}

// Composer turns (sentence, mood) pairs into rendered, cached delivery
// units. It owns the motion selection and voice side of scene building so
// the producer and handlers share one code path.
type Composer struct {
	render *Renderer
	store  cache.Cache
	voice  Voicer
	log    *logging.Logger
}

// NewComposer wires a composer. voice may be nil to disable synthesis.
func NewComposer(render *Renderer, store cache.Cache, voice Voicer, log *logging.Logger) *Composer {
	return &Composer{render: render, store: store, voice: voice, log: log}
}

// Renderer exposes the underlying renderer for handlers that build pending
// and farewell scenes directly.
func (c *Composer) Renderer() *Renderer {
	return c.render
}

// VoiceHash derives the cache-key fragment for one sentence's audio.
func VoiceHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

// Compose renders the delivery unit for msgID and writes it to the cache.
// The written key is never touched again; message indices are allocated
// strictly increasing by the single producer of the turn.
func (c *Composer) Compose(ctx context.Context, p preset.Preset, sessID string, msgID int, pairs []SentenceMood, requiresInput bool) (DeliveryUnit, error) {
	lines := make([]Line, 0, len(pairs))
	for _, pair := range pairs {
		motion, expression, err := p.RandomMotion(pair.Mood)
		if err != nil {
			return DeliveryUnit{}, err
		}

		line := Line{Text: pair.Text, Motion: motion, Expression: expression}
		if voiceURL := c.synthesize(ctx, p, sessID, pair.Text); voiceURL != "" {
			line.VoiceURL = voiceURL
		}
		lines = append(lines, line)
	}

	listeningMotion, _, err := p.RandomMotion(ListeningMood)
	if err != nil {
		return DeliveryUnit{}, err
	}

	var nextURL string
	if requiresInput {
		nextURL = c.render.ChatURL(sessID, msgID+1, p.Name)
	} else {
		nextURL = c.render.NextURL(sessID, msgID+1, p.Name, 0, false)
	}

	script, err := c.render.Answer(p.Live2DModelPath, p.Speaker, lines, listeningMotion, nextURL, requiresInput)
	if err != nil {
		return DeliveryUnit{}, err
	}

	lastMood := ListeningMood
	if len(pairs) > 0 {
		lastMood = pairs[len(pairs)-1].Mood
	}

	unit := DeliveryUnit{
		SessionID:     sessID,
		MessageIndex:  msgID,
		Sentences:     pairs,
		RequiresInput: requiresInput,
		LastMood:      lastMood,
		NextIndex:     msgID + 1,
		Script:        script,
	}

	if err := c.store.Set(ctx, cache.SceneKey(sessID, msgID), unit); err != nil {
		return DeliveryUnit{}, err
	}
	c.log.Debug().Str("session", sessID).Int("msg", msgID).Bool("requiresInput", requiresInput).Msg("delivery unit cached")
	return unit, nil
}

// Pending renders the still-thinking placeholder. It is never cached: each
// poll may legitimately render a different idle animation.
func (c *Composer) Pending(p preset.Preset, lastMood, nextURL string) (string, error) {
	motion, _, err := p.RandomMotion(lastMood)
	if err != nil {
		return "", err
	}
	return c.render.Pending(p.Live2DModelPath, motion, nextURL)
}

// Bye renders the terminal farewell. message falls back to the preset's
// goodbye line when empty.
func (c *Composer) Bye(p preset.Preset, lastMood, message string) (string, error) {
	motion, expression, err := p.RandomMotion(lastMood)
	if err != nil {
		return "", err
	}
	if message == "" {
		message = p.ByeMessage
	}
	return c.render.Bye(p.Live2DModelPath, p.Speaker, message, motion, expression)
}

func (c *Composer) synthesize(ctx context.Context, p preset.Preset, sessID, text string) string {
	if c.voice == nil || p.Voice.Type == "" || p.Voice.Type == "none" {
		return ""
	}

	audio, err := c.voice.Synthesize(ctx, text, p.Voice)
	if err != nil {
		c.log.Warn().Err(err).Str("session", sessID).Msg("tts failed, shipping scene without voice")
		return ""
	}
	if len(audio) == 0 {
		return ""
	}

	hash := VoiceHash(text)
	if err := c.store.Set(ctx, cache.VoiceKey(sessID, hash), audio); err != nil {
		c.log.Warn().Err(err).Str("session", sessID).Msg("voice cache write failed")
		return ""
	}
	return c.render.VoiceURL(sessID, hash)
}
