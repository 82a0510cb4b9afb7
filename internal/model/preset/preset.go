package preset

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// LLMParams are sampling parameters forwarded to the chat model.
type LLMParams struct {
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	PresencePenalty float64 `yaml:"presence_penalty" json:"presence_penalty"`
}

// VoicePreset selects the speech-synthesis vendor for a puppet. Type "none"
// (or anything unrecognized) disables voice.
type VoicePreset struct {
	Type      string `yaml:"type" json:"type"`
	API       string `yaml:"api" json:"api"`
	VoiceLine string `yaml:"voice_line" json:"voice_line"`
}

// Preset describes one puppet: its speaker name, prompts, Live2D figure and
// the closed mood set mapped to candidate motion:expression pairs.
type Preset struct {
	Name            string              `yaml:"-" json:"name"`
	LLMName         string              `yaml:"llm_name" json:"llm_name"`
	Speaker         string              `yaml:"speaker" json:"speaker"`
	SystemPrompt    string              `yaml:"system_prompt" json:"system_prompt"`
	WelcomeMessage  string              `yaml:"welcome_message" json:"welcome_message"`
	ByeMessage      string              `yaml:"bye_message" json:"bye_message"`
	Live2DModelPath string              `yaml:"live2d_model_path" json:"live2d_model_path"`
	Mood            map[string][]string `yaml:"mood" json:"mood"`
	Voice           VoicePreset         `yaml:"voice" json:"voice"`
	Params          LLMParams           `yaml:"llm_params" json:"llm_params"`
}

// MoodLabels returns the closed mood label set, sorted for determinism.
func (p *Preset) MoodLabels() []string {
	labels := make([]string, 0, len(p.Mood))
	for label := range p.Mood {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// HasMood reports whether label belongs to the preset's closed mood set.
func (p *Preset) HasMood(label string) bool {
	_, ok := p.Mood[label]
	return ok
}

// RandomMood picks a uniformly random label from the closed set, the
// designated fallback when classification fails or returns garbage.
func (p *Preset) RandomMood() string {
	labels := p.MoodLabels()
	if len(labels) == 0 {
		return ""
	}
	return labels[rand.Intn(len(labels))]
}

// RandomMotion resolves a mood label to one of its motion:expression pairs.
// Unknown labels degrade to a random mood so an animation always plays.
func (p *Preset) RandomMotion(mood string) (motion, expression string, err error) {
	choices, ok := p.Mood[mood]
	if !ok || len(choices) == 0 {
		mood = p.RandomMood()
		choices = p.Mood[mood]
		if len(choices) == 0 {
			return "", "", fmt.Errorf("preset %s has no motions for any mood", p.Name)
		}
	}

	pair := choices[rand.Intn(len(choices))]
	motion, expression, found := strings.Cut(pair, ":")
	if !found {
		return "", "", fmt.Errorf("preset %s has malformed motion entry %q for mood %s", p.Name, pair, mood)
	}
	return motion, expression, nil
}
