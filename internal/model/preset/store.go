package preset

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes preset retrieval for HTTP handlers and services.
type Store interface {
	List() []Preset
	Get(name string) (Preset, bool)
}

// MemoryStore implements Store with an in-memory map loaded at startup.
type MemoryStore struct {
	items map[string]Preset
}

// NewMemoryStore returns a MemoryStore holding the supplied presets.
func NewMemoryStore(items []Preset) *MemoryStore {
	m := make(map[string]Preset, len(items))
	for _, item := range items {
		m[item.Name] = item
	}
	return &MemoryStore{items: m}
}

// LoadFiles parses a colon-separated list of YAML preset files on top of the
// seed presets. Missing files are skipped; later files override earlier
// entries with the same name, so a dev file can shadow production presets.
func LoadFiles(files string) (*MemoryStore, error) {
	store := NewMemoryStore(Seed())

	for _, name := range strings.Split(files, ":") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		raw, err := os.ReadFile(name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read preset file %s: %w", name, err)
		}

		parsed := map[string]Preset{}
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("parse preset file %s: %w", name, err)
		}
		for key, p := range parsed {
			p.Name = key
			store.items[key] = p
		}
	}

	return store, nil
}

// List returns presets sorted by name.
func (s *MemoryStore) List() []Preset {
	out := make([]Preset, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up a preset by name.
func (s *MemoryStore) Get(name string) (Preset, bool) {
	item, ok := s.items[name]
	return item, ok
}

// MoodAnalyzerName is the reserved preset driving sentence classification.
const MoodAnalyzerName = "mood_analyzer"

// Seed provides built-in presets so the service runs without preset files:
// one Live2D puppet and the ephemeral mood analyzer.
func Seed() []Preset {
	return []Preset{
		{
			Name:            "sakiko",
			LLMName:         "ark",
			Speaker:         "祥子",
			SystemPrompt:    "你是丰川祥子，乐队的键盘手。说话简洁、礼貌而有距离感，偶尔流露疲惫。请用中文回答，每句话不要太长。",
			WelcomeMessage:  "您好，我是祥子。今天想聊些什么呢？",
			ByeMessage:      "那么，今天就到这里吧。再见。",
			Live2DModelPath: "figure/sakiko/sakiko.model3.json",
			Mood: map[string][]string{
				"高兴":        {"m01:happy", "m02:smile"},
				"伤心":        {"m03:sad", "m04:down"},
				"生气":        {"m05:angry"},
				"惊讶":        {"m06:surprised"},
				"平静":        {"m07:neutral", "m08:idle"},
				"listening": {"m08:listen"},
			},
			Voice: VoicePreset{Type: "none"},
			Params: LLMParams{
				Temperature:     1.5,
				PresencePenalty: 1.0,
			},
		},
		{
			Name:         MoodAnalyzerName,
			LLMName:      "ark",
			Speaker:      "mood",
			SystemPrompt: "你是情绪分析助手。用户会给出一句台词，请从下列情绪词中选择最贴切的一个并只输出该词：高兴、伤心、生气、惊讶、平静。不要输出任何其他内容。",
			Params: LLMParams{
				Temperature: 0.2,
			},
		},
	}
}
