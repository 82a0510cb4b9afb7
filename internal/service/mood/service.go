// Package mood maps one sentence to one label from a puppet's closed mood
// set, via a short-lived secondary completion. Mood is best-effort by
// contract: every failure path degrades to a random label and never
// surfaces an error into the response pipeline.
package mood

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

// Service 使用大模型对单句台词做情绪分类，模型不可用时退化为随机情绪。
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	log        *logging.Logger
}

// NewService 创建情绪分类服务。chatModel 可复用主对话的模型实例；传 nil 则服务
// 仅提供随机回退。systemPrompt 来自 mood_analyzer 预设，定义了封闭情绪词表。
func NewService(ctx context.Context, chatModel model.ChatModel, systemPrompt string, log *logging.Logger) (*Service, error) {
	svc := &Service{log: log}
	if chatModel == nil || systemPrompt == "" {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{sentence}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mood classifier chain: %w", err)
	}

	svc.enabled = true
	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回分类器是否真正调用模型。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify returns a label from p's closed mood set for the sentence. An
// empty, unrecognized, or failed classification yields a random label.
func (s *Service) Classify(ctx context.Context, sentence string, p preset.Preset) string {
	if !s.Enabled() {
		return p.RandomMood()
	}

	msg, err := s.classifier.Invoke(ctx, map[string]any{"sentence": sentence})
	if err != nil {
		s.log.Warn().Err(err).Msg("mood classifier invoke failed, using random fallback")
		return p.RandomMood()
	}
	if msg == nil {
		return p.RandomMood()
	}

	label, ok := sanitizeLabel(msg.Content, p)
	if !ok {
		s.log.Debug().Str("raw", msg.Content).Msg("mood classifier returned unknown label")
		return p.RandomMood()
	}

	s.log.Debug().Str("sentence", sentence).Str("mood", label).Msg("mood classified")
	return label
}

// sanitizeLabel normalizes a raw model response and checks it against the
// preset's closed set. Models sometimes echo the label with trailing
// punctuation; that much is forgiven, anything else is not.
func sanitizeLabel(raw string, p preset.Preset) (string, bool) {
	label := strings.TrimSpace(raw)
	label = strings.TrimRight(label, "。！？!?.,， ")
	if label == "" {
		return "", false
	}
	if !p.HasMood(label) {
		return "", false
	}
	return label, true
}
