package mood

import (
	"context"
	"testing"

	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

func testPreset() preset.Preset {
	return preset.Preset{
		Name: "tester",
		Mood: map[string][]string{
			"高兴": {"m01:happy"},
			"伤心": {"m02:sad"},
		},
	}
}

func TestDisabledServiceFallsBackToClosedSet(t *testing.T) {
	svc, err := NewService(context.Background(), nil, "", logging.Nop())
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	if svc.Enabled() {
		t.Fatal("service without model must be disabled")
	}

	p := testPreset()
	label := svc.Classify(context.Background(), "随便一句话。", p)
	if !p.HasMood(label) {
		t.Fatalf("fallback label %q not in closed set", label)
	}
}

func TestSanitizeLabelAcceptsTrailingPunctuation(t *testing.T) {
	p := testPreset()
	label, ok := sanitizeLabel("高兴。", p)
	if !ok || label != "高兴" {
		t.Fatalf("expected accepted label 高兴, got %q ok=%v", label, ok)
	}
}

func TestSanitizeLabelRejectsUnknown(t *testing.T) {
	p := testPreset()
	if _, ok := sanitizeLabel("愤怒", p); ok {
		t.Fatal("label outside closed set must be rejected")
	}
	if _, ok := sanitizeLabel("   ", p); ok {
		t.Fatal("blank label must be rejected")
	}
}
