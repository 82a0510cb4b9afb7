package scene

import (
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("http://127.0.0.1:10228/")
	if err != nil {
		t.Fatalf("NewRenderer err: %v", err)
	}
	return r
}

func TestNextURL(t *testing.T) {
	r := newTestRenderer(t)

	got := r.NextURL("sess", 3, "sakiko", 0, false)
	if got != "http://127.0.0.1:10228/webgal/next.txt/sess/3?bot=sakiko" {
		t.Fatalf("unexpected url: %q", got)
	}

	got = r.NextURL("sess", 3, "sakiko", 2, true)
	if !strings.Contains(got, "n=2") || !strings.Contains(got, "first_answer=1") {
		t.Fatalf("counter or first_answer flag missing: %q", got)
	}
}

func TestChatURLCarriesPlaceholders(t *testing.T) {
	r := newTestRenderer(t)

	got := r.ChatURL("sess", 4, "sakiko")
	if !strings.Contains(got, "p={prompt}") || !strings.Contains(got, "pending={pending}") {
		t.Fatalf("webgal placeholders missing: %q", got)
	}

	plain := r.ChatPlainURL("sess", 4, "sakiko")
	if strings.Contains(plain, "{prompt}") || strings.Contains(plain, "{pending}") {
		t.Fatalf("plain url must not carry placeholders: %q", plain)
	}
}

func TestAnswerScene(t *testing.T) {
	r := newTestRenderer(t)

	lines := []Line{
		{Text: "你好！", Motion: "m01", Expression: "happy"},
		{Text: "今天天气不错。", Motion: "m07", Expression: "neutral", VoiceURL: "http://x/voice.mp3/s/abc"},
	}
	got, err := r.Answer("figure/sakiko.model3.json", "祥子", lines, "m08", "http://next", false)
	if err != nil {
		t.Fatalf("Answer err: %v", err)
	}

	if !strings.Contains(got, "changeFigure:figure/sakiko.model3.json -next;") {
		t.Fatalf("figure line missing:\n%s", got)
	}
	if !strings.Contains(got, "祥子:你好！ -motion=m01 -expression=happy;") {
		t.Fatalf("first dialogue line wrong:\n%s", got)
	}
	if !strings.Contains(got, "-voice=http://x/voice.mp3/s/abc;") {
		t.Fatalf("voice flag missing:\n%s", got)
	}
	if !strings.Contains(got, "changeScene:http://next;") {
		t.Fatalf("scene chain missing:\n%s", got)
	}
	if strings.Contains(got, "getUserInput:") {
		t.Fatalf("mid-turn scene must not prompt for input:\n%s", got)
	}
}

func TestAnswerSceneWithInput(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.Answer("fig", "祥子", nil, "m08", "http://next", true)
	if err != nil {
		t.Fatalf("Answer err: %v", err)
	}
	if !strings.Contains(got, "getUserInput:prompt -title=对祥子说 -buttonText=发送;") {
		t.Fatalf("input prompt missing:\n%s", got)
	}
	if !strings.Contains(got, "setVar:pending=1;") {
		t.Fatalf("pending flag missing:\n%s", got)
	}
}

func TestPendingScene(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.Pending("fig", "m08", "http://poll")
	if err != nil {
		t.Fatalf("Pending err: %v", err)
	}
	if !strings.Contains(got, "wait:1000;") || !strings.Contains(got, "changeScene:http://poll;") {
		t.Fatalf("pending scene malformed:\n%s", got)
	}
}

func TestByeSceneEndsGame(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.Bye("fig", "祥子", "再见。", "m03", "sad")
	if err != nil {
		t.Fatalf("Bye err: %v", err)
	}
	if !strings.Contains(got, "祥子:再见。 -motion=m03 -expression=sad;") {
		t.Fatalf("farewell line wrong:\n%s", got)
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "end;") {
		t.Fatalf("bye scene must end the game:\n%s", got)
	}
}

func TestErrorScene(t *testing.T) {
	r := newTestRenderer(t)
	got := r.ErrorScene()
	if !strings.Contains(got, "end;") {
		t.Fatalf("error scene must end the game: %q", got)
	}
}
