// Package scene renders WebGAL scene scripts. Every HTTP response the WebGAL
// client sees is one of these scripts; even failures are valid scenes so the
// narration never visibly breaks.
package scene

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

const answerTemplate = `changeFigure:{{.Figure}} -next;
{{- range .Lines}}
{{$.Speaker}}:{{.Text}} -motion={{.Motion}} -expression={{.Expression}}{{if .VoiceURL}} -voice={{.VoiceURL}}{{end}};
{{- end}}
setAnimation:{{.ListeningMotion}} -target=fig-center -next;
changeScene:{{.NextURL}};
`

const newInputTemplate = `changeFigure:{{.Figure}} -next;
{{- range .Lines}}
{{$.Speaker}}:{{.Text}} -motion={{.Motion}} -expression={{.Expression}}{{if .VoiceURL}} -voice={{.VoiceURL}}{{end}};
{{- end}}
setAnimation:{{.ListeningMotion}} -target=fig-center -next;
getUserInput:prompt -title=对{{.Speaker}}说 -buttonText=发送;
setVar:pending=1;
changeScene:{{.NextURL}};
`

const pendingTemplate = `changeFigure:{{.Figure}} -next;
setAnimation:{{.Motion}} -target=fig-center -next;
wait:1000;
changeScene:{{.NextURL}};
`

const byeTemplate = `changeFigure:{{.Figure}} -next;
{{.Speaker}}:{{.Message}} -motion={{.Motion}} -expression={{.Expression}};
end;
`

const errorTemplate = `:连接出现异常，请重新开始对话。;
end;
`

// Line is one rendered dialogue line of an answer scene.
type Line struct {
	Text       string
	Motion     string
	Expression string
	VoiceURL   string
}

// Renderer fills scene templates and builds the jump URLs that chain one
// numbered fetch to the next.
type Renderer struct {
	baseURL string
	tmpl    *template.Template
}

// NewRenderer parses the built-in templates. baseURL must be reachable from
// the WebGAL client since it is embedded into every changeScene jump.
func NewRenderer(baseURL string) (*Renderer, error) {
	root := template.New("scene")
	for name, text := range map[string]string{
		"answer":    answerTemplate,
		"new_input": newInputTemplate,
		"pending":   pendingTemplate,
		"bye":       byeTemplate,
		"error":     errorTemplate,
	} {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("parse scene template %s: %w", name, err)
		}
	}
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/"), tmpl: root}, nil
}

// NextURL points at the poller for one message index. n carries the
// client-tracked pending counter; firstAnswer forces the listening idle mood
// on the first poll after a turn start.
func (r *Renderer) NextURL(sessID string, msgID int, bot string, n int, firstAnswer bool) string {
	u := fmt.Sprintf("%s/webgal/next.txt/%s/%d?bot=%s", r.baseURL, sessID, msgID, url.QueryEscape(bot))
	if n > 0 {
		u += fmt.Sprintf("&n=%d", n)
	}
	if firstAnswer {
		u += "&first_answer=1"
	}
	return u
}

// ChatURL points at the turn-start endpoint. The p and pending query values
// are WebGAL template placeholders substituted client-side after user input;
// a prefetch fetches them unsubstituted, which the handler detects.
func (r *Renderer) ChatURL(sessID string, msgID int, bot string) string {
	return fmt.Sprintf("%s/webgal/chat.txt/%s/%d?p={prompt}&pending={pending}&bot=%s", r.baseURL, sessID, msgID, url.QueryEscape(bot))
}

// ChatPlainURL points at chat.txt without placeholders, used by the pending
// scene served to a prefetch so the dead branch keeps idling harmlessly.
func (r *Renderer) ChatPlainURL(sessID string, msgID int, bot string) string {
	return fmt.Sprintf("%s/webgal/chat.txt/%s/%d?bot=%s", r.baseURL, sessID, msgID, url.QueryEscape(bot))
}

// VoiceURL points at the cached audio for one sentence.
func (r *Renderer) VoiceURL(sessID, hash string) string {
	return fmt.Sprintf("%s/webgal/voice.mp3/%s/%s", r.baseURL, sessID, hash)
}

type answerParams struct {
	Figure          string
	Speaker         string
	Lines           []Line
	ListeningMotion string
	NextURL         string
}

// Answer renders the scene for one delivery unit. requiresInput selects the
// variant that prompts the user and jumps back to chat.txt.
func (r *Renderer) Answer(figure, speaker string, lines []Line, listeningMotion, nextURL string, requiresInput bool) (string, error) {
	name := "answer"
	if requiresInput {
		name = "new_input"
	}
	return r.execute(name, answerParams{
		Figure:          figure,
		Speaker:         speaker,
		Lines:           lines,
		ListeningMotion: listeningMotion,
		NextURL:         nextURL,
	})
}

type pendingParams struct {
	Figure  string
	Motion  string
	NextURL string
}

// Pending renders the still-thinking placeholder that re-polls nextURL.
func (r *Renderer) Pending(figure, motion, nextURL string) (string, error) {
	return r.execute("pending", pendingParams{Figure: figure, Motion: motion, NextURL: nextURL})
}

type byeParams struct {
	Figure     string
	Speaker    string
	Message    string
	Motion     string
	Expression string
}

// Bye renders the terminal farewell scene, both for a normal goodbye and for
// the poller's exhaustion outcome.
func (r *Renderer) Bye(figure, speaker, message, motion, expression string) (string, error) {
	return r.execute("bye", byeParams{
		Figure:     figure,
		Speaker:    speaker,
		Message:    message,
		Motion:     motion,
		Expression: expression,
	})
}

// ErrorScene renders the session-not-found script.
func (r *Renderer) ErrorScene() string {
	out, err := r.execute("error", nil)
	if err != nil {
		return "end;"
	}
	return out
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var sb strings.Builder
	if err := r.tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render scene %s: %w", name, err)
	}
	return sb.String(), nil
}
