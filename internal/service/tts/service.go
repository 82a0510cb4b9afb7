// Package tts synthesizes sentence audio through the vendor selected by a
// puppet's voice preset. Synthesis is strictly best-effort: callers treat
// any error as "no audio" and the scene ships silent.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/RibomBalt/webgal-llm-puppet/internal/config"
	"github.com/RibomBalt/webgal-llm-puppet/internal/logging"
	"github.com/RibomBalt/webgal-llm-puppet/internal/model/preset"
)

// Service calls the configured speech-synthesis vendors over HTTP.
type Service struct {
	client *http.Client
	log    *logging.Logger
}

// NewService builds the HTTP client, honoring the optional proxy used to
// reach public synthesis endpoints.
func NewService(cfg config.TTSConfig, log *logging.Logger) (*Service, error) {
	transport := http.DefaultTransport
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", cfg.ProxyURL, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Service{
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:    log,
	}, nil
}

// Synthesize returns MP3 audio for text, or nil when the preset disables
// voice. Unrecognized vendor types count as disabled.
func (s *Service) Synthesize(ctx context.Context, text string, vp preset.VoicePreset) ([]byte, error) {
	switch vp.Type {
	case "fish":
		return s.fishSpeech(ctx, text, vp)
	case "mahiruoshi":
		return s.bertVits(ctx, text, vp.VoiceLine)
	default:
		return nil, nil
	}
}

// fishSpeech posts to a fish-speech server. Most parameters stay fixed;
// only the text and the reference voice vary per preset.
func (s *Service) fishSpeech(ctx context.Context, text string, vp preset.VoicePreset) ([]byte, error) {
	payload := map[string]any{
		"text":               text,
		"chunk_length":       600,
		"format":             "mp3",
		"mp3_bitrate":        128,
		"references":         []any{},
		"reference_id":       vp.VoiceLine,
		"use_memory_cache":   "never",
		"normalize":          true,
		"latency":            "normal",
		"streaming":          false,
		"max_new_tokens":     4096,
		"top_p":              0.7,
		"repetition_penalty": 1.2,
		"temperature":        0.7,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vp.API+"/v1/tts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req)
}

// bertVits fetches audio from the public bert-vits2 space.
func (s *Service) bertVits(ctx context.Context, text, speaker string) ([]byte, error) {
	endpoint := fmt.Sprintf(
		"https://mahiruoshi-bert-vits2-api.hf.space/?text=%s&speaker=%s",
		url.QueryEscape(text), url.QueryEscape(speaker),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("endpoint", endpoint).Msg("requesting bert-vits2 audio")
	return s.do(req)
}

func (s *Service) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts endpoint returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
