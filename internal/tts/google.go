package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/glizzus/talkward/internal/config"
	"github.com/glizzus/talkward/internal/util"
)

const googleTTSBaseURL = "https://texttospeech.googleapis.com/v1"

// GoogleProvider synthesizes speech through the Google Cloud Text-to-Speech
// REST API using an API key.
type GoogleProvider struct {
	cfg        config.GoogleTTSConfig
	httpClient HTTPClient
	voices     []Voice
}

func NewGoogleProvider(cfg config.GoogleTTSConfig, httpClient HTTPClient) *GoogleProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleProvider{cfg: cfg, httpClient: httpClient}
}

func (g *GoogleProvider) Shortname() string { return "google" }
func (g *GoogleProvider) Enabled() bool     { return g.cfg.Enabled }
func (g *GoogleProvider) CharLimit() int    { return g.cfg.CharLimit }
func (g *GoogleProvider) Format() Format    { return FormatOggOpus }
func (g *GoogleProvider) Voices() []Voice   { return g.voices }

// SelfCheck verifies the API key by listing voices and loads the catalogue.
func (g *GoogleProvider) SelfCheck(ctx context.Context) error {
	if g.cfg.APIKey == "" {
		return fmt.Errorf("google: GOOGLE_TTS_API_KEY is not set")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleTTSBaseURL+"/voices?key="+g.cfg.APIKey, nil)
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: failed to list voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google: voices endpoint returned %s", resp.Status)
	}

	var payload struct {
		Voices []struct {
			Name          string   `json:"name"`
			LanguageCodes []string `json:"languageCodes"`
			SSMLGender    string   `json:"ssmlGender"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("google: failed to decode voices: %w", err)
	}

	voices := make([]Voice, 0, len(payload.Voices))
	for _, rec := range payload.Voices {
		gender := Gender(rec.SSMLGender)
		if gender != GenderMale && gender != GenderFemale {
			continue
		}
		if len(rec.LanguageCodes) == 0 {
			continue
		}
		lang := rec.LanguageCodes[0]
		voices = append(voices, Voice{
			Provider:      g.Shortname(),
			Language:      lang,
			Gender:        gender,
			ID:            rec.Name,
			Alias:         rec.Name,
			TranslateCode: langBase(lang),
		})
	}
	g.voices = voices
	return nil
}

// Synthesize renders text. Google returns base64 audio in a JSON envelope,
// so the whole clip is decoded up front rather than streamed.
func (g *GoogleProvider) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (io.ReadCloser, error) {
	request := map[string]any{
		"input": map[string]string{"text": text},
		"voice": map[string]string{
			"languageCode": opts.Voice.Language,
			"name":         opts.Voice.ID,
		},
		"audioConfig": map[string]any{
			"audioEncoding": "OGG_OPUS",
			"pitch":         util.Clamp(opts.Pitch, -10, 10),
			"speakingRate":  util.Clamp(speedOrDefault(opts.Speed), 0.25, 4),
		},
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTTSBaseURL+"/text:synthesize?key="+g.cfg.APIKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: synthesis returned %s", resp.Status)
	}

	var payload struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("google: failed to decode synthesis response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(payload.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("google: failed to decode audio content: %w", err)
	}
	return io.NopCloser(bytes.NewReader(audio)), nil
}

var _ Provider = (*GoogleProvider)(nil)
