package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/glizzus/talkward/internal/config"
)

const googleTranslateEndpoint = "https://translation.googleapis.com/language/translate/v2"

// HTTPClient is the part of http.Client we use. Tests substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GoogleTranslator calls the Cloud Translation v2 REST API with an API key.
type GoogleTranslator struct {
	apiKey string
	client HTTPClient
}

func NewGoogleTranslator(cfg config.TranslateConfig, client HTTPClient) *GoogleTranslator {
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleTranslator{
		apiKey: cfg.APIKey,
		client: client,
	}
}

func (g *GoogleTranslator) Translate(ctx context.Context, text, target string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"q":      text,
		"target": target,
		"format": "text",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode translate request: %w", err)
	}

	endpoint := googleTranslateEndpoint + "?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Translations []struct {
				TranslatedText string `json:"translatedText"`
			} `json:"translations"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode translate response: %w", err)
	}
	if len(payload.Data.Translations) == 0 {
		return "", fmt.Errorf("translate response contained no translations")
	}
	return payload.Data.Translations[0].TranslatedText, nil
}

var _ Translator = (*GoogleTranslator)(nil)
