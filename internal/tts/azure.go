package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/glizzus/talkward/internal/config"
)

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const azureTokenTTL = 9 * time.Minute

// AzureProvider synthesizes speech through the Azure Cognitive Services
// Speech API. Access tokens expire every ten minutes, so the provider
// refreshes its token lazily.
type AzureProvider struct {
	cfg        config.AzureTTSConfig
	httpClient HTTPClient

	mu        sync.Mutex
	token     string
	tokenTime time.Time

	voices []Voice
}

func NewAzureProvider(cfg config.AzureTTSConfig, httpClient HTTPClient) *AzureProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AzureProvider{cfg: cfg, httpClient: httpClient}
}

func (a *AzureProvider) Shortname() string { return "azure" }
func (a *AzureProvider) Enabled() bool     { return a.cfg.Enabled }
func (a *AzureProvider) CharLimit() int    { return a.cfg.CharLimit }
func (a *AzureProvider) Format() Format    { return FormatOggOpus }
func (a *AzureProvider) Voices() []Voice   { return a.voices }

func (a *AzureProvider) tokenURL() string {
	return fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", a.cfg.Region)
}

func (a *AzureProvider) speechURL(path string) string {
	return fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices%s", a.cfg.Region, path)
}

// SelfCheck verifies the subscription key by issuing a token, then loads the
// voice catalogue from the voices/list endpoint.
func (a *AzureProvider) SelfCheck(ctx context.Context) error {
	if a.cfg.SubscriptionKey == "" {
		return fmt.Errorf("azure: AZURE_TTS_SUBSCRIPTION_KEY is not set")
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("azure: failed to issue access token: %w", err)
	}

	voices, err := a.fetchVoices(ctx, token)
	if err != nil {
		return fmt.Errorf("azure: failed to fetch voices: %w", err)
	}
	a.voices = voices
	return nil
}

func (a *AzureProvider) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Since(a.tokenTime) < azureTokenTTL {
		return a.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	a.token = string(body)
	a.tokenTime = time.Now()
	return a.token, nil
}

type azureVoiceRecord struct {
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
	LocalName string `json:"LocalName"`
	Gender    string `json:"Gender"`
	Locale    string `json:"Locale"`
}

func (a *AzureProvider) fetchVoices(ctx context.Context, token string) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.speechURL("/voices/list"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices/list returned %s", resp.Status)
	}

	var records []azureVoiceRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}

	voices := make([]Voice, 0, len(records))
	for _, rec := range records {
		gender := Gender(strings.ToUpper(rec.Gender))
		if gender != GenderMale && gender != GenderFemale {
			continue
		}
		alias := rec.LocalName
		if alias == "" {
			alias = rec.ShortName
		}
		voices = append(voices, Voice{
			Provider:      a.Shortname(),
			Language:      rec.Locale,
			Gender:        gender,
			ID:            rec.ShortName,
			Alias:         alias,
			TranslateCode: langBase(rec.Locale),
		})
	}
	return voices, nil
}

// Synthesize renders text via the Azure speech endpoint as ogg/opus.
func (a *AzureProvider) Synthesize(ctx context.Context, text string, opts SynthesisOptions) (io.ReadCloser, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("azure: failed to refresh access token: %w", err)
	}

	ssml := buildSSML(text, opts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.speechURL("/v1"), strings.NewReader(ssml))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "ogg-48khz-16bit-mono-opus")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("azure: synthesis returned %s", resp.Status)
	}
	return resp.Body, nil
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func buildSSML(text string, opts SynthesisOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<speak version="1.0" xml:lang="%s">`, opts.Voice.Language)
	fmt.Fprintf(&b, `<voice name="%s">`, opts.Voice.ID)
	fmt.Fprintf(&b, `<prosody pitch="%+.0f%%" rate="%.2f">`, opts.Pitch*10, speedOrDefault(opts.Speed))
	b.WriteString(ssmlEscaper.Replace(text))
	b.WriteString(`</prosody></voice></speak>`)
	return b.String()
}

func speedOrDefault(speed float64) float64 {
	if speed <= 0 {
		return 1
	}
	return speed
}

var _ Provider = (*AzureProvider)(nil)
