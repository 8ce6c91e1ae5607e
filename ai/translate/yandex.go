package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const yandexEndpoint = "https://translate.api.cloud.yandex.net/translate/v2/translate"

// YandexConfig configures the Yandex Cloud Translate v2 provider.
type YandexConfig struct {
	APIKey   string
	FolderID string
	// Endpoint overrides the public API URL.
	Endpoint string
	Timeout  time.Duration
}

// Yandex calls Yandex Cloud Translate with speller correction enabled.
type Yandex struct {
	config YandexConfig
	client *http.Client
}

func NewYandex(config YandexConfig) *Yandex {
	if config.Endpoint == "" {
		config.Endpoint = yandexEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Yandex{config: config, client: &http.Client{Timeout: config.Timeout}}
}

type yandexRequest struct {
	FolderID           string   `json:"folderId"`
	Texts              []string `json:"texts"`
	SourceLanguageCode string   `json:"sourceLanguageCode,omitempty"`
	TargetLanguageCode string   `json:"targetLanguageCode"`
	Speller            bool     `json:"speller"`
}

type yandexResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

func (y *Yandex) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	payload, err := json.Marshal(yandexRequest{
		FolderID:           y.config.FolderID,
		Texts:              texts,
		SourceLanguageCode: source,
		TargetLanguageCode: target,
		Speller:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode translation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create translation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+y.config.APIKey)

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "yandex", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &ProviderError{Provider: "yandex", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out yandexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProviderError{Provider: "yandex", Err: fmt.Errorf("malformed response: %w", err)}
	}
	if len(out.Translations) != len(texts) {
		return nil, &ProviderError{Provider: "yandex", Err: fmt.Errorf("got %d translations for %d texts", len(out.Translations), len(texts))}
	}

	result := make([]string, len(out.Translations))
	for i, t := range out.Translations {
		result[i] = t.Text
	}
	return result, nil
}
