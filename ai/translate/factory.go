package translate

import (
	"github.com/pkg/errors"

	"github.com/hrygo/picsave/ai/cache"
	"github.com/hrygo/picsave/ai/metrics"
	"github.com/hrygo/picsave/internal/profile"
)

// NewFromProfile builds the configured provider wrapped with memo.
// Translation disabled yields Identity without a memo.
func NewFromProfile(p *profile.Profile, memo cache.Memo, m *metrics.PrometheusExporter) (Translator, error) {
	var provider Translator
	switch p.TranslationProvider {
	case "", "none":
		return Identity{}, nil
	case "yandex":
		if p.TranslationAPIKey == "" || p.TranslationFolderID == "" {
			return nil, errors.New("yandex translation requires api key and folder id")
		}
		provider = NewYandex(YandexConfig{
			APIKey:   p.TranslationAPIKey,
			FolderID: p.TranslationFolderID,
			Endpoint: p.TranslationBaseURL,
		})
	case "openai":
		if p.TranslationAPIKey == "" {
			return nil, errors.New("openai translation requires an api key")
		}
		provider = NewOpenAI(OpenAIConfig{
			APIKey:  p.TranslationAPIKey,
			BaseURL: p.TranslationBaseURL,
			Model:   p.TranslationModel,
		})
	default:
		return nil, errors.Errorf("unknown translation provider %q", p.TranslationProvider)
	}
	if memo == nil {
		memo = cache.NewMapMemo()
	}
	return NewCachingTranslator(provider, memo, p.TranslationProvider, m), nil
}
