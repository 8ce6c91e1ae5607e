// Package translate normalizes search text into the language the embedding
// model was trained on.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/picsave/ai/cache"
	"github.com/hrygo/picsave/ai/metrics"
)

// Translator translates texts between languages. The result has the same
// length and order as texts.
type Translator interface {
	Translate(ctx context.Context, texts []string, source, target string) ([]string, error)
}

// ProviderError reports a failed translation provider call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s translation failed with status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s translation failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Identity returns texts unchanged. It is used when translation is disabled.
type Identity struct{}

func (Identity) Translate(_ context.Context, texts []string, _, _ string) ([]string, error) {
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}

// CachingTranslator memoizes a provider per (source, target, text).
// Concurrent misses for the same text may each reach the provider.
type CachingTranslator struct {
	next    Translator
	memo    cache.Memo
	name    string
	metrics *metrics.PrometheusExporter
}

// NewCachingTranslator wraps next with memo. name labels provider metrics.
func NewCachingTranslator(next Translator, memo cache.Memo, name string, m *metrics.PrometheusExporter) *CachingTranslator {
	return &CachingTranslator{next: next, memo: memo, name: name, metrics: m}
}

func cacheKey(source, target, text string) string {
	return source + "|" + target + "|" + text
}

func (c *CachingTranslator) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	out := make([]string, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.memo.Get(ctx, cacheKey(source, target, text)); ok {
			c.metrics.RecordCacheHit("translation")
			out[i] = v
			continue
		}
		c.metrics.RecordCacheMiss("translation")
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	start := time.Now()
	translated, err := c.next.Translate(ctx, missing, source, target)
	c.metrics.RecordTranslation(c.name, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	if len(translated) != len(missing) {
		return nil, &ProviderError{Provider: c.name, Err: fmt.Errorf("got %d translations for %d texts", len(translated), len(missing))}
	}

	for j, i := range missingIdx {
		out[i] = translated[j]
		c.memo.Set(ctx, cacheKey(source, target, missing[j]), translated[j])
	}
	slog.Debug("translated search text", "provider", c.name, "count", len(missing))
	return out, nil
}
