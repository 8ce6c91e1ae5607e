package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/picsave/ai/cache"
	"github.com/hrygo/picsave/internal/profile"
)

func TestNewTranslationMemo(t *testing.T) {
	ctx := context.Background()

	memo, closer := newTranslationMemo(ctx, &profile.Profile{TranslationCache: profile.TranslationCacheMap})
	assert.IsType(t, &cache.MapMemo{}, memo)
	assert.Nil(t, closer)

	memo, closer = newTranslationMemo(ctx, &profile.Profile{TranslationCache: profile.TranslationCacheLRU, TranslationCacheSize: 10})
	assert.IsType(t, &cache.LRUMemo{}, memo)
	assert.Nil(t, closer)
}

func TestNewAppWithoutBot(t *testing.T) {
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:                "dev",
		Data:                dir,
		Driver:              "sqlite",
		DSN:                 filepath.Join(dir, "app.db"),
		EmbeddingBaseURL:    "http://127.0.0.1:1",
		TranslationProvider: "none",
	}
	require.NoError(t, p.Validate())

	a, err := newApp(context.Background(), p)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.telegram)
	assert.NotNil(t, a.server)
	assert.Equal(t, 50, a.service.PageSize())

	// Without a bot there is nothing to download media from.
	_, err = a.service.Reindex(context.Background())
	assert.Error(t, err)
}

func TestNewAppRejectsMisconfiguredTranslation(t *testing.T) {
	dir := t.TempDir()
	p := &profile.Profile{
		Mode:                "dev",
		Data:                dir,
		Driver:              "sqlite",
		DSN:                 filepath.Join(dir, "app.db"),
		TranslationProvider: "yandex",
		TranslationCache:    profile.TranslationCacheMap,
	}
	require.NoError(t, p.Validate())

	_, err := newApp(context.Background(), p)
	assert.Error(t, err)
}
