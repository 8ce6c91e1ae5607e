package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/picsave/ai/cache"
	"github.com/hrygo/picsave/ai/embedding"
	"github.com/hrygo/picsave/ai/metrics"
	"github.com/hrygo/picsave/ai/translate"
	"github.com/hrygo/picsave/internal/profile"
	"github.com/hrygo/picsave/plugin/chat_apps/channels/telegram"
	"github.com/hrygo/picsave/server"
	"github.com/hrygo/picsave/server/auth"
	"github.com/hrygo/picsave/server/service/media"
	"github.com/hrygo/picsave/store"
	"github.com/hrygo/picsave/store/db"
)

const translationCacheTTL = 30 * 24 * time.Hour

// app is the wired process: store, providers, service and transports.
type app struct {
	profile  *profile.Profile
	store    *store.Store
	service  *media.MediaService
	server   *server.Server
	telegram *telegram.TelegramChannel
	closers  []func() error
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func newTranslationMemo(ctx context.Context, p *profile.Profile) (cache.Memo, func() error) {
	switch p.TranslationCache {
	case profile.TranslationCacheRedis:
		client := cache.NewRedisClient(p.RedisAddr)
		memo := cache.NewRedisMemo(client, "picsave:translate:", translationCacheTTL)
		if err := memo.Ping(ctx); err != nil {
			slog.Warn("redis translation cache unreachable, lookups will miss", "addr", p.RedisAddr, "error", err)
		}
		return memo, client.Close
	case profile.TranslationCacheMap:
		return cache.NewMapMemo(), nil
	default:
		return cache.NewLRUMemo(p.TranslationCacheSize, translationCacheTTL), nil
	}
}

func newApp(ctx context.Context, p *profile.Profile) (*app, error) {
	a := &app{profile: p}
	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	s, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)

	gateway := embedding.NewGateway(
		embedding.NewHTTPTransport(p.EmbeddingBaseURL, time.Duration(p.EmbeddingTimeout)*time.Second),
		embedding.Config{
			Dimension:    p.EmbeddingDim,
			Concurrency:  p.EmbeddingConcurrency,
			MaxImageSide: p.EmbeddingMaxSide,
			Metrics:      exporter,
		},
	)

	var memo cache.Memo
	if p.IsTranslationEnabled() {
		var closeMemo func() error
		memo, closeMemo = newTranslationMemo(ctx, p)
		if closeMemo != nil {
			a.closers = append(a.closers, closeMemo)
		}
	}
	translator, err := translate.NewFromProfile(p, memo, exporter)
	if err != nil {
		a.Close()
		return nil, err
	}

	tgConfig := &telegram.TelegramConfig{
		BotToken:          p.TelegramBotToken,
		AdminChatID:       p.AdminChatID,
		RequestsPerSecond: p.TelegramRPS,
	}
	var (
		client  *telegram.Client
		fetcher media.Fetcher
	)
	if p.TelegramBotToken != "" {
		client, err = telegram.NewClient(tgConfig)
		if err != nil {
			a.Close()
			return nil, err
		}
		fetcher = client
	}

	emptyOrder := store.OrderPopularity
	if p.RankingMode == profile.RankingRecency {
		emptyOrder = store.OrderRecency
	}
	a.service, err = media.NewService(s, gateway, translator, fetcher, exporter, media.Config{
		PageSize:        p.PageSize,
		Metric:          store.DistanceMetric(p.DistanceMetric),
		EmptyQueryOrder: emptyOrder,
		SourceLang:      p.TranslationSourceLang,
		TargetLang:      p.TranslationTargetLang,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if client != nil {
		a.telegram = telegram.NewTelegramChannel(client, tgConfig, a.service)
	}
	a.server = server.NewServer(p, a.service, exporter, auth.NewAuthenticator(p.JWTSecret))
	return a, nil
}

// Run serves HTTP and, when configured, the Telegram bot until ctx is done.
func (a *app) Run(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	printGreetings(a.profile, a.telegram != nil)

	g, ctx := errgroup.WithContext(ctx)
	if a.telegram != nil {
		g.Go(func() error {
			return a.telegram.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		a.server.Shutdown(context.Background())
		return nil
	})
	return g.Wait()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}
