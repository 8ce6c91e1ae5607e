package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Distance metrics understood by the store drivers.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// Empty-query ranking modes.
const (
	RankingPopularity = "popularity"
	RankingRecency    = "recency"
)

// Translation cache backends.
const (
	TranslationCacheLRU   = "lru"
	TranslationCacheMap   = "map"
	TranslationCacheRedis = "redis"
)

// Profile is configuration to start main server.
type Profile struct {
	// Telegram
	TelegramBotToken string
	AdminChatID      int64
	TelegramRPS      float64 // outbound Bot API calls per second

	// Embedding provider (CLIP HTTP service)
	EmbeddingBaseURL     string
	EmbeddingDim         int
	EmbeddingConcurrency int // in-flight submissions allowed, 1 keeps single-flight
	EmbeddingTimeout     int // seconds
	EmbeddingMaxSide     int // longest image side before downscaling, 0 disables

	// Translation
	TranslationProvider   string // none, yandex, openai
	TranslationAPIKey     string
	TranslationFolderID   string
	TranslationBaseURL    string
	TranslationModel      string
	TranslationSourceLang string
	TranslationTargetLang string
	TranslationCache      string // lru, map, redis
	TranslationCacheSize  int
	RedisAddr             string

	// Retrieval
	DistanceMetric string
	RankingMode    string
	PageSize       int

	// Admin HTTP API
	JWTSecret string

	Mode    string
	DSN     string
	Driver  string
	Version string
	Addr    string
	Data    string
	Port    int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsTranslationEnabled reports whether search text goes through a translator.
func (p *Profile) IsTranslationEnabled() bool {
	return p.TranslationProvider != "" && p.TranslationProvider != "none"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

// FromEnv loads provider and retrieval settings from environment variables.
// Values already set (e.g. from flags) are kept.
func (p *Profile) FromEnv() {
	if p.TelegramBotToken == "" {
		p.TelegramBotToken = getEnvOrDefault("PICSAVE_TELEGRAM_BOT_TOKEN", "")
	}
	if p.AdminChatID == 0 {
		p.AdminChatID = getEnvOrDefaultInt64("PICSAVE_ADMIN_CHAT_ID", 0)
	}
	p.TelegramRPS = getEnvOrDefaultFloat("PICSAVE_TELEGRAM_RPS", 25)

	if p.EmbeddingBaseURL == "" {
		p.EmbeddingBaseURL = getEnvOrDefault("PICSAVE_EMBEDDING_BASE_URL", "http://127.0.0.1:8526")
	}
	p.EmbeddingDim = getEnvOrDefaultInt("PICSAVE_EMBEDDING_DIM", 1024)
	p.EmbeddingConcurrency = getEnvOrDefaultInt("PICSAVE_EMBEDDING_CONCURRENCY", 1)
	p.EmbeddingTimeout = getEnvOrDefaultInt("PICSAVE_EMBEDDING_TIMEOUT_SECONDS", 60)
	p.EmbeddingMaxSide = getEnvOrDefaultInt("PICSAVE_EMBEDDING_MAX_SIDE", 1024)

	p.TranslationProvider = getEnvOrDefault("PICSAVE_TRANSLATION_PROVIDER", "none")
	p.TranslationAPIKey = getEnvOrDefault("PICSAVE_TRANSLATION_API_KEY", "")
	p.TranslationFolderID = getEnvOrDefault("PICSAVE_TRANSLATION_FOLDER_ID", "")
	p.TranslationBaseURL = getEnvOrDefault("PICSAVE_TRANSLATION_BASE_URL", "")
	p.TranslationModel = getEnvOrDefault("PICSAVE_TRANSLATION_MODEL", "gpt-4o-mini")
	p.TranslationSourceLang = getEnvOrDefault("PICSAVE_TRANSLATION_SOURCE_LANG", "ru")
	p.TranslationTargetLang = getEnvOrDefault("PICSAVE_TRANSLATION_TARGET_LANG", "en")
	p.TranslationCache = getEnvOrDefault("PICSAVE_TRANSLATION_CACHE", TranslationCacheLRU)
	p.TranslationCacheSize = getEnvOrDefaultInt("PICSAVE_TRANSLATION_CACHE_SIZE", 10000)
	p.RedisAddr = getEnvOrDefault("PICSAVE_REDIS_ADDR", "127.0.0.1:6379")

	if p.DistanceMetric == "" {
		p.DistanceMetric = getEnvOrDefault("PICSAVE_DISTANCE_METRIC", MetricCosine)
	}
	if p.RankingMode == "" {
		p.RankingMode = getEnvOrDefault("PICSAVE_RANKING_MODE", RankingPopularity)
	}
	if p.PageSize == 0 {
		p.PageSize = getEnvOrDefaultInt("PICSAVE_PAGE_SIZE", 50)
	}

	p.JWTSecret = getEnvOrDefault("PICSAVE_JWT_SECRET", "")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	switch p.DistanceMetric {
	case MetricCosine, MetricEuclidean:
	case "":
		p.DistanceMetric = MetricCosine
	default:
		return errors.Errorf("unsupported distance metric %q", p.DistanceMetric)
	}

	switch p.RankingMode {
	case RankingPopularity, RankingRecency:
	case "":
		p.RankingMode = RankingPopularity
	default:
		return errors.Errorf("unsupported ranking mode %q", p.RankingMode)
	}

	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	// Telegram answers at most 50 inline results per page.
	if p.PageSize > 50 {
		return errors.Errorf("page size too large (max 50): %d", p.PageSize)
	}
	if p.EmbeddingDim <= 0 {
		p.EmbeddingDim = 1024
	}
	if p.EmbeddingConcurrency <= 0 {
		p.EmbeddingConcurrency = 1
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "picsave")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/picsave"
		}
	}

	if p.Driver == "sqlite" {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("picsave_%s.db", p.Mode))
		}
	}

	return nil
}
